// Package catalog loads the business and program catalog from CUE.
//
// The catalog supplies the names shown on balance reads and each program's
// default card tier. It never touches balances.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/loyalty/internal/ledger"
)

//go:embed schema.cue
var schemaCUE string

// Catalog is a validated set of businesses and programs, sorted by id.
type Catalog struct {
	Businesses []ledger.Business
	Programs   []ledger.Program
}

// LoadError is a catalog error with its CUE source position when known.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type businessDoc struct {
	Name string `json:"name"`
}

type programDoc struct {
	Business    string `json:"business"`
	Name        string `json:"name"`
	DefaultTier string `json:"default_tier"`
}

// LoadFile reads and validates a catalog file.
func LoadFile(path string) (*Catalog, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	return Parse(path, src)
}

// Parse validates src against the catalog schema and checks that every
// program names a business defined in the same catalog.
func Parse(filename string, src []byte) (*Catalog, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling catalog schema: %w", err)
	}

	data := ctx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := schema.LookupPath(cue.ParsePath("#Catalog")).Unify(data)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	cat := &Catalog{}
	known := make(map[string]bool)

	iter, err := v.LookupPath(cue.ParsePath("business")).Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		var doc businessDoc
		if err := iter.Value().Decode(&doc); err != nil {
			return nil, formatCUEError(err)
		}
		id := fieldID(iter)
		known[id] = true
		cat.Businesses = append(cat.Businesses, ledger.Business{ID: id, Name: doc.Name})
	}

	iter, err = v.LookupPath(cue.ParsePath("program")).Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		var doc programDoc
		if err := iter.Value().Decode(&doc); err != nil {
			return nil, formatCUEError(err)
		}
		id := fieldID(iter)
		if !known[doc.Business] {
			return nil, &LoadError{
				Field:   "program." + id + ".business",
				Message: fmt.Sprintf("unknown business %q", doc.Business),
				Pos:     iter.Value().LookupPath(cue.ParsePath("business")).Pos(),
			}
		}
		cat.Programs = append(cat.Programs, ledger.Program{
			ID:          id,
			BusinessID:  doc.Business,
			Name:        doc.Name,
			DefaultTier: doc.DefaultTier,
		})
	}

	if len(cat.Businesses) == 0 && len(cat.Programs) == 0 {
		return nil, &LoadError{Field: "catalog", Message: "no businesses or programs defined"}
	}

	sort.Slice(cat.Businesses, func(i, j int) bool { return cat.Businesses[i].ID < cat.Businesses[j].ID })
	sort.Slice(cat.Programs, func(i, j int) bool { return cat.Programs[i].ID < cat.Programs[j].ID })
	return cat, nil
}

// fieldID returns the iterator's label without CUE string quoting.
func fieldID(iter *cue.Iterator) string {
	label := iter.Label()
	if id, err := strconv.Unquote(label); err == nil {
		return id
	}
	return label
}

// formatCUEError converts the first CUE error to a LoadError carrying its
// source position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Field: "catalog", Message: err.Error()}
	}

	first := errs[0]
	var pos token.Pos
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		pos = positions[0]
	}
	return &LoadError{
		Field:   "catalog",
		Message: first.Error(),
		Pos:     pos,
	}
}

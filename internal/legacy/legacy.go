// Package legacy imports card balances from the previous system.
//
// Legacy rows carried up to three balance columns that were mutated
// together and drifted apart. Each row is reconciled once with
// reconcile.Resolve, the raw columns are kept in the drift table for
// review, and the resolved balance enters the ledger as an ADJUSTMENT award
// keyed by the legacy id. Re-running an import is a no-op.
package legacy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/loyalty/internal/ledger"
	"github.com/roach88/loyalty/internal/reconcile"
	"github.com/roach88/loyalty/internal/store"
)

// KeyPrefix prefixes the idempotency key of an import award.
const KeyPrefix = "legacy-import:"

// Record is one legacy card row.
type Record struct {
	ID       string `yaml:"id"`
	Customer string `yaml:"customer"`
	Business string `yaml:"business"`
	Program  string `yaml:"program"`

	reconcile.LegacyBalance `yaml:",inline"`
}

// File is the YAML document accepted by LoadFile.
type File struct {
	Cards []Record `yaml:"cards"`
}

// Outcome reports what the import did with one record.
type Outcome struct {
	LegacyID  string           `json:"legacyId"`
	CardID    string           `json:"cardId,omitempty"`
	Points    int64            `json:"points"`
	Source    reconcile.Source `json:"source"`
	Drift     []string         `json:"drift,omitempty"`
	Clamped   bool             `json:"clamped,omitempty"`
	Duplicate bool             `json:"duplicate,omitempty"`
}

// Summary is the result of an import run.
type Summary struct {
	Imported  int       `json:"imported"`
	Duplicate int       `json:"duplicate"`
	Drifted   int       `json:"drifted"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Ledger is the store surface used by the importer.
// Satisfied by *store.Store.
type Ledger interface {
	Enroll(ctx context.Context, e ledger.Enrollment) (ledger.Enrollment, error)
	RecordLegacyDrift(ctx context.Context, d store.LegacyDrift) error
}

// Awarder credits the resolved balance. Satisfied by *award.Engine.
type Awarder interface {
	Award(ctx context.Context, req ledger.AwardRequest) (ledger.AwardResult, error)
}

// Importer moves legacy records into the ledger.
type Importer struct {
	ledger  Ledger
	awarder Awarder
	clock   ledger.Clock
	logger  *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithClock sets the clock used for enrollment and drift timestamps.
func WithClock(c ledger.Clock) Option {
	return func(i *Importer) {
		i.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Importer) {
		i.logger = l
	}
}

// NewImporter creates an Importer.
func NewImporter(l Ledger, a Awarder, opts ...Option) *Importer {
	i := &Importer{
		ledger:  l,
		awarder: a,
		clock:   ledger.SystemClock{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// LoadFile reads a legacy export. Unknown fields are rejected.
func LoadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading legacy file: %w", err)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing legacy file %s: %w", path, err)
	}
	if err := Validate(f.Cards); err != nil {
		return nil, fmt.Errorf("legacy file %s: %w", path, err)
	}
	return f.Cards, nil
}

// Validate checks that every record is complete and ids are unique.
func Validate(records []Record) error {
	var errs []error
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		var missing []string
		for name, v := range map[string]string{
			"id":       r.ID,
			"customer": r.Customer,
			"business": r.Business,
			"program":  r.Program,
		} {
			if strings.TrimSpace(v) == "" {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			slices.Sort(missing)
			errs = append(errs, fmt.Errorf("cards[%d]: missing %s", i, strings.Join(missing, ", ")))
		}
		if r.ID != "" {
			if seen[r.ID] {
				errs = append(errs, fmt.Errorf("cards[%d]: duplicate id %q", i, r.ID))
			}
			seen[r.ID] = true
		}
	}
	return errors.Join(errs...)
}

// Import processes records in order and stops at the first failure. The
// summary covers the records processed before it.
func (i *Importer) Import(ctx context.Context, records []Record) (Summary, error) {
	sum := Summary{Outcomes: make([]Outcome, 0, len(records))}
	for _, r := range records {
		out, err := i.importOne(ctx, r)
		if err != nil {
			return sum, fmt.Errorf("legacy card %s: %w", r.ID, err)
		}
		sum.Outcomes = append(sum.Outcomes, out)
		if out.Duplicate {
			sum.Duplicate++
		} else {
			sum.Imported++
		}
		if len(out.Drift) > 0 {
			sum.Drifted++
		}
	}
	return sum, nil
}

func (i *Importer) importOne(ctx context.Context, r Record) (Outcome, error) {
	if _, err := i.ledger.Enroll(ctx, ledger.Enrollment{
		CustomerID: r.Customer,
		ProgramID:  r.Program,
		BusinessID: r.Business,
		EnrolledAt: i.clock.Now(),
	}); err != nil {
		return Outcome{}, fmt.Errorf("enroll: %w", err)
	}

	res := reconcile.Resolve(r.LegacyBalance)
	out := Outcome{
		LegacyID: r.ID,
		Points:   res.Points,
		Source:   res.Source,
		Drift:    res.Drift,
		Clamped:  res.Clamped,
	}

	// A zero balance needs no card; the drift row keeps the evidence.
	if res.Points > 0 {
		ar, err := i.awarder.Award(ctx, ledger.AwardRequest{
			CustomerID:     r.Customer,
			BusinessID:     r.Business,
			ProgramID:      r.Program,
			Points:         res.Points,
			SourceType:     ledger.SourceAdjustment,
			Description:    "legacy import " + r.ID,
			IdempotencyKey: KeyPrefix + r.ID,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("award: %w", err)
		}
		out.CardID = ar.CardID
		out.Duplicate = ar.Duplicate
	}

	if err := i.ledger.RecordLegacyDrift(ctx, store.LegacyDrift{
		LegacyID:          r.ID,
		CardID:            out.CardID,
		Points:            r.Points,
		PointsBalance:     r.PointsBalance,
		TotalPointsEarned: r.TotalPointsEarned,
		Resolved:          res.Points,
		RecordedAt:        i.clock.Now(),
	}); err != nil {
		return Outcome{}, err
	}

	if len(res.Drift) > 0 || res.Clamped {
		i.logger.Warn("legacy balance drift",
			"legacy_id", r.ID,
			"customer_id", r.Customer,
			"program_id", r.Program,
			"resolved", res.Points,
			"source", string(res.Source),
			"drift", res.Drift,
			"clamped", res.Clamped)
	}
	return out, nil
}

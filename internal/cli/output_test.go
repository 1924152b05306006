package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loyalty/internal/award"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]int64{"newBalance": 10}
	err := formatter.Success(data, "ignored in json mode")
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"newBalance": float64(10)}, resp.Data)
	assert.NotContains(t, buf.String(), "ignored")
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("EnrollmentRequired", "not enrolled", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "EnrollmentRequired", resp.Error.Code)
	assert.Equal(t, "not enrolled", resp.Error.Message)
	assert.Nil(t, resp.Error.Details)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"field": "program.p1.business"}
	err := formatter.Error("E_CATALOG_INVALID", "unknown business", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success(map[string]int{"cards": 3}, "✓ 3 card(s) consistent")
	require.NoError(t, err)
	assert.Equal(t, "✓ 3 card(s) consistent\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("CardNotFound", "no active card", map[string]string{"card": "c1"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [CardNotFound]")
	assert.Contains(t, buf.String(), "no active card")
	assert.NotContains(t, buf.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"card": "c1"}
	err := formatter.Error("CardNotFound", "no active card", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [CardNotFound]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Fail(ExitFailure, "E_AUDIT_MISMATCH", "1 of 2 card(s) inconsistent", nil)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "1 of 2 card(s) inconsistent", err.Error())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_AUDIT_MISMATCH", resp.Error.Code)
}

func TestOutputFormatter_FailAward(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantExit int
		wantCode string
		wantMsg  string
	}{
		{
			name:     "invalid request is a command error",
			err:      &award.Error{Code: award.CodeInvalidRequest, Message: "idempotency key is required"},
			wantExit: ExitCommandError,
			wantCode: "InvalidRequest",
			wantMsg:  "idempotency key is required",
		},
		{
			name:     "enrollment required is a domain failure",
			err:      &award.Error{Code: award.CodeEnrollmentRequired, CustomerID: "cust-1", ProgramID: "prog-1"},
			wantExit: ExitFailure,
			wantCode: "EnrollmentRequired",
			wantMsg:  "You need to join this loyalty program before you can earn points.",
		},
		{
			name:     "persistence failure hides the cause",
			err:      &award.Error{Code: award.CodePersistenceFailure, Message: "disk I/O error"},
			wantExit: ExitFailure,
			wantCode: "PersistenceFailure",
			wantMsg:  "Something went wrong while saving your points. Please try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: buf}

			err := formatter.FailAward(tt.err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantMsg, resp.Error.Message)
			assert.NotContains(t, buf.String(), "disk I/O")
			assert.Nil(t, resp.Error.Details)
		})
	}
}

func TestOutputFormatter_FailAwardVerboseDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf, Verbose: true}

	err := formatter.FailAward(&award.Error{
		Code:           award.CodeIdempotencyMismatch,
		CustomerID:     "cust-1",
		ProgramID:      "prog-1",
		IdempotencyKey: "order-9",
	})
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, map[string]any{
		"customer_id":     "cust-1",
		"program_id":      "prog-1",
		"idempotency_key": "order-9",
	}, resp.Error.Details)
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailure},
		{"exit error", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "open", errors.New("denied"))), ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapExitError(ExitFailure, "failed to save catalog", cause)

	assert.Equal(t, "failed to save catalog: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
}

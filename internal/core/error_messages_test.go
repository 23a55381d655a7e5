package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/recon/internal/ingest"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"duplicate key", errors.New(`duplicate key value violates unique constraint "customers_name_key"`), "DB001"},
		{"unique constraint", errors.New("ERROR: unique constraint violated"), "DB002"},
		{"foreign key", errors.New(`insert or update on table "order_items" violates foreign key constraint`), "DB003"},
		{"connection refused", errors.New("dial tcp: connection refused"), "DB004"},
		{"timeout", errors.New("i/o timeout"), "DB006"},
		{"missing column", &MissingColumnError{Entity: EntityOrderItem, Columns: []string{"Número"}}, "VAL004"},
		{"unknown scheme", fmt.Errorf("parse flags: %w", errors.New(`unknown key scheme "x" (want name or origin)`)), "VAL005"},
		{"file too large", errors.New("file too large: Clientes.csv is 200 bytes (limit 100)"), "FILE001"},
		{"no input", fmt.Errorf("Vendas: %w", ingest.ErrNoInput), "FILE004"},
		{"empty file", fmt.Errorf("a.csv: %w", ingest.ErrEmptyFile), "FILE005"},
		{"corrupt file", fmt.Errorf("%w: a.xlsx: zip: not a valid zip file", ingest.ErrCorruptFile), "FILE006"},
		{"cancelled", errors.New("load Clientes: context canceled"), "RUN001"},
		{"unknown entity", errors.New("unknown entity: pedidos"), "RUN003"},
		{"unknown error returns default", errors.New("some random internal error"), "ERR000"},
		{"case insensitive matching", errors.New("DUPLICATE KEY value violates"), "DB001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, MapError(tt.err).Code)
		})
	}
}

func TestMapError_ConstraintViolationUnwraps(t *testing.T) {
	cv := &ConstraintViolation{
		Entity:     EntityCustomer,
		Constraint: "customers_tax_id_key",
		Err:        errors.New("duplicate key value violates unique constraint"),
	}
	assert.Equal(t, "DB001", MapError(fmt.Errorf("import customers: %w", cv)).Code)
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(errors.New("duplicate key value violates"))
	assert.Equal(t, "A record with this key already exists (Code: DB001). Check the failed rows for keys repeated under another spelling", got)
	assert.Empty(t, FormatUserError(nil))
}

func TestIsUserFacing(t *testing.T) {
	assert.False(t, IsUserFacing(nil))
	assert.True(t, IsUserFacing(errors.New("duplicate key")))
	assert.False(t, IsUserFacing(errors.New("random internal error xyz")))
}

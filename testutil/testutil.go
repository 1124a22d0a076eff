// Package testutil provides shared fixtures for murr tests: schemas,
// batches, and pointer helpers for nullable values.
package testutil

import (
	"testing"

	"github.com/murrdb/murr/model"
	"github.com/murrdb/murr/schema"
)

// Ptr returns a pointer to v, for building nullable arrays.
func Ptr[T any](v T) *T {
	return &v
}

// MustSchema builds and validates a schema, failing the test on error.
func MustSchema(t *testing.T, key string, columns ...schema.Column) *schema.Table {
	t.Helper()
	s, err := schema.New(key, columns)
	if err != nil {
		t.Fatalf("building schema: %v", err)
	}
	return s
}

// MustBatch assembles a record batch, failing the test on error.
func MustBatch(t *testing.T, fields []model.Field, columns []model.Array) *model.RecordBatch {
	t.Helper()
	b, err := model.NewRecordBatch(fields, columns)
	if err != nil {
		t.Fatalf("building batch: %v", err)
	}
	return b
}

// KeyedFloatSchema is the workhorse fixture: utf8 key "id" plus a float32
// column "v".
func KeyedFloatSchema(t *testing.T, nullable bool) *schema.Table {
	t.Helper()
	return MustSchema(t, "id",
		schema.Column{Name: "id", DType: schema.Utf8, Nullable: false},
		schema.Column{Name: "v", DType: schema.Float32, Nullable: nullable},
	)
}

// KeyedFloatBatch pairs ids with float values for KeyedFloatSchema.
func KeyedFloatBatch(t *testing.T, ids []string, values []float32) *model.RecordBatch {
	t.Helper()
	return MustBatch(t,
		[]model.Field{
			{Name: "id", DType: schema.Utf8, Nullable: false},
			{Name: "v", DType: schema.Float32, Nullable: false},
		},
		[]model.Array{model.Strings(ids...), model.Float32s(values...)},
	)
}

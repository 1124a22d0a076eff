package table

import (
	"fmt"

	"github.com/murrdb/murr/column"
	"github.com/murrdb/murr/model"
	"github.com/murrdb/murr/schema"
	"github.com/murrdb/murr/segment"
)

// BuildSegment validates a record batch against the schema and encodes it
// as a segment file. The batch must carry exactly the schema's columns
// with matching dtypes, and non-nullable columns must be dense.
func BuildSegment(sch *schema.Table, batch *model.RecordBatch) ([]byte, error) {
	if err := validateBatch(sch, batch); err != nil {
		return nil, err
	}

	w := segment.NewWriter()
	for _, col := range sch.Columns {
		arr, _ := batch.ColumnByName(col.Name)
		payload, err := column.Encode(col, arr)
		if err != nil {
			return nil, err
		}
		w.AddColumn(col.Name, payload)
	}
	return w.Bytes()
}

func validateBatch(sch *schema.Table, batch *model.RecordBatch) error {
	for _, f := range batch.Fields() {
		if _, ok := sch.Column(f.Name); !ok {
			return fmt.Errorf("%w: batch column %q not in schema", ErrSchemaMismatch, f.Name)
		}
	}
	for _, col := range sch.Columns {
		arr, ok := batch.ColumnByName(col.Name)
		if !ok {
			return fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, col.Name)
		}
		if arr.DType() != col.DType {
			return fmt.Errorf("%w: column %q is %s, schema declares %s",
				ErrSchemaMismatch, col.Name, arr.DType(), col.DType)
		}
		if !col.Nullable {
			for i := 0; i < arr.Len(); i++ {
				if arr.Null(i) {
					return fmt.Errorf("%w: null at row %d of non-nullable column %q",
						ErrSchemaMismatch, i, col.Name)
				}
			}
		}
	}
	return nil
}

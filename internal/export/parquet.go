package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/parquet-go/parquet-go"
)

type ParquetEncodeResult struct {
	Data        []byte
	RecordCount int64
}

// parquetResultRow keeps the result set schema-free: each row is stored as a
// JSON object keyed by column name next to its position in the result.
type parquetResultRow struct {
	RowIndex   int64  `parquet:"row_index"`
	RecordJSON string `parquet:"record_json"`
}

func EncodeResultToParquet(columns []string, rows [][]any) (ParquetEncodeResult, error) {
	records := make([]parquetResultRow, 0, len(rows))
	for i, row := range rows {
		record := make(map[string]any, len(columns))
		for c, name := range columns {
			if c < len(row) {
				record[uniqueColumnName(record, name)] = row[c]
			}
		}
		raw, err := json.Marshal(record)
		if err != nil {
			return ParquetEncodeResult{}, fmt.Errorf("marshal row %d: %w", i, err)
		}
		records = append(records, parquetResultRow{RowIndex: int64(i), RecordJSON: string(raw)})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetResultRow](buf)
	if len(records) > 0 {
		if _, err := writer.Write(records); err != nil {
			return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}
	return ParquetEncodeResult{Data: buf.Bytes(), RecordCount: int64(len(records))}, nil
}

// uniqueColumnName suffixes repeated result column names (`count`, `count_2`).
func uniqueColumnName(seen map[string]any, name string) string {
	if _, taken := seen[name]; !taken {
		return name
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", name, n)
		if _, taken := seen[candidate]; !taken {
			return candidate
		}
	}
}

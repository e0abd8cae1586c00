package backup

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/flowbit/vanna/internal/trainingstore"
)

type parquetExample struct {
	ID       string `parquet:"id"`
	Kind     string `parquet:"kind"`
	Question string `parquet:"question"`
	SQL      string `parquet:"sql"`
	Content  string `parquet:"content"`
}

// Encode writes examples as a parquet file with columns id, kind, question, sql and content.
func Encode(examples []trainingstore.Example) ([]byte, error) {
	rows := make([]parquetExample, 0, len(examples))
	for _, example := range examples {
		rows = append(rows, parquetExample{
			ID:       example.ID,
			Kind:     string(example.Kind),
			Question: example.Question,
			SQL:      example.SQL,
			Content:  example.Content,
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetExample](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func Decode(data []byte) ([]trainingstore.Example, error) {
	reader := parquet.NewGenericReader[parquetExample](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	rows := make([]parquetExample, reader.NumRows())
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}

	examples := make([]trainingstore.Example, 0, count)
	for _, row := range rows[:count] {
		kind, err := trainingstore.ParseKind(row.Kind)
		if err != nil {
			return nil, fmt.Errorf("example %s: %w", row.ID, err)
		}
		examples = append(examples, trainingstore.Example{
			ID:       row.ID,
			Kind:     kind,
			Question: row.Question,
			SQL:      row.SQL,
			Content:  row.Content,
		})
	}
	return examples, nil
}

package schema

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/phobologic/repotrim/internal/model"
)

// Column types are inferred from this many leading rows.
const inferRows = 100

func tableSchema(path string, comma rune, sampleRows int) (*model.TableSchema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = false

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &model.TableSchema{Types: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\uFEFF"))
	}

	ts := &model.TableSchema{
		Columns: header,
		Types:   make(map[string]string, len(header)),
	}
	var inferSample [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", ts.RowCount+2, err)
		}
		ts.RowCount++
		if len(inferSample) < inferRows {
			inferSample = append(inferSample, rec)
		}
		if len(ts.Sample) < sampleRows {
			ts.Sample = append(ts.Sample, rec)
		}
	}

	for i, col := range header {
		var values []string
		for _, rec := range inferSample {
			if i < len(rec) {
				values = append(values, rec[i])
			}
		}
		ts.Types[col] = columnType(values)
	}
	return ts, nil
}

// columnType applies int → float → str precedence over the non-empty values.
func columnType(values []string) string {
	isInt, isFloat, seen := true, true, false
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen = true
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			isFloat = false
		}
	}
	switch {
	case !seen:
		return "str"
	case isInt:
		return "int"
	case isFloat:
		return "float"
	}
	return "str"
}

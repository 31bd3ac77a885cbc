package types

import (
	"fmt"
	"math"
	"strings"
)

// RawMessage is the untyped field-value mapping delivered by an upstream channel.
type RawMessage map[string]interface{}

// NormalizedRecord is a RawMessage after its feed transform has run. Its keys
// match the columns declared in the feed's CacheSchema.
type NormalizedRecord map[string]interface{}

// Clone returns a shallow copy of the raw message as a record, so that
// transforms never mutate the payload they were given.
func (m RawMessage) Clone() NormalizedRecord {
	rec := make(NormalizedRecord, len(m)+1)
	for k, v := range m {
		rec[k] = v
	}
	return rec
}

// WireSafe returns a copy of the record where non-finite floats are replaced
// with nil, since encoding/json refuses NaN and Inf.
func (r NormalizedRecord) WireSafe() NormalizedRecord {
	out := make(NormalizedRecord, len(r))
	for k, v := range r {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			out[k] = nil
			continue
		}
		out[k] = v
	}
	return out
}

// ColumnType is the type tag understood by the cache server.
type ColumnType string

const (
	ColumnString ColumnType = "string"
	ColumnInt    ColumnType = "int"
	ColumnDouble ColumnType = "double"
	ColumnDate   ColumnType = "date"
)

// Valid reports whether t is one of the known type tags.
func (t ColumnType) Valid() bool {
	switch t {
	case ColumnString, ColumnInt, ColumnDouble, ColumnDate:
		return true
	}
	return false
}

// Column is one declared cache column.
type Column struct {
	Name string     `yaml:"name"`
	Type ColumnType `yaml:"type"`
}

// CacheSchema declares the shape of one cache on the server: which columns
// identify a row, which are tracked as history, and the type of every column.
type CacheSchema struct {
	IndexColumns   []string `yaml:"index_columns"`
	HistoryColumns []string `yaml:"history_columns"`
	Columns        []Column `yaml:"columns"`
}

// Properties renders the cache properties in the server's wire form.
func (s CacheSchema) Properties() map[string]string {
	return map[string]string{
		"indexColumnNames":   strings.Join(s.IndexColumns, ";"),
		"historyColumnNames": strings.Join(s.HistoryColumns, ";"),
	}
}

// ColumnMetadata renders the columns as an ordered list of single-key maps.
func (s CacheSchema) ColumnMetadata() []map[string]ColumnType {
	out := make([]map[string]ColumnType, 0, len(s.Columns))
	for _, c := range s.Columns {
		out = append(out, map[string]ColumnType{c.Name: c.Type})
	}
	return out
}

// Validate checks that every column has a name and a known type, and that
// index and history columns are declared columns.
func (s CacheSchema) Validate() error {
	declared := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("column with empty name")
		}
		if !c.Type.Valid() {
			return fmt.Errorf("column %q: unknown type %q", c.Name, c.Type)
		}
		declared[c.Name] = true
	}
	for _, name := range s.IndexColumns {
		if !declared[name] {
			return fmt.Errorf("index column %q is not declared", name)
		}
	}
	for _, name := range s.HistoryColumns {
		if !declared[name] {
			return fmt.Errorf("history column %q is not declared", name)
		}
	}
	return nil
}

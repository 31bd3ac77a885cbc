package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() CacheSchema {
	return CacheSchema{
		IndexColumns:   []string{"symbol", "trade_type"},
		HistoryColumns: []string{"order_quantity", "bid_price"},
		Columns: []Column{
			{Name: "time_stamp", Type: ColumnDate},
			{Name: "symbol", Type: ColumnString},
			{Name: "trade_type", Type: ColumnString},
			{Name: "order_quantity", Type: ColumnInt},
			{Name: "bid_price", Type: ColumnDouble},
		},
	}
}

func TestCacheSchema_Properties(t *testing.T) {
	props := testSchema().Properties()
	assert.Equal(t, "symbol;trade_type", props["indexColumnNames"])
	assert.Equal(t, "order_quantity;bid_price", props["historyColumnNames"])
}

func TestCacheSchema_ColumnMetadata(t *testing.T) {
	cols := testSchema().ColumnMetadata()
	require.Len(t, cols, 5)
	assert.Equal(t, map[string]ColumnType{"time_stamp": ColumnDate}, cols[0], "order must be preserved")
	assert.Equal(t, map[string]ColumnType{"bid_price": ColumnDouble}, cols[4])
}

func TestCacheSchema_Validate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, testSchema().Validate())
	})

	t.Run("UnknownType", func(t *testing.T) {
		s := testSchema()
		s.Columns[1].Type = "varchar"
		assert.ErrorContains(t, s.Validate(), "unknown type")
	})

	t.Run("UndeclaredIndex", func(t *testing.T) {
		s := testSchema()
		s.IndexColumns = append(s.IndexColumns, "exchange")
		assert.ErrorContains(t, s.Validate(), `index column "exchange"`)
	})

	t.Run("UndeclaredHistory", func(t *testing.T) {
		s := testSchema()
		s.HistoryColumns = []string{"ask_price"}
		assert.ErrorContains(t, s.Validate(), `history column "ask_price"`)
	})
}

func TestRawMessage_Clone(t *testing.T) {
	raw := RawMessage{"symbol": "ACME"}
	rec := raw.Clone()
	rec["symbol"] = "OTHER"
	rec["time_stamp"] = 1.0
	assert.Equal(t, "ACME", raw["symbol"], "clone must not alias the source")
	assert.NotContains(t, raw, "time_stamp")
}

func TestNormalizedRecord_WireSafe(t *testing.T) {
	rec := NormalizedRecord{
		"nan":    math.NaN(),
		"inf":    math.Inf(1),
		"ok":     72.5,
		"string": "abc",
	}
	safe := rec.WireSafe()
	assert.Nil(t, safe["nan"])
	assert.Nil(t, safe["inf"])
	assert.Equal(t, 72.5, safe["ok"])
	assert.Equal(t, "abc", safe["string"])
	assert.True(t, math.IsNaN(rec["nan"].(float64)), "original record is untouched")
}

package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type article struct {
	Code      string          `mapstructure:"code"`
	UnitPrice decimal.Decimal `mapstructure:"unit_price"`
	Stock     decimal.Decimal `mapstructure:"stock_confirmed"`
	Seen      time.Time       `mapstructure:"seen"`
}

func TestDecode_DriverShapes(t *testing.T) {
	rows := Rows{
		// pgx with the decimal codec registered
		{"code": "A1", "unit_price": decimal.RequireFromString("100.50"), "stock_confirmed": decimal.NewFromInt(10),
			"seen": time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
		// database/sql + mysql driver
		{"code": "A2", "unit_price": []byte("12.30"), "stock_confirmed": []byte("4.000"), "seen": []byte("2025-01-02")},
		// JSON-ish results
		{"code": "A3", "unit_price": 7.5, "stock_confirmed": int64(3), "seen": "2025-01-02T10:00:00Z"},
	}

	var out []article
	require.NoError(t, Decode(rows, &out))
	require.Len(t, out, 3)

	assert.Equal(t, "100.5", out[0].UnitPrice.String())
	assert.Equal(t, "12.3", out[1].UnitPrice.String())
	assert.True(t, out[1].Stock.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, "7.5", out[2].UnitPrice.String())
	assert.Equal(t, 2025, out[1].Seen.Year())
	assert.Equal(t, 10, out[2].Seen.Hour())
}

func TestDecode_BadValue(t *testing.T) {
	var out article
	err := Decode(Row{"code": "A1", "unit_price": "abc"}, &out)
	assert.Equal(t, KindUnknown, KindOf(err))
	assert.Error(t, err)
}

func TestRowsFirst(t *testing.T) {
	_, err := Rows{}.First()
	assert.Equal(t, KindNotFound, KindOf(err))

	row, err := Rows{{"number": int64(3)}}.First()
	require.NoError(t, err)
	assert.Equal(t, int64(3), row["number"])
}

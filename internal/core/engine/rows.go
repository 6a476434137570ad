package engine

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
)

// Row is one result row keyed by column name.
// Engines alias columns to the neutral names used by the domain (code, description, ...).
type Row map[string]any

// Rows is an operation result.
type Rows []Row

// First returns the first row or a NotFound error.
func (r Rows) First() (Row, error) {
	if len(r) == 0 {
		return nil, Errorf(KindNotFound, "no rows")
	}
	return r[0], nil
}

var (
	decimalType = reflect.TypeOf(decimal.Decimal{})
	timeType    = reflect.TypeOf(time.Time{})
)

// Decode copies rows (or a single row) into out using mapstructure tags.
func Decode(in any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			decimalHook,
			timeHook,
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return Errorf(KindUnknown, "decode result: %v", err)
	}
	return nil
}

func decimalHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != decimalType {
		return data, nil
	}
	return ToDecimal(data)
}

// ToDecimal converts driver values (numbers, numeric strings, byte slices) into a decimal.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return x, nil
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, nil
		}
		return *x, nil
	case string:
		return decimal.NewFromString(x)
	case []byte:
		return decimal.NewFromString(string(x))
	case float64:
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case uint32:
		return decimal.NewFromInt(int64(x)), nil
	case uint64:
		return decimal.NewFromString(strconv.FormatUint(x, 10))
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return decimal.Zero, err
		}
		return ToDecimal(dv)
	}
	return decimal.Zero, fmt.Errorf("cannot convert %T to decimal", v)
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

func timeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	var s string
	switch x := data.(type) {
	case time.Time:
		return x, nil
	case string:
		s = x
	case []byte:
		s = string(x)
	case nil:
		return time.Time{}, nil
	default:
		return data, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("cannot parse %q as time", s)
}

// ToInt64 converts an integral driver value (int64 from pgx, []byte from MySQL, ...) into an int64.
func ToInt64(v any) (int64, error) {
	if n, ok := v.(int64); ok {
		return n, nil
	}
	d, err := ToDecimal(v)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("%s is not an integer", d)
	}
	return d.IntPart(), nil
}

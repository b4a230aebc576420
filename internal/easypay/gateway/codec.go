// Package gateway implements the Easypay wire protocol: request encoding,
// authentication and typed decoding of the gateway's XML response documents.
package gateway

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Accepted date layouts in gateway documents. Values carry no zone and are
// interpreted as UTC.
var dateLayouts = [...]string{"2006-01-02", "2006-01-02 15:04:05"}

// Field name tables driving typed decoding. Names not listed decode as text.
var (
	intFields = map[string]bool{
		"ep_cin":       true,
		"ep_entity":    true,
		"ep_reference": true,
	}
	decimalFields = map[string]bool{
		"ep_value_fixed":  true,
		"ep_value_var":    true,
		"ep_value_tax":    true,
		"ep_value_transf": true,
		"ep_value":        true,
	}
	dateFields = map[string]bool{
		"ep_date":        true,
		"ep_date_read":   true,
		"ep_date_transf": true,
	}
)

// DecodeError reports a response field that could not be decoded to its
// expected type.
type DecodeError struct {
	Field string
	Value string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding field %s value %q: %v", e.Field, e.Value, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeField converts the raw text of a named response field into its typed
// value per the field tables above.
func DecodeField(name, raw string) (any, error) {
	switch {
	case intFields[name]:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &DecodeError{Field: name, Value: raw, Err: err}
		}
		return n, nil

	case decimalFields[name]:
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, &DecodeError{Field: name, Value: raw, Err: err}
		}
		return d, nil

	case dateFields[name]:
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
				return t, nil
			}
		}
		return nil, &DecodeError{Field: name, Value: raw, Err: fmt.Errorf("unrecognized date format")}

	default:
		return raw, nil
	}
}

// EncodeValue converts a parameter value to its wire text: decimals fixed at
// two fractional digits, dates as date-only, everything else invariant text.
// Nil and empty values encode to "" and are omitted from requests.
func EncodeValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case decimal.Decimal:
		return x.StringFixedBank(2)
	case *decimal.Decimal:
		if x == nil {
			return ""
		}
		return x.StringFixedBank(2)
	case time.Time:
		return x.Format(dateLayouts[0])
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.Format(dateLayouts[0])
	default:
		return fmt.Sprint(x)
	}
}

// Fields is a decoded gateway response document: field name to typed value.
type Fields map[string]any

// Int returns the named field as an integer.
func (f Fields) Int(name string) (int, bool) {
	v, ok := f[name].(int)
	return v, ok
}

// Decimal returns the named field as a decimal amount.
func (f Fields) Decimal(name string) (decimal.Decimal, bool) {
	v, ok := f[name].(decimal.Decimal)
	return v, ok
}

// Time returns the named field as a UTC instant.
func (f Fields) Time(name string) (time.Time, bool) {
	v, ok := f[name].(time.Time)
	return v, ok
}

// String returns the named field as text.
func (f Fields) String(name string) (string, bool) {
	v, ok := f[name].(string)
	return v, ok
}

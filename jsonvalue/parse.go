package jsonvalue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
)

// ErrMalformed is returned by [Parse] for input that is not a single valid
// JSON value.
var ErrMalformed = errors.New("malformed JSON")

// KindError reports a value of an unexpected kind.
type KindError struct {
	Want Kind
	Got  Kind
}

func (e *KindError) Error() string {
	return fmt.Sprintf("expected JSON %s, got %s", e.Want, e.Got)
}

// Parse decodes a JSON document into a [Value], preserving object key order
// and number literals.
func Parse(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || !json.Valid(data) {
		return nil, ErrMalformed
	}

	raw, typ, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return decode(raw, typ)
}

// MustParse is like [Parse] but panics on error. Intended for tests and
// package-level fixtures.
func MustParse(data string) Value {
	v, err := Parse([]byte(data))
	if err != nil {
		panic(fmt.Sprintf("jsonvalue: MustParse(%q): %v", data, err))
	}
	return v
}

func decode(raw []byte, typ jsonparser.ValueType) (Value, error) {
	switch typ {
	case jsonparser.Null:
		return Null{}, nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Bool(b), nil
	case jsonparser.Number:
		return Number(raw), nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return String(s), nil
	case jsonparser.Array:
		return decodeArray(raw)
	case jsonparser.Object:
		return decodeObject(raw)
	default:
		return nil, fmt.Errorf("%w: unexpected value type %s", ErrMalformed, typ)
	}
}

func decodeArray(raw []byte) (Value, error) {
	arr := Array{}
	var firstErr error
	_, err := jsonparser.ArrayEach(raw, func(elem []byte, typ jsonparser.ValueType, _ int, err error) {
		if firstErr != nil {
			return
		}
		if err != nil {
			firstErr = err
			return
		}
		v, err := decode(elem, typ)
		if err != nil {
			firstErr = err
			return
		}
		arr = append(arr, v)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return arr, nil
}

func decodeObject(raw []byte) (Value, error) {
	obj := NewObject()
	err := jsonparser.ObjectEach(raw, func(key, val []byte, typ jsonparser.ValueType, _ int) error {
		// ObjectEach hands over keys already unescaped
		v, err := decode(val, typ)
		if err != nil {
			return err
		}
		obj.Set(string(key), v)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return obj, nil
}

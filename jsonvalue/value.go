package jsonvalue

import (
	"bytes"
	"encoding/json"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind identifies which variant a [Value] holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the JSON name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a node of a JSON document.
//
// The set of implementations is closed: [Null], [Bool], [Number], [String],
// [Array] and [*Object].
type Value interface {
	// Kind reports the variant held by the value.
	Kind() Kind

	// Accept dispatches to the Visitor method matching the variant.
	Accept(v Visitor)

	// MarshalJSON renders the value as compact JSON.
	MarshalJSON() ([]byte, error)

	isValue()
}

// Visitor receives one call per visited node. Recursion into arrays and
// objects is the visitor's decision.
type Visitor interface {
	VisitNull()
	VisitBool(b Bool)
	VisitNumber(n Number)
	VisitString(s String)
	VisitArray(a Array)
	VisitObject(o *Object)
}

// Null is the JSON null literal.
type Null struct{}

// Bool is a JSON boolean.
type Bool bool

// Number is a JSON number, held as its literal text.
type Number string

// String is a JSON string, held unescaped.
type String string

// Array is an ordered JSON sequence.
type Array []Value

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Number) Kind() Kind { return KindNumber }
func (String) Kind() Kind { return KindString }
func (Array) Kind() Kind  { return KindArray }

func (Null) Accept(v Visitor)     { v.VisitNull() }
func (b Bool) Accept(v Visitor)   { v.VisitBool(b) }
func (n Number) Accept(v Visitor) { v.VisitNumber(n) }
func (s String) Accept(v Visitor) { v.VisitString(s) }
func (a Array) Accept(v Visitor)  { v.VisitArray(a) }

func (Null) isValue()   {}
func (Bool) isValue()   {}
func (Number) isValue() {}
func (String) isValue() {}
func (Array) isValue()  {}

func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

func (b Bool) MarshalJSON() ([]byte, error) {
	return strconv.AppendBool(nil, bool(b)), nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("0"), nil
	}
	return []byte(n), nil
}

func (s String) MarshalJSON() ([]byte, error) {
	return appendString(nil, string(s))
}

func (a Array) MarshalJSON() ([]byte, error) {
	buf := []byte{'['}
	for i, elem := range a {
		if i > 0 {
			buf = append(buf, ',')
		}
		b, err := marshal(elem)
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
	}
	return append(buf, ']'), nil
}

// Int64 parses the literal as an integer.
func (n Number) Int64() (int64, error) {
	return strconv.ParseInt(string(n), 10, 64)
}

// Float64 parses the literal as a float.
func (n Number) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

// Object is a JSON object that keeps its keys in insertion order.
//
// The zero value is an empty object ready for use.
type Object struct {
	fields *orderedmap.OrderedMap[string, Value]
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{fields: orderedmap.New[string, Value]()}
}

func (*Object) Kind() Kind         { return KindObject }
func (o *Object) Accept(v Visitor) { v.VisitObject(o) }
func (*Object) isValue()           {}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil || o.fields == nil {
		return 0
	}
	return o.fields.Len()
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil || o.fields == nil {
		return nil, false
	}
	return o.fields.Get(key)
}

// Set stores v under key. An existing key keeps its position.
func (o *Object) Set(key string, v Value) {
	if o.fields == nil {
		o.fields = orderedmap.New[string, Value]()
	}
	if v == nil {
		v = Null{}
	}
	o.fields.Set(key, v)
}

// Delete removes key and reports whether it was present.
func (o *Object) Delete(key string) bool {
	if o == nil || o.fields == nil {
		return false
	}
	_, present := o.fields.Delete(key)
	return present
}

// Keys returns the keys in order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, o.Len())
	o.Each(func(key string, _ Value) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Each calls fn for every field in order until fn returns false.
func (o *Object) Each(fn func(key string, v Value) bool) {
	if o == nil || o.fields == nil {
		return
	}
	for pair := o.fields.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

func (o *Object) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	var err error
	first := true
	o.Each(func(key string, v Value) bool {
		if !first {
			buf = append(buf, ',')
		}
		first = false
		if buf, err = appendString(buf, key); err != nil {
			return false
		}
		buf = append(buf, ':')
		var b []byte
		if b, err = marshal(v); err != nil {
			return false
		}
		buf = append(buf, b...)
		return true
	})
	if err != nil {
		return nil, err
	}
	return append(buf, '}'), nil
}

// UnmarshalJSON replaces the contents of o with the decoded object.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := Parse(data)
	if err != nil {
		return err
	}
	obj, ok := v.(*Object)
	if !ok {
		return &KindError{Want: KindObject, Got: v.Kind()}
	}
	o.fields = obj.fields
	return nil
}

// Literal renders v as compact JSON. It is the JSON-literal form used by the
// status formatter and never fails for values built by this package.
func Literal(v Value) string {
	b, err := marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func marshal(v Value) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return v.MarshalJSON()
}

// appendString appends s as a JSON string without HTML escaping, matching
// what browser JSON serialisers produce.
func appendString(dst []byte, s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return append(dst, bytes.TrimRight(buf.Bytes(), "\n")...), nil
}

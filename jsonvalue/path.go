package jsonvalue

import (
	"strconv"
	"strings"
)

// SplitPath splits a slash-delimited path address into its segments.
// Leading, trailing and repeated slashes are ignored, so "", "/" and
// "args//" address the root and "args" respectively.
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

// JoinPath joins segments into a normalised path address.
func JoinPath(segs ...string) string {
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		out = append(out, SplitPath(s)...)
	}
	return strings.Join(out, "/")
}

// Lookup resolves a path address inside v. Object fields are addressed by
// key and array elements by decimal index.
func Lookup(v Value, path string) (Value, bool) {
	cur := v
	for _, seg := range SplitPath(path) {
		switch node := cur.(type) {
		case *Object:
			next, ok := node.Get(seg)
			if !ok {
				return nil, false
			}
			cur = next
		case Array:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// Equal reports whether a and b are the same tree. Object key order is
// significant.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case Array:
		y := b.(Array)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case *Object:
		y := b.(*Object)
		if x.Len() != y.Len() {
			return false
		}
		xk, yk := x.Keys(), y.Keys()
		for i, k := range xk {
			if yk[i] != k {
				return false
			}
			xv, _ := x.Get(k)
			yv, _ := y.Get(k)
			if !Equal(xv, yv) {
				return false
			}
		}
		return true
	default:
		return Literal(a) == Literal(b)
	}
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	switch x := v.(type) {
	case Array:
		out := make(Array, len(x))
		for i, elem := range x {
			out[i] = Clone(elem)
		}
		return out
	case *Object:
		out := NewObject()
		x.Each(func(k string, elem Value) bool {
			out.Set(k, Clone(elem))
			return true
		})
		return out
	default:
		return v
	}
}

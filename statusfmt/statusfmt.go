// Package statusfmt renders JSON status trees as indented, human-readable
// text for read-only status panels.
//
// Given the document
//
//	{"status":{"executing":false,"frames_written":120},"endpoints":["tcp://a","tcp://b"]}
//
// [Format] produces
//
//	"status: \n" +
//	"    executing: false\n" +
//	"    frames_written: 120\n" +
//	"endpoints: [\"tcp://a\",\"tcp://b\"]\n"
//
// Every key is followed by ": ", including keys whose value is an object,
// so those lines end in a space before the line break.
//
// Output is deterministic: keys appear in document order and each key yields
// exactly one line, so the line count equals the number of keys at every
// nesting level.
package statusfmt

import (
	"strings"

	"github.com/jpalmerr/munirpanel/jsonvalue"
)

// Indent is the text added per nesting level.
const Indent = "    "

// Format renders v starting at nesting level zero.
func Format(v jsonvalue.Value) string {
	return FormatIndent(v, 0)
}

// FormatIndent renders v with every line indented by level units of [Indent].
//
// Objects produce one "key: " line per field. A primitive field is followed
// by its JSON literal, an array field by its bracketed, comma-joined element
// literals, and an object field by a line break and the nested fields at
// level+1. A value that is not an object renders as its literal on one line.
//
// v must be a finite tree. Values built by package jsonvalue always are.
func FormatIndent(v jsonvalue.Value, level int) string {
	if level < 0 {
		level = 0
	}
	f := &formatter{level: level}
	if obj, ok := v.(*jsonvalue.Object); ok {
		f.fields(obj)
	} else {
		f.line(jsonvalue.Literal(v))
	}
	return f.sb.String()
}

// formatter writes one object level at a time. It implements
// jsonvalue.Visitor to render the value half of a "key: value" line.
type formatter struct {
	sb    strings.Builder
	level int
}

func (f *formatter) fields(obj *jsonvalue.Object) {
	obj.Each(func(key string, v jsonvalue.Value) bool {
		f.sb.WriteString(strings.Repeat(Indent, f.level))
		f.sb.WriteString(key)
		f.sb.WriteString(": ")
		if v == nil {
			f.VisitNull()
		} else {
			v.Accept(f)
		}
		return true
	})
}

func (f *formatter) line(s string) {
	f.sb.WriteString(strings.Repeat(Indent, f.level))
	f.sb.WriteString(s)
	f.sb.WriteByte('\n')
}

func (f *formatter) literal(v jsonvalue.Value) {
	f.sb.WriteString(jsonvalue.Literal(v))
	f.sb.WriteByte('\n')
}

func (f *formatter) VisitNull()                     { f.literal(jsonvalue.Null{}) }
func (f *formatter) VisitBool(b jsonvalue.Bool)     { f.literal(b) }
func (f *formatter) VisitNumber(n jsonvalue.Number) { f.literal(n) }
func (f *formatter) VisitString(s jsonvalue.String) { f.literal(s) }

func (f *formatter) VisitArray(a jsonvalue.Array) {
	parts := make([]string, len(a))
	for i, elem := range a {
		parts[i] = jsonvalue.Literal(elem)
	}
	f.sb.WriteByte('[')
	f.sb.WriteString(strings.Join(parts, ","))
	f.sb.WriteString("]\n")
}

func (f *formatter) VisitObject(o *jsonvalue.Object) {
	f.sb.WriteByte('\n')
	f.level++
	f.fields(o)
	f.level--
}

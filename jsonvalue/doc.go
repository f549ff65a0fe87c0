// Package jsonvalue provides a tagged-union representation of JSON documents
// whose shape is not known ahead of time.
//
// Adapter documents are arbitrary trees: the panel never decodes them into
// fixed structs. Instead every node is a [Value], which is exactly one of
// [Null], [Bool], [Number], [String], [Array] or [*Object]. Code that needs to
// handle every kind implements [Visitor]; adding a kind adds a Visitor method,
// so the compiler points at every traversal that must be updated.
//
// Objects preserve the key order of the document they were parsed from, and
// numbers keep their literal text, so a parsed document marshals back to the
// same compact JSON:
//
//	v, err := jsonvalue.Parse([]byte(`{"args":{"file_name":"a.h5","num_frames":1000}}`))
//	name, ok := jsonvalue.Lookup(v, "args/file_name")
//
// Values are trees. They cannot contain cycles, and a Value that has been
// published to other goroutines must be treated as read-only.
package jsonvalue

package jsonvalue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPath(t *testing.T) {
	assert.Empty(t, SplitPath(""))
	assert.Empty(t, SplitPath("/"))
	assert.Equal(t, []string{"args", "file_name"}, SplitPath("/args//file_name/"))
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "subsystems/fp1/args/file_name", JoinPath("subsystems/", "/fp1", "args/file_name"))
	assert.Equal(t, "", JoinPath("", "/"))
}

func TestLookup(t *testing.T) {
	doc := MustParse(`{"args":{"file_name":"a.h5"},"frame_procs":{"status":[{"hdf":{"writing":true}}]}}`)

	v, ok := Lookup(doc, "args/file_name")
	require.True(t, ok)
	assert.Equal(t, String("a.h5"), v)

	v, ok = Lookup(doc, "frame_procs/status/0/hdf/writing")
	require.True(t, ok)
	assert.Equal(t, Bool(true), v)

	v, ok = Lookup(doc, "")
	require.True(t, ok)
	assert.Same(t, doc.(*Object), v.(*Object))

	for _, missing := range []string{"args/nope", "frame_procs/status/1", "frame_procs/status/x", "args/file_name/deeper"} {
		_, ok := Lookup(doc, missing)
		assert.False(t, ok, "path %q", missing)
	}
}

func TestEqual(t *testing.T) {
	a := MustParse(`{"a":[1,{"b":"c"}],"d":null}`)
	assert.True(t, Equal(a, MustParse(`{"a":[1,{"b":"c"}],"d":null}`)))
	assert.False(t, Equal(a, MustParse(`{"d":null,"a":[1,{"b":"c"}]}`)), "key order is significant")
	assert.False(t, Equal(a, MustParse(`{"a":[1,{"b":"x"}],"d":null}`)))
	assert.False(t, Equal(a, MustParse(`[1]`)))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(a, nil))
}

func TestClone_IsDeep(t *testing.T) {
	orig := MustParse(`{"args":{"file_name":"a.h5"},"list":[{"x":1}]}`)
	cp := Clone(orig)
	require.True(t, Equal(orig, cp))

	args, _ := Lookup(cp, "args")
	args.(*Object).Set("file_name", String("b.h5"))

	v, _ := Lookup(orig, "args/file_name")
	assert.Equal(t, String("a.h5"), v)
}

package mockadapter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jpalmerr/munirpanel/jsonvalue"
)

// ParamError is returned for requests the parameter tree rejects. It maps
// to a 400 response carrying {"error": Message}.
type ParamError struct {
	Message string
}

func (e *ParamError) Error() string {
	return e.Message
}

func paramErrorf(format string, args ...any) error {
	return &ParamError{Message: fmt.Sprintf(format, args...)}
}

// IsParamError reports whether err was raised by the parameter tree.
func IsParamError(err error) bool {
	var pe *ParamError
	return errors.As(err, &pe)
}

// acquisition simulates frames being written after an execute trigger.
type acquisition struct {
	running   bool
	startedAt time.Time
	total     int64
	frames    int64
	lvFrames  int64
}

// framesAt advances the acquisition to now and returns the frames written.
func (a *acquisition) framesAt(now time.Time, frameInterval time.Duration) int64 {
	if !a.running {
		return a.frames
	}
	n := int64(now.Sub(a.startedAt) / frameInterval)
	if n >= a.total {
		n = a.total
		a.running = false
	}
	a.frames = n
	return n
}

func newSubsystemTree(endpoints []string) *jsonvalue.Object {
	eps := make(jsonvalue.Array, 0, len(endpoints))
	for _, ep := range endpoints {
		eps = append(eps, jsonvalue.String(ep))
	}

	args := jsonvalue.NewObject()
	args.Set("file_path", jsonvalue.String("/tmp/"))
	args.Set("file_name", jsonvalue.String("test"))
	args.Set("num_frames", jsonvalue.Number("1000"))
	args.Set("num_batches", jsonvalue.Number("1"))

	status := jsonvalue.NewObject()
	status.Set("executing", jsonvalue.Bool(false))
	status.Set("frames_written", jsonvalue.Number("0"))

	procs := jsonvalue.NewObject()
	procs.Set("status", jsonvalue.Array{})

	tree := jsonvalue.NewObject()
	tree.Set("endpoints", eps)
	tree.Set("stop_execute", jsonvalue.Null{})
	tree.Set("start_lv_frames", jsonvalue.Null{})
	tree.Set("timeout", jsonvalue.Number("1.0"))
	tree.Set("args", args)
	tree.Set("status", status)
	tree.Set("frame_procs", procs)
	return tree
}

// write is one leaf assignment collected while applying a PUT.
type write struct {
	path  []string
	value jsonvalue.Value
}

// applier merges a PUT body into a tree, collecting the leaves it touched.
type applier struct {
	readOnly func(path []string) bool
	writes   []write
}

// apply merges data into the node at path below root. A leaf path accepts
// either the bare value or {"<leaf>": value}; an object path accepts an
// object whose keys must already exist.
func (ap *applier) apply(root *jsonvalue.Object, path []string, data jsonvalue.Value) error {
	if len(path) == 0 {
		return ap.merge(root, nil, data)
	}

	parent := root
	for i, seg := range path[:len(path)-1] {
		next, ok := parent.Get(seg)
		if !ok {
			return paramErrorf("Invalid path: %s", strings.Join(path[:i+1], "/"))
		}
		obj, ok := next.(*jsonvalue.Object)
		if !ok {
			return paramErrorf("Invalid path: %s", strings.Join(path, "/"))
		}
		parent = obj
	}

	key := path[len(path)-1]
	current, ok := parent.Get(key)
	if !ok {
		return paramErrorf("Invalid path: %s", strings.Join(path, "/"))
	}

	if obj, isObj := current.(*jsonvalue.Object); isObj {
		return ap.merge(obj, path, data)
	}

	if wrapped, isObj := data.(*jsonvalue.Object); isObj && wrapped.Len() == 1 {
		if inner, ok := wrapped.Get(key); ok {
			data = inner
		}
	}
	return ap.assign(parent, path, current, data)
}

func (ap *applier) merge(node *jsonvalue.Object, path []string, data jsonvalue.Value) error {
	obj, ok := data.(*jsonvalue.Object)
	if !ok {
		return paramErrorf("Type mismatch setting %s: got %s expected object", displayPath(path), data.Kind())
	}

	var err error
	obj.Each(func(key string, v jsonvalue.Value) bool {
		child := append(append([]string(nil), path...), key)
		current, exists := node.Get(key)
		if !exists {
			err = paramErrorf("Invalid path: %s", strings.Join(child, "/"))
			return false
		}
		if sub, isObj := current.(*jsonvalue.Object); isObj {
			err = ap.merge(sub, child, v)
		} else {
			err = ap.assign(node, child, current, v)
		}
		return err == nil
	})
	return err
}

func (ap *applier) assign(parent *jsonvalue.Object, path []string, current, value jsonvalue.Value) error {
	if ap.readOnly(path) {
		return paramErrorf("Parameter %s is read-only", strings.Join(path, "/"))
	}
	if current.Kind() != jsonvalue.KindNull && current.Kind() != value.Kind() {
		return paramErrorf("Type mismatch setting %s: got %s expected %s",
			strings.Join(path, "/"), value.Kind(), current.Kind())
	}
	parent.Set(path[len(path)-1], value)
	ap.writes = append(ap.writes, write{path: path, value: value})
	return nil
}

func displayPath(path []string) string {
	if len(path) == 0 {
		return "/"
	}
	return strings.Join(path, "/")
}

// wrap returns the response body for a request at path: the whole tree at
// the root, otherwise {"<last segment>": subtree}.
func wrap(path []string, v jsonvalue.Value) jsonvalue.Value {
	if len(path) == 0 {
		return v
	}
	obj := jsonvalue.NewObject()
	obj.Set(path[len(path)-1], v)
	return obj
}

// Package munir drives the Munir acquisition parameter tree through a
// [Client].
//
// The adapter exposes the tree either flat (args, status, execute at the
// resource root) or, in frame-processor mode, once per subsystem under
// subsystems/<name> with the start trigger at execute/<name>. A [Controller]
// created with [WithSubsystem] addresses the latter layout.
//
// Text-field setters go through the client's debounced edit path, so they
// can be called on every keystroke. Commands are sent immediately.
package munir

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jpalmerr/munirpanel/jsonvalue"
)

// Parameter paths relative to a subsystem tree.
const (
	PathArgs          = "args"
	PathFilePath      = "args/file_path"
	PathFileName      = "args/file_name"
	PathNumFrames     = "args/num_frames"
	PathNumBatches    = "args/num_batches"
	PathStatus        = "status"
	PathTimeout       = "timeout"
	PathStopExecute   = "stop_execute"
	PathStartLVFrames = "start_lv_frames"
	PathExecute       = "execute"
	PathFrameProcs    = "frame_procs/status"
)

// ErrNoDocument is returned when no document has been fetched yet.
var ErrNoDocument = errors.New("no document fetched yet")

// Client is the session surface the controller needs.
type Client interface {
	Document() jsonvalue.Value
	Put(ctx context.Context, path string, partial any) <-chan error
	Edit(path string, value any) error
}

// Args are the acquisition arguments.
type Args struct {
	FilePath   string `json:"file_path"`
	FileName   string `json:"file_name"`
	NumFrames  int64  `json:"num_frames"`
	NumBatches int64  `json:"num_batches"`
}

// Validate checks the arguments before they are sent.
func (a Args) Validate() error {
	var errs []error
	if strings.TrimSpace(a.FilePath) == "" {
		errs = append(errs, errors.New("file_path is required"))
	}
	if strings.TrimSpace(a.FileName) == "" {
		errs = append(errs, errors.New("file_name is required"))
	}
	if a.NumFrames <= 0 {
		errs = append(errs, fmt.Errorf("num_frames must be positive, got %d", a.NumFrames))
	}
	if a.NumBatches <= 0 {
		errs = append(errs, fmt.Errorf("num_batches must be positive, got %d", a.NumBatches))
	}
	return errors.Join(errs...)
}

// Status is the acquisition state reported by the adapter.
type Status struct {
	Args          Args
	Executing     bool
	FramesWritten int64
	Timeout       float64
	Endpoints     []string
	FrameProcs    []FrameProc
}

// FrameProc is the writer state one frame processor reports under
// frame_procs/status.
type FrameProc struct {
	Writing        bool
	FramesWritten  int64
	LiveViewFrames int64
}

// Progress returns the fraction of the requested frames written, in [0, 1].
func (s Status) Progress() float64 {
	total := s.Args.NumFrames * s.Args.NumBatches
	if total <= 0 {
		return 0
	}
	p := float64(s.FramesWritten) / float64(total)
	if p > 1 {
		return 1
	}
	return p
}

// Option configures a [Controller].
type Option func(*Controller)

// WithSubsystem addresses the frame-processor layout for the named
// subsystem.
func WithSubsystem(name string) Option {
	return func(c *Controller) { c.subsystem = strings.Trim(name, "/") }
}

// Controller issues Munir configuration changes and commands.
type Controller struct {
	client    Client
	subsystem string
}

// NewController creates a controller on top of client.
func NewController(client Client, opts ...Option) *Controller {
	c := &Controller{client: client}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subsystem returns the frame-processor subsystem name, "" in flat mode.
func (c *Controller) Subsystem() string {
	return c.subsystem
}

// Path maps a subsystem-relative parameter path to its document path.
func (c *Controller) Path(rel string) string {
	if c.subsystem == "" {
		return jsonvalue.JoinPath(rel)
	}
	return jsonvalue.JoinPath("subsystems", c.subsystem, rel)
}

// SetFilePath records an edit of the output directory.
func (c *Controller) SetFilePath(v string) error {
	return c.client.Edit(c.Path(PathFilePath), v)
}

// SetFileName records an edit of the output file name.
func (c *Controller) SetFileName(v string) error {
	return c.client.Edit(c.Path(PathFileName), v)
}

// SetNumFrames records an edit of the frames per batch.
func (c *Controller) SetNumFrames(n int64) error {
	if n <= 0 {
		return fmt.Errorf("num_frames must be positive, got %d", n)
	}
	return c.client.Edit(c.Path(PathNumFrames), n)
}

// SetNumBatches records an edit of the batch count.
func (c *Controller) SetNumBatches(n int64) error {
	if n <= 0 {
		return fmt.Errorf("num_batches must be positive, got %d", n)
	}
	return c.client.Edit(c.Path(PathNumBatches), n)
}

// SetArg records an edit of the named argument from text input. Integer
// arguments are parsed.
func (c *Controller) SetArg(name, text string) error {
	switch name {
	case "file_path":
		return c.SetFilePath(text)
	case "file_name":
		return c.SetFileName(text)
	case "num_frames", "num_batches":
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", name, err)
		}
		if name == "num_frames" {
			return c.SetNumFrames(n)
		}
		return c.SetNumBatches(n)
	}
	return fmt.Errorf("unknown argument %q", name)
}

// Configure writes all arguments in one request.
func (c *Controller) Configure(ctx context.Context, args Args) <-chan error {
	if err := args.Validate(); err != nil {
		return failed(err)
	}
	return c.client.Put(ctx, c.Path(PathArgs), args)
}

// Start triggers an acquisition with the current arguments.
func (c *Controller) Start(ctx context.Context) <-chan error {
	if c.subsystem == "" {
		return c.client.Put(ctx, PathExecute, map[string]any{"execute": true})
	}
	return c.client.Put(ctx, PathExecute, map[string]any{c.subsystem: true})
}

// Stop asks the adapter to end the running acquisition.
func (c *Controller) Stop(ctx context.Context) <-chan error {
	return c.client.Put(ctx, c.Path(PathStopExecute), map[string]any{"stop_execute": true})
}

// StartLiveView requests frames for the live view.
func (c *Controller) StartLiveView(ctx context.Context, frames int64) <-chan error {
	if frames < 0 {
		return failed(fmt.Errorf("live view frames must not be negative, got %d", frames))
	}
	return c.client.Put(ctx, c.Path(PathStartLVFrames), map[string]any{"start_lv_frames": frames})
}

// SetTimeout sets the control timeout in seconds.
func (c *Controller) SetTimeout(ctx context.Context, seconds float64) <-chan error {
	if seconds <= 0 {
		return failed(fmt.Errorf("timeout must be positive, got %g", seconds))
	}
	return c.client.Put(ctx, c.Path(PathTimeout), map[string]any{"timeout": seconds})
}

// Status decodes the acquisition state from the latest document.
func (c *Controller) Status() (Status, error) {
	doc := c.client.Document()
	if doc == nil {
		return Status{}, ErrNoDocument
	}
	tree, ok := jsonvalue.Lookup(doc, c.Path(""))
	if !ok {
		return Status{}, fmt.Errorf("subsystem %q not in document", c.subsystem)
	}

	d := decoder{root: tree}
	st := Status{
		Args: Args{
			FilePath:   d.str(PathFilePath),
			FileName:   d.str(PathFileName),
			NumFrames:  d.integer(PathNumFrames),
			NumBatches: d.integer(PathNumBatches),
		},
		Executing:     d.boolean("status/executing"),
		FramesWritten: d.integer("status/frames_written"),
		Timeout:       d.float(PathTimeout),
		Endpoints:     d.strs("endpoints"),
		FrameProcs:    d.frameProcs(PathFrameProcs),
	}
	if d.err != nil {
		return st, d.err
	}
	return st, nil
}

// decoder reads typed leaves, keeping the first mismatch.
type decoder struct {
	root jsonvalue.Value
	err  error
}

func (d *decoder) leaf(path string, kind jsonvalue.Kind) jsonvalue.Value {
	v, ok := jsonvalue.Lookup(d.root, path)
	if !ok {
		return nil
	}
	if v.Kind() != kind {
		if d.err == nil {
			d.err = fmt.Errorf("%s: expected %s, got %s", path, kind, v.Kind())
		}
		return nil
	}
	return v
}

func (d *decoder) str(path string) string {
	if v, ok := d.leaf(path, jsonvalue.KindString).(jsonvalue.String); ok {
		return string(v)
	}
	return ""
}

func (d *decoder) boolean(path string) bool {
	if v, ok := d.leaf(path, jsonvalue.KindBool).(jsonvalue.Bool); ok {
		return bool(v)
	}
	return false
}

func (d *decoder) integer(path string) int64 {
	v, ok := d.leaf(path, jsonvalue.KindNumber).(jsonvalue.Number)
	if !ok {
		return 0
	}
	n, err := v.Int64()
	if err != nil {
		// tolerate 1000.0
		f, ferr := v.Float64()
		if ferr != nil && d.err == nil {
			d.err = fmt.Errorf("%s: %w", path, err)
		}
		return int64(f)
	}
	return n
}

func (d *decoder) float(path string) float64 {
	v, ok := d.leaf(path, jsonvalue.KindNumber).(jsonvalue.Number)
	if !ok {
		return 0
	}
	f, err := v.Float64()
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("%s: %w", path, err)
	}
	return f
}

func (d *decoder) strs(path string) []string {
	arr, ok := d.leaf(path, jsonvalue.KindArray).(jsonvalue.Array)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(jsonvalue.String); ok {
			out = append(out, string(s))
		}
	}
	return out
}

// frameProcs decodes the per-processor status list. Processors that have
// not reported yet appear as null or {} and decode to the zero value.
func (d *decoder) frameProcs(path string) []FrameProc {
	arr, ok := d.leaf(path, jsonvalue.KindArray).(jsonvalue.Array)
	if !ok {
		return nil
	}
	out := make([]FrameProc, 0, len(arr))
	for i, v := range arr {
		if _, ok := v.(*jsonvalue.Object); !ok {
			out = append(out, FrameProc{})
			continue
		}
		fd := decoder{root: v}
		fp := FrameProc{
			Writing:        fd.boolean("hdf/writing"),
			FramesWritten:  fd.integer("hdf/frames_written"),
			LiveViewFrames: fd.integer("liveview/frames"),
		}
		if fd.err != nil && d.err == nil {
			d.err = fmt.Errorf("%s[%d]: %w", path, i, fd.err)
		}
		out = append(out, fp)
	}
	return out
}

func failed(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	close(ch)
	return ch
}

package munir

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/munirpanel/jsonvalue"
)

type put struct {
	Path string
	Body string
}

type fakeClient struct {
	doc   jsonvalue.Value
	puts  []put
	edits map[string]any
}

func newFakeClient(doc string) *fakeClient {
	c := &fakeClient{edits: make(map[string]any)}
	if doc != "" {
		c.doc = jsonvalue.MustParse(doc)
	}
	return c
}

func (f *fakeClient) Document() jsonvalue.Value { return f.doc }

func (f *fakeClient) Put(_ context.Context, path string, partial any) <-chan error {
	body, err := json.Marshal(partial)
	if err != nil {
		return failed(err)
	}
	f.puts = append(f.puts, put{Path: path, Body: string(body)})
	return failed(nil)
}

func (f *fakeClient) Edit(path string, value any) error {
	f.edits[path] = value
	return nil
}

const flatDoc = `{
	"endpoints": ["tcp://127.0.0.1:5004"],
	"stop_execute": null,
	"start_lv_frames": null,
	"timeout": 1.0,
	"args": {"file_path": "/tmp/", "file_name": "test", "num_frames": 1000, "num_batches": 2},
	"status": {"executing": true, "frames_written": 500},
	"frame_procs": {"status": [
		{"hdf": {"writing": true, "frames_written": 500}, "liveview": {"frames": 3}},
		null
	]},
	"execute": true
}`

func TestController_Path(t *testing.T) {
	flat := NewController(newFakeClient(""))
	assert.Equal(t, "args/file_name", flat.Path(PathFileName))
	assert.Equal(t, "", flat.Path(""))

	fp := NewController(newFakeClient(""), WithSubsystem("hibirds"))
	assert.Equal(t, "hibirds", fp.Subsystem())
	assert.Equal(t, "subsystems/hibirds/args/file_name", fp.Path(PathFileName))
	assert.Equal(t, "subsystems/hibirds", fp.Path(""))
}

func TestController_Setters(t *testing.T) {
	client := newFakeClient("")
	c := NewController(client)

	require.NoError(t, c.SetFilePath("/data/"))
	require.NoError(t, c.SetFileName("run1.h5"))
	require.NoError(t, c.SetNumFrames(10))
	require.NoError(t, c.SetNumBatches(3))

	assert.Equal(t, map[string]any{
		"args/file_path":   "/data/",
		"args/file_name":   "run1.h5",
		"args/num_frames":  int64(10),
		"args/num_batches": int64(3),
	}, client.edits)
	assert.Empty(t, client.puts, "setters are debounced edits")

	assert.Error(t, c.SetNumFrames(0))
	assert.Error(t, c.SetNumBatches(-1))
}

func TestController_SetArg(t *testing.T) {
	client := newFakeClient("")
	c := NewController(client, WithSubsystem("hibirds"))

	require.NoError(t, c.SetArg("num_frames", " 250 "))
	require.NoError(t, c.SetArg("file_name", "x.h5"))
	assert.Equal(t, int64(250), client.edits["subsystems/hibirds/args/num_frames"])
	assert.Equal(t, "x.h5", client.edits["subsystems/hibirds/args/file_name"])

	assert.Error(t, c.SetArg("num_frames", "lots"))
	assert.Error(t, c.SetArg("colour", "red"))
}

func TestController_Commands(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		opts []Option
		run  func(c *Controller) <-chan error
		want put
	}{
		{"start flat", nil, func(c *Controller) <-chan error { return c.Start(ctx) },
			put{"execute", `{"execute":true}`}},
		{"start fp", []Option{WithSubsystem("hibirds")}, func(c *Controller) <-chan error { return c.Start(ctx) },
			put{"execute", `{"hibirds":true}`}},
		{"stop", nil, func(c *Controller) <-chan error { return c.Stop(ctx) },
			put{"stop_execute", `{"stop_execute":true}`}},
		{"stop fp", []Option{WithSubsystem("hibirds")}, func(c *Controller) <-chan error { return c.Stop(ctx) },
			put{"subsystems/hibirds/stop_execute", `{"stop_execute":true}`}},
		{"liveview", nil, func(c *Controller) <-chan error { return c.StartLiveView(ctx, 5) },
			put{"start_lv_frames", `{"start_lv_frames":5}`}},
		{"timeout", nil, func(c *Controller) <-chan error { return c.SetTimeout(ctx, 2.5) },
			put{"timeout", `{"timeout":2.5}`}},
		{"configure", nil, func(c *Controller) <-chan error {
			return c.Configure(ctx, Args{FilePath: "/data/", FileName: "a.h5", NumFrames: 10, NumBatches: 1})
		}, put{"args", `{"file_path":"/data/","file_name":"a.h5","num_frames":10,"num_batches":1}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient("")
			c := NewController(client, tt.opts...)

			require.NoError(t, <-tt.run(c))
			require.Len(t, client.puts, 1)
			assert.Equal(t, tt.want, client.puts[0])
		})
	}
}

func TestController_CommandValidation(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient("")
	c := NewController(client)

	assert.Error(t, <-c.Configure(ctx, Args{FileName: "a.h5", NumFrames: 1, NumBatches: 1}))
	assert.Error(t, <-c.StartLiveView(ctx, -1))
	assert.Error(t, <-c.SetTimeout(ctx, 0))
	assert.Empty(t, client.puts)
}

func TestArgs_ValidateJoinsErrors(t *testing.T) {
	err := Args{}.Validate()
	require.Error(t, err)
	for _, want := range []string{"file_path", "file_name", "num_frames", "num_batches"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestController_Status(t *testing.T) {
	c := NewController(newFakeClient(flatDoc))

	st, err := c.Status()
	require.NoError(t, err)

	want := Status{
		Args:          Args{FilePath: "/tmp/", FileName: "test", NumFrames: 1000, NumBatches: 2},
		Executing:     true,
		FramesWritten: 500,
		Timeout:       1.0,
		Endpoints:     []string{"tcp://127.0.0.1:5004"},
		FrameProcs: []FrameProc{
			{Writing: true, FramesWritten: 500, LiveViewFrames: 3},
			{},
		},
	}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("Status() mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 0.25, st.Progress(), 1e-9)
}

func TestController_StatusSubsystem(t *testing.T) {
	doc := `{"subsystem_list":["hibirds"],"subsystems":{"hibirds":` + flatDoc + `},"execute":{"hibirds":true}}`
	c := NewController(newFakeClient(doc), WithSubsystem("hibirds"))

	st, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, "test", st.Args.FileName)

	missing := NewController(newFakeClient(doc), WithSubsystem("spare"))
	_, err = missing.Status()
	assert.Error(t, err)
}

func TestController_StatusErrors(t *testing.T) {
	_, err := NewController(newFakeClient("")).Status()
	assert.ErrorIs(t, err, ErrNoDocument)

	_, err = NewController(newFakeClient(`{"args":{"file_name":7}}`)).Status()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "args/file_name")

	_, err = NewController(newFakeClient(`{"frame_procs":{"status":[{"hdf":{"writing":"yes"}}]}}`)).Status()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame_procs/status[0]: hdf/writing")
}

func TestStatus_Progress(t *testing.T) {
	assert.Zero(t, Status{}.Progress())
	assert.Equal(t, 1.0, Status{Args: Args{NumFrames: 10, NumBatches: 1}, FramesWritten: 20}.Progress())
}

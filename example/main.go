// Demo of the munirpanel SDK against an in-process mock adapter.
//
// Usage:
//
//	go run ./example
//
// Or run the adapter and panel separately:
//
//	go run ./cmd/munirpanel mock-adapter --addr :8888
//	go run ./cmd/munirpanel serve -c example/config.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/munirpanel"
	"github.com/jpalmerr/munirpanel/internal/mockadapter"
	"github.com/jpalmerr/munirpanel/munir"
)

const adapterAddr = "localhost:8888"

func main() {
	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapter := mockadapter.New(mockadapter.WithFrameInterval(5 * time.Millisecond))
	go func() {
		if err := adapter.Serve(ctx, adapterAddr); err != nil {
			slog.Error("mock adapter error", "error", err)
			stop()
		}
	}()
	time.Sleep(100 * time.Millisecond)

	base := "http://" + adapterAddr + mockadapter.BasePath()

	// log acquisition progress from a session of our own
	sess, err := munirpanel.Connect(ctx, "munir", base,
		munirpanel.WithSnapshotCallback(func(s munirpanel.Snapshot) {
			if v, ok := s.Lookup("status/frames_written"); ok && s.OK() {
				slog.Debug("progress", "frames_written", v)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer sess.Close()

	ctrl := munir.NewController(sess)
	if err := <-ctrl.Configure(ctx, munir.Args{
		FilePath:   "/tmp/",
		FileName:   "demo.h5",
		NumFrames:  2000,
		NumBatches: 1,
	}); err != nil {
		slog.Error("failed to configure acquisition", "error", err)
		os.Exit(1)
	}

	panel, err := munirpanel.New(base,
		munirpanel.WithTitle("Munir Demo"),
		munirpanel.WithPort(8080),
	)
	if err != nil {
		slog.Error("failed to create panel", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  Munir panel demo")
	fmt.Println()
	fmt.Println("  Open http://localhost:8080 in your browser and press Start.")
	fmt.Println("  Mock adapter: " + base + "/munir")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	if err := panel.Start(ctx); err != nil {
		slog.Error("panel error", "error", err)
		os.Exit(1)
	}
}

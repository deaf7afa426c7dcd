package instrumentation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStartTraceWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playback.trace")

	tr, err := StartTrace(path)
	if err != nil {
		t.Fatalf("StartTrace: %v", err)
	}
	if tr.Path() != path {
		t.Errorf("Path() = %q, want %q", tr.Path(), path)
	}

	ctx, end := Task(context.Background(), "playback")
	for i := 0; i < 3; i++ {
		done := Region(ctx, "driving")
		Logf(ctx, "frame", "%d", i)
		done()
	}
	end()

	if _, err := StartTrace(filepath.Join(t.TempDir(), "second.trace")); err != ErrTraceActive {
		t.Errorf("second StartTrace error = %v, want ErrTraceActive", err)
	}

	if err := tr.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := tr.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat trace: %v", err)
	}
	if info.Size() == 0 {
		t.Error("trace file is empty")
	}
}

func TestRegionsWithoutTrace(t *testing.T) {
	ctx, end := Task(context.Background(), "playback")
	defer end()
	Region(ctx, "waiting")()
	Logf(ctx, "state", "no trace running")
}

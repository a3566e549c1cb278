package log

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

var (
	sampleInt      = 3
	sampleBytes    = []byte("123")
	sampleList     = []int64{10, 0, -10}
	sampleDuration = time.Second
	sampleTime     = time.Unix(12345678, 0)

	errSample = errors.New("some error")
)

func doLogs() {
	// Some sample logs from existing code.
	Infof("accumulated %d orders into batch %x", sampleInt, sampleBytes)
	Debugw("computation queued", "circuit", "accumulate_order", "user", "0xabc123")
	Errorf("cannot commit batch log: %v", errSample)
	Warnw("various types",
		"list", sampleList,
		"duration", sampleDuration,
		"time", sampleTime,
	)
	Error(errSample)
}

func TestCheckInvalidChars(t *testing.T) {
	t.Cleanup(func() { panicOnInvalidChars = false })

	v := []byte{'h', 'e', 'l', 'l', 'o', 0xff, 'w', 'o', 'r', 'l', 'd'}
	panicOnInvalidChars = false
	Init("debug", "stderr", nil)
	Debugf("%s", v)
	// should not panic since env var is false. if it panics, test will fail

	// now enable panic and try again: should recover() and never reach t.Errorf()
	panicOnInvalidChars = true
	Init("debug", "stderr", nil)
	defer func() { recover() }()
	Debugf("%s", v)
	t.Errorf("Debugf(%s) should have panicked because of invalid char", v)
}

func TestErrorOutput(t *testing.T) {
	c := qt.New(t)
	var out, errOut bytes.Buffer
	logTestWriter = &out
	t.Cleanup(func() { Init(LogLevelError, "stderr", nil) })

	Init(LogLevelInfo, logTestWriterName, &errOut)
	c.Assert(Level(), qt.Equals, LogLevelInfo)
	Debugw("hidden", "batchID", 1)
	Infow("batch seeding queued", "batchID", 2)
	Warnw("failed to execute swaps", "batchID", 3)

	c.Assert(out.String(), qt.Not(qt.Contains), "hidden")
	c.Assert(out.String(), qt.Contains, "batch seeding queued")
	c.Assert(out.String(), qt.Contains, "failed to execute swaps")
	c.Assert(errOut.String(), qt.Not(qt.Contains), "batch seeding queued")
	c.Assert(errOut.String(), qt.Contains, "failed to execute swaps")
}

func TestFileOutput(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "node.log")
	t.Cleanup(func() { Init(LogLevelError, "stderr", nil) })

	Init(LogLevelWarn, path, nil)
	c.Assert(Level(), qt.Equals, LogLevelWarn)
	Errorw(errSample, "cannot commit batch log")

	data, err := os.ReadFile(path)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Contains, "cannot commit batch log")
	c.Assert(string(data), qt.Contains, errSample.Error())
}

func BenchmarkLogger(b *testing.B) {
	logTestWriter = io.Discard // to not grow a buffer
	Init("debug", logTestWriterName, nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		doLogs()
	}
}

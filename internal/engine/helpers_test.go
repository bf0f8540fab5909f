package engine

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xqcore/internal/compiler"
	"github.com/roach88/xqcore/internal/value"
)

// loadPlan loads the plan at "plan.<name>" of src.
func loadPlan(t *testing.T, src, name string) *compiler.Plan {
	t.Helper()
	v := cuecontext.New().CompileString(src, cue.Filename("plan.cue"))
	require.NoError(t, v.Err())
	p, err := compiler.LoadPlan(v.LookupPath(cue.ParsePath("plan." + name)))
	require.NoError(t, err)
	return p
}

// newTestEngine returns an engine with fixed query ids and a silent logger.
func newTestEngine(opts ...EngineOption) *Engine {
	base := []EngineOption{
		WithIDGenerator(NewFixedGenerator("q-1", "q-2", "q-3", "q-4", "q-5", "q-6")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(append(base, opts...)...)
}

// bufferLogger returns a JSON logger writing to the returned buffer.
func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func ints(t *testing.T, s value.Seq) []int64 {
	t.Helper()
	out := []int64{}
	for i := range s.Len() {
		n, ok := s.At(i).(value.Int)
		require.True(t, ok, "item %d is %T", i, s.At(i))
		out = append(out, int64(n))
	}
	return out
}

package telemetry_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vito/progrock"
	"go.trai.ch/codev/internal/adapters/telemetry"
	"go.trai.ch/codev/internal/core/ports"
)

// tape keeps the latest state of every vertex written to it.
type tape struct {
	mu       sync.Mutex
	vertices map[string]*progrock.Vertex
	logs     map[string]string
	closed   bool
}

func newTape() *tape {
	return &tape{
		vertices: make(map[string]*progrock.Vertex),
		logs:     make(map[string]string),
	}
}

func (t *tape) WriteStatus(update *progrock.StatusUpdate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, v := range update.GetVertexes() {
		t.vertices[v.GetName()] = v
	}
	for _, l := range update.GetLogs() {
		t.logs[l.GetVertex()] += string(l.GetData())
	}
	return nil
}

func (t *tape) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *tape) vertex(name string) (*progrock.Vertex, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.vertices[name]
	return v, ok
}

func TestProgrockBridge(t *testing.T) {
	w := newTape()
	bridge := telemetry.NewProgrockBridge(w)
	tracer := telemetry.NewOTelTracer("test", bridge, bridge)

	_, hit := tracer.Start(context.Background(), "remap client", ports.WithDigest("remap(client)"))
	hit.SetAttribute(ports.CachedAttribute, true)
	hit.End()

	_, failed := tracer.Start(context.Background(), "decompile client")
	failed.RecordError(errors.New("no decompiler"))
	failed.End()

	_, logged := tracer.Start(context.Background(), "split client")
	_, err := logged.Write([]byte("splitting\n"))
	require.NoError(t, err)
	logged.End()

	require.NoError(t, tracer.Shutdown(context.Background()))

	assert.Eventually(t, func() bool {
		v, ok := w.vertex("split client")
		return ok && v.GetCompleted() != nil
	}, waitFor, tick)

	v, ok := w.vertex("remap client")
	require.True(t, ok)
	assert.True(t, v.GetCached())
	assert.NotNil(t, v.GetCompleted())

	v, ok = w.vertex("decompile client")
	require.True(t, ok)
	assert.Equal(t, "no decompiler", v.GetError())

	v, ok = w.vertex("split client")
	require.True(t, ok)
	w.mu.Lock()
	assert.Equal(t, "splitting\n", w.logs[v.GetId()])
	assert.True(t, w.closed)
	w.mu.Unlock()
}

func TestProgrockBridge_SharedDigest(t *testing.T) {
	w := newTape()
	bridge := telemetry.NewProgrockBridge(w)
	tracer := telemetry.NewOTelTracer("test", nil, bridge)

	_, first := tracer.Start(context.Background(), "first", ports.WithDigest("same"))
	first.End()
	_, second := tracer.Start(context.Background(), "second", ports.WithDigest("same"))
	second.End()
	require.NoError(t, tracer.Shutdown(context.Background()))

	assert.Eventually(t, func() bool {
		a, okA := w.vertex("first")
		b, okB := w.vertex("second")
		return okA && okB && a.GetId() == b.GetId()
	}, waitFor, tick)
}

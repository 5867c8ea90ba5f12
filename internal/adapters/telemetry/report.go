package telemetry

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/vito/progrock"
	"go.trai.ch/codev/internal/core/ports"
)

// Report is a progrock.Writer printing stage progress through the logger.
// Completed stages are logged at info level; cache hits and stage output
// at debug level.
type Report struct {
	logger ports.Logger

	mu    sync.Mutex
	names map[string]string
	done  map[string]bool
}

var _ progrock.Writer = (*Report)(nil)

// NewReport creates a Report logging to logger.
func NewReport(logger ports.Logger) *Report {
	return &Report{
		logger: logger,
		names:  make(map[string]string),
		done:   make(map[string]bool),
	}
}

// WriteStatus implements progrock.Writer.
func (r *Report) WriteStatus(update *progrock.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range update.GetVertexes() {
		r.names[v.GetId()] = v.GetName()
		if v.GetCompleted() == nil || r.done[v.GetId()] {
			continue
		}
		r.done[v.GetId()] = true

		switch {
		case v.GetError() != "":
		case v.GetCached():
			r.logger.Debug(fmt.Sprintf("%s (cached)", v.GetName()))
		default:
			elapsed := v.GetCompleted().AsTime().Sub(v.GetStarted().AsTime())
			r.logger.Info(fmt.Sprintf("%s (%s)", v.GetName(), elapsed.Round(time.Millisecond)))
		}
	}

	for _, l := range update.GetLogs() {
		name := r.names[l.GetVertex()]
		for _, line := range bytes.Split(bytes.TrimRight(l.GetData(), "\n"), []byte("\n")) {
			r.logger.Debug(fmt.Sprintf("[%s] %s", name, line))
		}
	}
	return nil
}

// Close implements progrock.Writer.
func (r *Report) Close() error {
	return nil
}

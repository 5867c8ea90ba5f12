package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/codev/internal/adapters/logger"
	"go.trai.ch/zerr"
)

// newTestLogger creates a logger writing plain text to a buffer.
func newTestLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")

	buf := &bytes.Buffer{}
	lg := logger.New()
	lg.SetOutput(buf)
	return lg, buf
}

func TestLogger_Levels(t *testing.T) {
	lg, buf := newTestLogger(t)

	lg.Debug("hidden")
	lg.Info("downloading client 1.20.1")
	lg.Warn("hash mismatch, downloading again")

	lg.SetVerbose(true)
	lg.Debug("remap: reusing out.jar")

	g := goldie.New(t)
	g.Assert(t, "logger_levels", buf.Bytes())
}

func TestLogger_Error(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		goldenName string
	}{
		{
			name:       "standard error",
			err:        errors.New("something broke"),
			goldenName: "error_standard",
		},
		{
			name:       "wrapped chain",
			err:        zerr.Wrap(zerr.Wrap(errors.New("no such file"), "failed to open archive"), "pipeline execution failed"),
			goldenName: "error_chain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lg, buf := newTestLogger(t)
			lg.Error(tt.err)

			g := goldie.New(t)
			g.Assert(t, tt.goldenName, buf.Bytes())
		})
	}
}

func TestLogger_Error_Nil(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.Error(nil)
	assert.Empty(t, buf.String())
}

func TestLogger_JSON(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.SetJSON(true)

	lg.Info("hello")
	lg.Error(errors.New("boom"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var info, failed map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &info))
	require.NoError(t, json.Unmarshal(lines[1], &failed))

	assert.Equal(t, "INFO", info["level"])
	assert.Equal(t, "hello", info["msg"])
	assert.Equal(t, "ERROR", failed["level"])
	assert.Equal(t, "boom", failed["error"])
}

func TestLogger_SetOutputKeepsMode(t *testing.T) {
	lg, first := newTestLogger(t)
	lg.SetJSON(true)

	second := &bytes.Buffer{}
	lg.SetOutput(second)
	lg.Info("moved")

	assert.Empty(t, first.String())
	assert.Contains(t, second.String(), `"msg":"moved"`)
}

package logger_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"go.trai.ch/codev/internal/adapters/logger"
)

func TestPrettyHandler_Handle_Levels(t *testing.T) {
	tests := []struct {
		name       string
		level      slog.Level
		msg        string
		goldenName string
	}{
		{name: "info level", level: slog.LevelInfo, msg: "information message", goldenName: "handler_info"},
		{name: "warn level", level: slog.LevelWarn, msg: "warning message", goldenName: "handler_warn"},
		{name: "error level", level: slog.LevelError, msg: "error message", goldenName: "handler_error"},
		{name: "debug level filtered", level: slog.LevelDebug, msg: "debug message", goldenName: "handler_debug_filtered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", "1")

			buf := &bytes.Buffer{}
			lg := slog.New(logger.NewPrettyHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
			lg.Log(t.Context(), tt.level, tt.msg)

			g := goldie.New(t)
			g.Assert(t, tt.goldenName, buf.Bytes())
		})
	}
}

func TestPrettyHandler_Attrs(t *testing.T) {
	tests := []struct {
		name       string
		groups     []string
		attrs      []slog.Attr
		goldenName string
	}{
		{
			name:       "single attribute",
			attrs:      []slog.Attr{slog.String("stage", "remap")},
			goldenName: "handler_attrs_single",
		},
		{
			name:       "group attribute",
			attrs:      []slog.Attr{slog.Group("cache", slog.Bool("hit", true), slog.Int("size", 2))},
			goldenName: "handler_attrs_group",
		},
		{
			name:       "nested handler groups",
			groups:     []string{"a", "b"},
			attrs:      []slog.Attr{slog.String("key", "val")},
			goldenName: "handler_group_nested",
		},
		{
			name:       "empty group name",
			groups:     []string{""},
			attrs:      []slog.Attr{slog.String("key", "val")},
			goldenName: "handler_group_empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", "1")

			buf := &bytes.Buffer{}
			var handler slog.Handler = logger.NewPrettyHandler(buf, nil)
			for _, g := range tt.groups {
				handler = handler.WithGroup(g)
			}
			handler = handler.WithAttrs(tt.attrs)

			slog.New(handler).Info("message", "n", 1)

			g := goldie.New(t)
			g.Assert(t, tt.goldenName, buf.Bytes())
		})
	}
}

func TestPrettyHandler_Enabled(t *testing.T) {
	level := &slog.LevelVar{}
	handler := logger.NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: level})

	assert.False(t, handler.Enabled(t.Context(), slog.LevelDebug))
	assert.True(t, handler.Enabled(t.Context(), slog.LevelWarn))

	level.Set(slog.LevelDebug)
	assert.True(t, handler.Enabled(t.Context(), slog.LevelDebug))
}

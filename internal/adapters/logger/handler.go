package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/muesli/termenv"
)

// PrettyHandler is a slog.Handler producing human-readable, colored lines.
type PrettyHandler struct {
	out   *termenv.Output
	level slog.Leveler
	attrs []string
	group string
}

// NewPrettyHandler creates a new PrettyHandler writing to w.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &PrettyHandler{
		out:   newOutput(w),
		level: level,
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and outputs the log record.
//
//nolint:gocritic // slog.Handler interface requires slog.Record by value
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	msg := r.Message
	color := colorSlate
	switch {
	case r.Level >= slog.LevelError:
		msg = iconCross + " " + msg
		color = colorRed
	case r.Level >= slog.LevelWarn:
		msg = iconWarning + " " + msg
		color = colorYellow
	case r.Level < slog.LevelInfo:
		color = colorMuted
	}

	parts := make([]string, 0, len(h.attrs)+r.NumAttrs())
	parts = append(parts, h.attrs...)
	r.Attrs(func(attr slog.Attr) bool {
		parts = appendAttr(parts, h.group, attr)
		return true
	})
	if len(parts) > 0 {
		msg += " " + strings.Join(parts, " ")
	}

	styled := h.out.String(msg).Foreground(h.out.Color(color))
	_, err := h.out.WriteString(styled.String() + "\n")
	return err
}

// WithAttrs returns a new Handler with the given attributes appended.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	formatted := make([]string, len(h.attrs), len(h.attrs)+len(attrs))
	copy(formatted, h.attrs)
	for _, attr := range attrs {
		formatted = appendAttr(formatted, h.group, attr)
	}

	return &PrettyHandler{
		out:   h.out,
		level: h.level,
		attrs: formatted,
		group: h.group,
	}
}

// WithGroup returns a new Handler qualifying later attributes with name.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &PrettyHandler{
		out:   h.out,
		level: h.level,
		attrs: h.attrs,
		group: qualify(h.group, name),
	}
}

// appendAttr formats attr as key=value, flattening groups into dotted keys.
func appendAttr(parts []string, group string, attr slog.Attr) []string {
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		prefix := group
		if attr.Key != "" {
			prefix = qualify(group, attr.Key)
		}
		for _, a := range attr.Value.Group() {
			parts = appendAttr(parts, prefix, a)
		}
		return parts
	}
	if attr.Equal(slog.Attr{}) {
		return parts
	}
	return append(parts, qualify(group, attr.Key)+"="+attr.Value.String())
}

func qualify(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}

package logger

import (
	"io"
	"os"

	"github.com/muesli/termenv"
)

// Colors and icons of the pretty output.
const (
	colorSlate  = "#667085"
	colorMuted  = "#98A2B3"
	colorRed    = "#D93025"
	colorYellow = "#F59E0B"

	iconCross   = "✗"
	iconWarning = "!"
)

// ColorProfile returns the color profile for w's terminal. NO_COLOR forces
// plain text.
func ColorProfile() termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
}

func newOutput(w io.Writer) *termenv.Output {
	if w == nil {
		w = os.Stderr
	}
	return termenv.NewOutput(w,
		termenv.WithProfile(ColorProfile()),
		termenv.WithTTY(true),
	)
}

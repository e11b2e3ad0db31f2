package render

import (
	"fmt"
	"os"
	"strings"

	"github.com/muesli/termenv"
)

// Color modes accepted by --color and output.color.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// ColorEnv overrides profile detection: truecolor, 256, 16 or none.
const ColorEnv = "EVALGREP_COLOR"

// DetectProfile picks the color profile for stdout. In auto mode a
// non-terminal or NO_COLOR disables color.
func DetectProfile(mode string, isTerminal bool) (termenv.Profile, error) {
	return detectProfile(mode, isTerminal, os.Getenv)
}

func detectProfile(mode string, isTerminal bool, getenv func(string) string) (termenv.Profile, error) {
	switch strings.ToLower(mode) {
	case ColorNever:
		return termenv.Ascii, nil
	case ColorAlways:
	case ColorAuto, "":
		if !isTerminal || getenv("NO_COLOR") != "" {
			return termenv.Ascii, nil
		}
	default:
		return termenv.Ascii, fmt.Errorf("invalid color mode %q (want auto, always or never)", mode)
	}

	switch strings.ToLower(getenv(ColorEnv)) {
	case "truecolor", "true", "24bit":
		return termenv.TrueColor, nil
	case "256", "ansi256":
		return termenv.ANSI256, nil
	case "16", "ansi", "basic":
		return termenv.ANSI, nil
	case "none", "off", "ascii":
		return termenv.Ascii, nil
	}

	colorTerm := getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		return termenv.TrueColor, nil
	}
	if term := getenv("TERM"); term == "dumb" {
		return termenv.Ascii, nil
	}
	// Everything else gets 256 colors; the palette used is 16-color anyway.
	return termenv.ANSI256, nil
}

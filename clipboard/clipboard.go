// Package clipboard copies answers to the system clipboard.
package clipboard

import (
	"errors"
	"strings"

	cb "github.com/atotto/clipboard"
)

// ErrUnsupported means no clipboard utility was found (xclip, xsel,
// wl-clipboard or termux-api on Linux).
var ErrUnsupported = errors.New("no clipboard utility available")

func Available() error {
	if cb.Unsupported {
		return ErrUnsupported
	}
	return nil
}

func Copy(text string) error {
	if err := Available(); err != nil {
		return err
	}
	return cb.WriteAll(text)
}

func Read() (string, error) {
	if err := Available(); err != nil {
		return "", err
	}
	return cb.ReadAll()
}

// Answer formats an answer and its cited files for pasting elsewhere.
func Answer(text string, sources []string) string {
	text = strings.TrimSpace(text)
	if len(sources) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\nSources:\n")
	for _, s := range sources {
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}

package hotkey

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

const Default = "ctrl+shift+space"

// Binding is a parsed key combination such as "ctrl+shift+space".
type Binding struct {
	Mods []string
	Key  string
}

var modAliases = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"shift":   "shift",
	"alt":     "alt",
	"option":  "alt",
	"opt":     "alt",
	"super":   "super",
	"cmd":     "super",
	"command": "super",
	"win":     "super",
	"meta":    "super",
}

var modOrder = []string{"ctrl", "shift", "alt", "super"}

var keyAliases = map[string]string{
	"enter": "return",
	"esc":   "escape",
}

// validKey accepts a letter, a digit, f1 to f12, or one of the named keys.
// Every platform backend maps exactly this set.
func validKey(k string) bool {
	switch k {
	case "space", "return", "escape", "tab":
		return true
	}
	if len(k) == 1 {
		c := k[0]
		return 'a' <= c && c <= 'z' || '0' <= c && c <= '9'
	}
	if n, ok := strings.CutPrefix(k, "f"); ok {
		for i := 1; i <= 12; i++ {
			if n == strconv.Itoa(i) {
				return true
			}
		}
	}
	return false
}

func Parse(s string) (Binding, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	if len(parts) < 2 {
		return Binding{}, fmt.Errorf("hotkey %q: need at least one modifier and a key", s)
	}

	var b Binding
	for _, p := range parts[:len(parts)-1] {
		m, ok := modAliases[strings.TrimSpace(p)]
		if !ok {
			return Binding{}, fmt.Errorf("hotkey %q: unknown modifier %q", s, p)
		}
		if slices.Contains(b.Mods, m) {
			return Binding{}, fmt.Errorf("hotkey %q: duplicate modifier %q", s, m)
		}
		b.Mods = append(b.Mods, m)
	}
	slices.SortFunc(b.Mods, func(x, y string) int {
		return slices.Index(modOrder, x) - slices.Index(modOrder, y)
	})

	key := strings.TrimSpace(parts[len(parts)-1])
	if a, ok := keyAliases[key]; ok {
		key = a
	}
	if !validKey(key) {
		return Binding{}, fmt.Errorf("hotkey %q: unsupported key %q", s, key)
	}
	b.Key = key
	return b, nil
}

func (b Binding) String() string {
	return strings.Join(append(slices.Clone(b.Mods), b.Key), "+")
}

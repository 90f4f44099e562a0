//go:build linux

package hotkey

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Linux reads key events straight from /dev/input, which works under X11,
// Wayland and on a bare console. The user needs to be in the input group.

const (
	evKey          = 1
	keyRelease     = 0
	keyPress       = 1
	inputEventSize = 24
)

var errNoKeyboard = errors.New("no keyboard devices found (is the user in the 'input' group?)")

// evdev codes from linux/input-event-codes.h.
var modCodes = map[string][]uint16{
	"ctrl":  {29, 97},
	"shift": {42, 54},
	"alt":   {56, 100},
	"super": {125, 126},
}

var keyCodes = map[string]uint16{
	"escape": 1, "tab": 15, "return": 28, "space": 57,
	"1": 2, "2": 3, "3": 4, "4": 5, "5": 6, "6": 7, "7": 8, "8": 9, "9": 10, "0": 11,
	"q": 16, "w": 17, "e": 18, "r": 19, "t": 20, "y": 21, "u": 22, "i": 23, "o": 24, "p": 25,
	"a": 30, "s": 31, "d": 32, "f": 33, "g": 34, "h": 35, "j": 36, "k": 37, "l": 38,
	"z": 44, "x": 45, "c": 46, "v": 47, "b": 48, "n": 49, "m": 50,
	"f1": 59, "f2": 60, "f3": 61, "f4": 62, "f5": 63, "f6": 64, "f7": 65, "f8": 66, "f9": 67, "f10": 68,
	"f11": 87, "f12": 88,
}

// chord tracks modifier and key state for one binding across a stream of
// key events. One chord per keyboard device.
type chord struct {
	mods [][]uint16
	key  uint16
	held map[uint16]bool
	down bool
}

func newChord(b Binding) (*chord, error) {
	key, ok := keyCodes[b.Key]
	if !ok {
		return nil, fmt.Errorf("unsupported key %q", b.Key)
	}
	c := &chord{key: key, held: make(map[uint16]bool)}
	for _, m := range b.Mods {
		codes, ok := modCodes[m]
		if !ok {
			return nil, fmt.Errorf("modifier %q is not available on this platform", m)
		}
		c.mods = append(c.mods, codes)
	}
	return c, nil
}

func (c *chord) modsHeld() bool {
	for _, codes := range c.mods {
		if !c.held[codes[0]] && !c.held[codes[1]] {
			return false
		}
	}
	return true
}

// feed applies one key event and reports whether the binding went down or
// came back up. Autorepeat (value 2) changes nothing.
func (c *chord) feed(code uint16, value int32) (pressed, released bool) {
	switch value {
	case keyPress:
		c.held[code] = true
	case keyRelease:
		delete(c.held, code)
	default:
		return false, false
	}
	if code != c.key {
		return false, false
	}
	if value == keyPress && !c.down && c.modsHeld() {
		c.down = true
		return true, false
	}
	if value == keyRelease && c.down {
		c.down = false
		return false, true
	}
	return false, false
}

type event struct {
	typ   uint16
	code  uint16
	value int32
}

// decodeEvents splits a read from an event device into input_event records.
// A trailing partial record is ignored.
func decodeEvents(buf []byte) []event {
	out := make([]event, 0, len(buf)/inputEventSize)
	for i := 0; i+inputEventSize <= len(buf); i += inputEventSize {
		out = append(out, event{
			typ:   binary.LittleEndian.Uint16(buf[i+16:]),
			code:  binary.LittleEndian.Uint16(buf[i+18:]),
			value: int32(binary.LittleEndian.Uint32(buf[i+20:])),
		})
	}
	return out
}

type evdevHotkey struct {
	binding Binding
	keydown chan struct{}
	keyup   chan struct{}

	files []*os.File
	stop  chan struct{}
	once  sync.Once
}

// New returns a hotkey that watches every keyboard for b. Nothing is opened
// until Register.
func New(b Binding) (Hotkey, error) {
	if _, err := newChord(b); err != nil {
		return nil, fmt.Errorf("hotkey %s: %w", b, err)
	}
	return &evdevHotkey{
		binding: b,
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}, nil
}

func (h *evdevHotkey) Register() error {
	keyboards, err := findKeyboards()
	if err != nil {
		return fmt.Errorf("finding keyboards: %w", err)
	}
	if len(keyboards) == 0 {
		return errNoKeyboard
	}
	for _, path := range keyboards {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		h.files = append(h.files, f)
		c, _ := newChord(h.binding)
		go h.read(f, c)
	}
	if len(h.files) == 0 {
		return fmt.Errorf("could not open any keyboard device (run: sudo usermod -aG input $USER, then log in again)")
	}
	return nil
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (h *evdevHotkey) read(f *os.File, c *chord) {
	buf := make([]byte, inputEventSize*16)
	for {
		n, err := f.Read(buf)
		if err != nil {
			return
		}
		select {
		case <-h.stop:
			return
		default:
		}
		for _, ev := range decodeEvents(buf[:n]) {
			if ev.typ != evKey {
				continue
			}
			pressed, released := c.feed(ev.code, ev.value)
			if pressed {
				signal(h.keydown)
			}
			if released {
				signal(h.keyup)
			}
		}
	}
}

// Unregister closes the devices, which ends the readers.
func (h *evdevHotkey) Unregister() {
	h.once.Do(func() {
		close(h.stop)
		for _, f := range h.files {
			f.Close()
		}
	})
}

func (h *evdevHotkey) Keydown() <-chan struct{} { return h.keydown }
func (h *evdevHotkey) Keyup() <-chan struct{}   { return h.keyup }

func findKeyboards() ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}
	var keyboards []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "event") && isKeyboard(e.Name()) {
			keyboards = append(keyboards, filepath.Join("/dev/input", e.Name()))
		}
	}
	return keyboards, nil
}

// isKeyboard checks the device's key capability bitmap. Mice and power
// buttons report only a few bits.
func isKeyboard(eventName string) bool {
	data, err := os.ReadFile(filepath.Join("/sys/class/input", eventName, "device", "capabilities", "key"))
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(data))) > 10
}

// Diagnose checks that at least one keyboard device can be opened for b.
func Diagnose(b Binding) (string, error) {
	if _, err := newChord(b); err != nil {
		return "", err
	}
	keyboards, err := findKeyboards()
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}
	if len(keyboards) == 0 {
		return "", errNoKeyboard
	}
	for _, path := range keyboards {
		f, err := os.Open(path)
		if err == nil {
			f.Close()
			return fmt.Sprintf("%s via %d keyboard(s), opened %s", b, len(keyboards), path), nil
		}
	}
	return "", fmt.Errorf("found %d keyboard(s) but cannot open any (run: sudo usermod -aG input $USER)", len(keyboards))
}

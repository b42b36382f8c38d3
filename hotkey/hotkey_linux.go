//go:build linux

package hotkey

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	evKey = 1

	keyLeftCtrl   = 29
	keyRightCtrl  = 97
	keyLeftShift  = 42
	keyRightShift = 54
	keySpace      = 57

	valueRelease = 0
	valuePress   = 1
)

const inputDir = "/dev/input"

// inputEvent is struct input_event on 64-bit Linux.
type inputEvent struct {
	Sec, Usec int64
	Type      uint16
	Code      uint16
	Value     int32
}

type edge int

const (
	edgeNone edge = iota
	edgeDown
	edgeUp
)

// chord follows Ctrl+Shift+Space through raw key events. Autorepeat events
// leave the held state unchanged.
type chord struct {
	ctrl, shift, active bool
}

func (c *chord) feed(ev inputEvent) edge {
	if ev.Type != evKey || (ev.Value != valuePress && ev.Value != valueRelease) {
		return edgeNone
	}
	down := ev.Value == valuePress

	switch ev.Code {
	case keyLeftCtrl, keyRightCtrl:
		c.ctrl = down
	case keyLeftShift, keyRightShift:
		c.shift = down
	case keySpace:
		switch {
		case down && !c.active && c.ctrl && c.shift:
			c.active = true
			return edgeDown
		case !down && c.active:
			c.active = false
			return edgeUp
		}
	}
	return edgeNone
}

// evdevHotkey reads keyboards under /dev/input directly, so it works without
// X11 but needs the user in the input group.
type evdevHotkey struct {
	keydown chan struct{}
	keyup   chan struct{}

	files []*os.File
	once  sync.Once
}

func New() Hotkey {
	return &evdevHotkey{
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func (h *evdevHotkey) Register() error {
	paths, err := keyboards()
	if err != nil {
		return err
	}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		h.files = append(h.files, f)
		go h.scan(f)
	}
	if len(h.files) == 0 {
		return fmt.Errorf("cannot open any of %d keyboard device(s) (run: sudo usermod -aG input $USER, then re-login)", len(paths))
	}
	return nil
}

// scan turns the event stream of one keyboard into hotkey edges until the
// reader fails, which Unregister causes by closing the device.
func (h *evdevHotkey) scan(r io.Reader) {
	var c chord
	for {
		var ev inputEvent
		if err := binary.Read(r, binary.LittleEndian, &ev); err != nil {
			return
		}
		switch c.feed(ev) {
		case edgeDown:
			notify(h.keydown)
		case edgeUp:
			notify(h.keyup)
		}
	}
}

func (h *evdevHotkey) Unregister() {
	h.once.Do(func() {
		for _, f := range h.files {
			f.Close()
		}
	})
}

func (h *evdevHotkey) Keydown() <-chan struct{} { return h.keydown }
func (h *evdevHotkey) Keyup() <-chan struct{}   { return h.keyup }

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func keyboards() ([]string, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("scanning input devices: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "event") && hasKeys(e.Name()) {
			paths = append(paths, filepath.Join(inputDir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, errors.New("no keyboard devices found (is user in 'input' group?)")
	}
	return paths, nil
}

// hasKeys tells keyboards from mice and switches by the size of the key
// capability bitmap.
func hasKeys(event string) bool {
	data, err := os.ReadFile(filepath.Join("/sys/class/input", event, "device", "capabilities", "key"))
	return err == nil && len(strings.TrimSpace(string(data))) > 10
}

// Diagnose reports whether a keyboard can be opened for the hotkey.
func Diagnose() (string, error) {
	paths, err := keyboards()
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		if f, err := os.Open(p); err == nil {
			f.Close()
			return fmt.Sprintf("%d keyboard(s) found, opened %s", len(paths), p), nil
		}
	}
	return "", fmt.Errorf("found %d keyboard(s) but cannot open any (run: sudo usermod -aG input $USER)", len(paths))
}

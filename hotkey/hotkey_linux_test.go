//go:build linux

package hotkey

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func key(code uint16, value int32) inputEvent {
	return inputEvent{Type: evKey, Code: code, Value: value}
}

func TestChord(t *testing.T) {
	tests := []struct {
		name   string
		events []inputEvent
		want   []edge
	}{
		{
			"ctrl shift space",
			[]inputEvent{key(keyLeftCtrl, 1), key(keyLeftShift, 1), key(keySpace, 1), key(keySpace, 0)},
			[]edge{edgeNone, edgeNone, edgeDown, edgeUp},
		},
		{
			"right modifiers",
			[]inputEvent{key(keyRightShift, 1), key(keyRightCtrl, 1), key(keySpace, 1), key(keySpace, 0)},
			[]edge{edgeNone, edgeNone, edgeDown, edgeUp},
		},
		{
			"space without shift",
			[]inputEvent{key(keyLeftCtrl, 1), key(keySpace, 1), key(keySpace, 0)},
			[]edge{edgeNone, edgeNone, edgeNone},
		},
		{
			"autorepeat ignored",
			[]inputEvent{key(keyLeftCtrl, 1), key(keyLeftShift, 1), key(keySpace, 1), key(keySpace, 2), key(keyLeftCtrl, 2), key(keySpace, 0)},
			[]edge{edgeNone, edgeNone, edgeDown, edgeNone, edgeNone, edgeUp},
		},
		{
			"modifier released before space",
			[]inputEvent{key(keyLeftCtrl, 1), key(keyLeftShift, 1), key(keySpace, 1), key(keyLeftCtrl, 0), key(keySpace, 0)},
			[]edge{edgeNone, edgeNone, edgeDown, edgeNone, edgeUp},
		},
		{
			"non key events",
			[]inputEvent{{Type: 0, Code: keySpace, Value: 1}, {Type: 4, Code: 4, Value: 57}},
			[]edge{edgeNone, edgeNone},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c chord
			for i, ev := range tt.events {
				if got := c.feed(ev); got != tt.want[i] {
					t.Errorf("event %d: edge = %d, want %d", i, got, tt.want[i])
				}
			}
		})
	}
}

func TestScanEmitsEdges(t *testing.T) {
	var buf bytes.Buffer
	for _, ev := range []inputEvent{key(keyLeftCtrl, 1), key(keyLeftShift, 1), key(keySpace, 1), key(keySpace, 0)} {
		if err := binary.Write(&buf, binary.LittleEndian, ev); err != nil {
			t.Fatal(err)
		}
	}
	if buf.Len() != 4*24 {
		t.Fatalf("encoded %d bytes, want %d", buf.Len(), 4*24)
	}

	h := New().(*evdevHotkey)
	done := make(chan struct{})
	go func() {
		h.scan(&buf)
		close(done)
	}()

	for _, ch := range []<-chan struct{}{h.Keydown(), h.Keyup()} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("missing hotkey edge")
		}
	}
	<-done
}

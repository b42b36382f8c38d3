package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var ErrSelectionAborted = errors.New("device selection aborted")

// FindDevice returns the device with the given name, or nil for the system default.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("capture device %q not found", name)
}

// SelectDevice presents an interactive device picker on the terminal.
// If only one device is available, it returns that device without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}

	switch len(devices) {
	case 0:
		return nil, fmt.Errorf("no capture devices found")
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	idx, err := pick(os.Stdin, os.Stdout, devices)
	if err != nil {
		return nil, err
	}
	return &devices[idx], nil
}

func pick(in io.Reader, out io.Writer, devices []DeviceInfo) (int, error) {
	cursor := 0
	render := func() {
		fmt.Fprint(out, "\r\x1b[J")
		fmt.Fprint(out, "Select input device (↑/↓, Enter to confirm):\r\n\r\n")
		for i, d := range devices {
			btTag := ""
			if IsBluetooth(d.Name) {
				btTag = " \x1b[33m[⚠ Lower audio quality]\x1b[0m"
			}
			if i == cursor {
				fmt.Fprintf(out, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, btTag)
			} else {
				fmt.Fprintf(out, "    %s%s\r\n", d.Name, btTag)
			}
		}
	}
	render()

	buf := make([]byte, 3)
	for {
		n, err := in.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("reading input: %w", err)
		}

		if n == 1 {
			switch buf[0] {
			case 13: // Enter
				fmt.Fprint(out, "\r\n")
				return cursor, nil
			case 3: // Ctrl+C
				fmt.Fprint(out, "\r\n")
				return 0, ErrSelectionAborted
			case 'j':
				cursor = min(cursor+1, len(devices)-1)
			case 'k':
				cursor = max(cursor-1, 0)
			}
		} else if n == 3 && buf[0] == 0x1b && buf[1] == '[' {
			switch buf[2] {
			case 'A':
				cursor = max(cursor-1, 0)
			case 'B':
				cursor = min(cursor+1, len(devices)-1)
			}
		}

		fmt.Fprintf(out, "\x1b[%dA", len(devices)+2)
		render()
	}
}

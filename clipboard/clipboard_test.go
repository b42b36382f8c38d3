package clipboard

import (
	"errors"
	"testing"
)

func stub(t *testing.T, noClipboard bool) *[]string {
	t.Helper()
	var got []string
	prevWrite, prevUnsupported := writeAll, unsupported
	writeAll = func(s string) error {
		got = append(got, s)
		return nil
	}
	unsupported = func() bool { return noClipboard }
	t.Cleanup(func() { writeAll, unsupported = prevWrite, prevUnsupported })
	return &got
}

func TestCopy(t *testing.T) {
	got := stub(t, false)

	if err := Copy("hello world"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if len(*got) != 1 || (*got)[0] != "hello world" {
		t.Errorf("clipboard writes = %q", *got)
	}
	if !Available() {
		t.Error("Available() = false")
	}
}

func TestCopyBlank(t *testing.T) {
	got := stub(t, false)

	for _, text := range []string{"", "  \n\t"} {
		if err := Copy(text); !errors.Is(err, ErrEmpty) {
			t.Errorf("Copy(%q) = %v, want ErrEmpty", text, err)
		}
	}
	if len(*got) != 0 {
		t.Errorf("blank text reached the clipboard: %q", *got)
	}
}

func TestCopyUnsupported(t *testing.T) {
	got := stub(t, true)

	if err := Copy("text"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Copy = %v, want ErrUnsupported", err)
	}
	if Available() {
		t.Error("Available() = true")
	}
	if len(*got) != 0 {
		t.Errorf("unexpected writes: %q", *got)
	}
}

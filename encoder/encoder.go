package encoder

import (
	"fmt"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// Stream incrementally encodes little-endian PCM16 and hands back the bytes
// produced so far. Concatenating the header, every Write result and the Close
// result yields a complete file of ContentType.
type Stream interface {
	ContentType() string
	Header() []byte
	Write(pcm []byte) ([]byte, error)
	Close() ([]byte, error)
	TotalFrames() uint64
	EncodeTime() time.Duration
}

// New returns a Stream for the named format.
func New(format string) (Stream, error) {
	switch format {
	case "", "flac":
		return NewFlac()
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

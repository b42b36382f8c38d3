package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

const FlacContentType = "audio/flac"

type FlacEncoder struct {
	mu          sync.Mutex
	buf         bytes.Buffer
	enc         *flac.Encoder
	header      []byte
	pending     []int16
	odd         []byte // dangling byte of a sample split across writes
	totalFrames uint64
	encodeTime  time.Duration
	closed      bool
}

func NewFlac() (*FlacEncoder, error) {
	e := &FlacEncoder{}
	info := &meta.StreamInfo{
		BlockSizeMin:  16,
		BlockSizeMax:  BlockSize,
		SampleRate:    SampleRate,
		NChannels:     Channels,
		BitsPerSample: BitsPerSample,
		NSamples:      0, // unknown; the output buffer is not seekable
	}
	enc, err := flac.NewEncoder(&e.buf, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	e.enc = enc
	e.header = e.drain()
	return e, nil
}

func (e *FlacEncoder) ContentType() string { return FlacContentType }

func (e *FlacEncoder) Header() []byte { return e.header }

func (e *FlacEncoder) Write(pcm []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("flac encoder closed")
	}

	start := time.Now()
	if len(e.odd) > 0 {
		pcm = append(e.odd, pcm...)
		e.odd = nil
	}
	n := len(pcm) &^ 1
	for i := 0; i < n; i += 2 {
		e.pending = append(e.pending, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}
	if n < len(pcm) {
		e.odd = []byte{pcm[n]}
	}

	for len(e.pending) >= BlockSize {
		if err := e.writeFrame(e.pending[:BlockSize]); err != nil {
			return nil, err
		}
		e.pending = e.pending[BlockSize:]
	}
	e.encodeTime += time.Since(start)
	return e.drain(), nil
}

// Close encodes the remaining partial block and returns the trailing bytes.
// FLAC requires at least 16 samples per frame, so a short tail is padded with silence.
func (e *FlacEncoder) Close() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, nil
	}
	e.closed = true

	if len(e.pending) > 0 {
		block := e.pending
		for len(block) < 16 {
			block = append(block, 0)
		}
		if err := e.writeFrame(block); err != nil {
			return nil, err
		}
		e.pending = nil
	}
	if err := e.enc.Close(); err != nil {
		return nil, fmt.Errorf("closing flac encoder: %w", err)
	}
	return e.drain(), nil
}

func (e *FlacEncoder) TotalFrames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalFrames
}

func (e *FlacEncoder) EncodeTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encodeTime
}

func (e *FlacEncoder) writeFrame(block []int16) error {
	samples32 := make([]int32, len(block))
	for i, s := range block {
		samples32[i] = int32(s)
	}

	subframe := &frame.Subframe{
		SubHeader: frame.SubHeader{
			Pred: frame.PredVerbatim,
		},
		Samples:  samples32,
		NSamples: len(block),
	}

	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    SampleRate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{subframe},
	}

	if err := e.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	e.totalFrames += uint64(len(block))
	return nil
}

// drain hands out everything written since the last call.
func (e *FlacEncoder) drain() []byte {
	if e.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	e.buf.Reset()
	return out
}

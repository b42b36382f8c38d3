package recording

import (
	"fmt"
	"time"
)

// State is one of Idle, Starting, Recording, Stopped or Submitting.
type State interface {
	String() string
	state()
}

type Idle struct{}

// Starting means the microphone is being acquired.
type Starting struct{}

type Recording struct {
	ID        string
	StartedAt time.Time
	Elapsed   int // whole seconds
}

type Stopped struct {
	Payload Payload
}

type Submitting struct{}

func (Idle) state()       {}
func (Starting) state()   {}
func (Recording) state()  {}
func (Stopped) state()    {}
func (Submitting) state() {}

func (Idle) String() string       { return "idle" }
func (Starting) String() string   { return "starting" }
func (Recording) String() string  { return "recording" }
func (Stopped) String() string    { return "stopped" }
func (Submitting) String() string { return "submitting" }

// Payload is the audio captured by one recording.
type Payload struct {
	ContentType string
	Data        []byte
	// Frames counts the PCM frames encoded into Data. A stream that never
	// received audio has Frames == 0 even though Data holds a header.
	Frames uint64
}

func (p Payload) Len() int { return len(p.Data) }

// FormatElapsed renders seconds as m:ss.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

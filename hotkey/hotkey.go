// Package hotkey provides the optional global Ctrl+Shift+Space trigger.
package hotkey

import (
	"context"
	"errors"
	"sync"

	"voiceops/log"
)

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Controller is what the hotkey starts and stops.
type Controller interface {
	OnStartPressed(ctx context.Context) error
	OnStopPressed(ctx context.Context)
}

// Drive forwards the start and stop requests of h to c until ctx is done.
// Stops run in the background because they last until the transcription
// resolves; Drive waits for them before returning.
func Drive(ctx context.Context, h *Hybrid, c Controller) {
	var stops sync.WaitGroup
	defer stops.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.Start():
			log.Info("hotkey_start")
			if err := c.OnStartPressed(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warnf("hotkey start: %v", err)
			}
		case <-h.Stop():
			log.Info("hotkey_stop_" + string(h.Mode()))
			stops.Add(1)
			go func() {
				defer stops.Done()
				c.OnStopPressed(ctx)
			}()
		}
	}
}

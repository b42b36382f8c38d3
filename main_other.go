//go:build !linux

package main

import (
	"os"
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

// main hands the locked main thread to the hotkey library, which needs it
// for the platform event loop.
func main() {
	code := 0
	mainthread.Init(func() { code = run() })
	os.Exit(code)
}

//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

// The global hotkey must be registered from the main thread on macOS and
// Windows.
func init() {
	runtime.LockOSThread()
}

func main() {
	initCrashLog()
	mainthread.Init(run)
}

//go:build windows

package shutdown

import (
	"os"
	"os/signal"
)

// Notify relays Ctrl+C and console close to ch.
func Notify(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}

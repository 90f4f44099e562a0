//go:build linux

package main

func main() {
	initCrashLog()
	run()
}

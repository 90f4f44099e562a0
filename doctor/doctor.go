// Package doctor runs the checks behind "voxdoc doctor".
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"voxdoc/audio"
	"voxdoc/backend"
	"voxdoc/clipboard"
	"voxdoc/hotkey"
	"voxdoc/recorder"
	"voxdoc/session"
)

// Backend is the part of the API client the checks use.
type Backend interface {
	BaseURL() string
	Health(ctx context.Context) (backend.Health, error)
	Verify(ctx context.Context) (backend.Verification, error)
}

type Config struct {
	Out io.Writer

	// OpenAudio defaults to audio.NewContext.
	OpenAudio    func(preferred string, onFail audio.ProbeFunc) (audio.Context, error)
	AudioBackend string
	Device       string
	SampleRate   int
	CaptureFor   time.Duration

	// Hotkey is skipped when empty.
	Hotkey string
	// SkipClipboard leaves out the clipboard check.
	SkipClipboard bool

	Backend       Backend
	Authenticated bool
}

type status int

const (
	pass status = iota
	warn
	fail
)

type check struct {
	title string
	run   func(ctx context.Context) status
}

type doctor struct {
	cfg   Config
	out   io.Writer
	actx  audio.Context
	probe []string
}

// Run executes every check and returns an exit code: 0 when nothing failed,
// 1 otherwise. Warnings do not fail the run.
func Run(ctx context.Context, cfg Config) int {
	if cfg.OpenAudio == nil {
		cfg.OpenAudio = audio.NewContext
	}
	if cfg.CaptureFor <= 0 {
		cfg.CaptureFor = time.Second
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	d := &doctor{cfg: cfg, out: cfg.Out}
	defer func() {
		if d.actx != nil {
			d.actx.Close()
		}
	}()

	checks := []check{
		{"Audio backend", d.checkAudioBackend},
		{"Microphone capture", d.checkCapture},
		{"Backend server", d.checkServer},
		{"Session", d.checkSession},
	}
	if cfg.Hotkey != "" {
		checks = append(checks, check{"Global hotkey", d.checkHotkey})
	}
	if !cfg.SkipClipboard {
		checks = append(checks, check{"Clipboard", d.checkClipboard})
	}

	fmt.Fprintln(d.out, "voxdoc doctor - system diagnostics")
	fmt.Fprintln(d.out, "==================================")

	failed := 0
	for i, c := range checks {
		if ctx.Err() != nil {
			fmt.Fprintln(d.out, "\nInterrupted")
			return 1
		}
		fmt.Fprintf(d.out, "\n[%d/%d] %s\n", i+1, len(checks), c.title)
		if c.run(ctx) == fail {
			failed++
		}
	}

	fmt.Fprintln(d.out)
	if failed == 0 {
		fmt.Fprintln(d.out, "All checks passed!")
		return 0
	}
	fmt.Fprintf(d.out, "%d check(s) failed. See details above.\n", failed)
	return 1
}

func (d *doctor) printf(format string, args ...any) {
	fmt.Fprintf(d.out, "  "+format+"\n", args...)
}

func (d *doctor) checkAudioBackend(_ context.Context) status {
	actx, err := d.cfg.OpenAudio(d.cfg.AudioBackend, func(name string, err error) {
		d.probe = append(d.probe, name)
		d.printf("%s unavailable: %v", name, err)
	})
	if err != nil {
		d.printf("FAIL: %v", err)
		return fail
	}
	d.actx = actx

	devices, err := actx.Devices()
	if err != nil {
		d.printf("FAIL: cannot list devices: %v", err)
		return fail
	}
	if len(devices) == 0 {
		d.printf("FAIL: no capture devices found")
		return fail
	}
	for _, dev := range devices {
		mark := " "
		if dev.IsDefault {
			mark = "*"
		}
		bt := ""
		if audio.IsBluetooth(dev.Name) {
			bt = " (bluetooth, expect reduced quality)"
		}
		d.printf("%s %s%s", mark, dev.Name, bt)
	}
	if len(d.probe) > 0 {
		d.printf("PASS: using fallback backend %s", actx.Backend())
	} else {
		d.printf("PASS: using %s", actx.Backend())
	}
	return pass
}

func (d *doctor) checkCapture(ctx context.Context) status {
	if d.actx == nil {
		d.printf("FAIL: skipped, no audio backend")
		return fail
	}

	var dev *audio.DeviceInfo
	if d.cfg.Device != "" {
		found, err := audio.FindDevice(d.actx, d.cfg.Device)
		if err != nil {
			d.printf("FAIL: %v", err)
			return fail
		}
		dev = found
	}

	capture, err := d.actx.NewCapture(dev, audio.CaptureConfig{SampleRate: d.cfg.SampleRate, Channels: 1})
	if err != nil {
		d.printf("FAIL: cannot open capture: %v", err)
		return fail
	}
	defer capture.Close()

	rec := recorder.New(capture, d.cfg.SampleRate)
	defer rec.Close()
	var blocks atomic.Int64
	rec.OnBlock(func([]float32) { blocks.Add(1) })

	d.printf("Recording for %s, say something...", d.cfg.CaptureFor)
	if err := rec.Start(); err != nil {
		d.printf("FAIL: %v", err)
		if errors.Is(err, recorder.ErrCaptureUnavailable) {
			d.printf("Check microphone permissions and that no other app holds the device")
		}
		return fail
	}
	select {
	case <-time.After(d.cfg.CaptureFor):
	case <-ctx.Done():
	}
	rec.Stop()

	samples := rec.Samples()
	if len(samples) == 0 {
		d.printf("FAIL: no audio delivered by %s", capture.DeviceName())
		return fail
	}
	level := audio.RMS(samples)
	d.printf("%d blocks, %.2fs, level %.4f", blocks.Load(), float64(len(samples))/float64(d.cfg.SampleRate), level)
	if level < 0.0005 {
		d.printf("WARN: input is silent, check the selected device and its volume")
		return warn
	}
	d.printf("PASS: microphone delivers audio")
	return pass
}

func (d *doctor) checkServer(ctx context.Context) status {
	if d.cfg.Backend == nil {
		d.printf("FAIL: no backend configured")
		return fail
	}
	d.printf("Server: %s", d.cfg.Backend.BaseURL())

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	h, err := d.cfg.Backend.Health(ctx)
	if err != nil {
		d.printf("FAIL: %v", err)
		return fail
	}
	for name, state := range h.Services {
		d.printf("%-15s %s", name, state)
	}
	switch {
	case h.OK():
		d.printf("PASS: server healthy")
		return pass
	case h.Status == "degraded":
		d.printf("WARN: server degraded")
		return warn
	default:
		d.printf("FAIL: server %s %s", h.Status, h.Error)
		return fail
	}
}

func (d *doctor) checkSession(ctx context.Context) status {
	if !d.cfg.Authenticated || d.cfg.Backend == nil {
		d.printf("WARN: not signed in, run: voxdoc login")
		return warn
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	v, err := d.cfg.Backend.Verify(ctx)
	switch {
	case errors.Is(err, backend.ErrUnauthorized), errors.Is(err, session.ErrNotAuthenticated):
		d.printf("FAIL: session expired, run: voxdoc login")
		return fail
	case err != nil:
		d.printf("FAIL: %v", err)
		return fail
	}
	d.printf("PASS: signed in as user %s", v.UserID)
	return pass
}

func (d *doctor) checkHotkey(_ context.Context) status {
	b, err := hotkey.Parse(d.cfg.Hotkey)
	if err != nil {
		d.printf("FAIL: %v", err)
		return fail
	}
	msg, err := hotkey.Diagnose(b)
	if err != nil {
		d.printf("WARN: %v", err)
		d.printf("Recording still works with the space bar in the terminal UI")
		return warn
	}
	d.printf("PASS: %s", msg)
	return pass
}

func (d *doctor) checkClipboard(_ context.Context) status {
	if err := clipboard.Available(); err != nil {
		d.printf("WARN: %v", err)
		return warn
	}
	const probe = "voxdoc-doctor"
	prev, _ := clipboard.Read()
	if err := clipboard.Copy(probe); err != nil {
		d.printf("WARN: copy failed: %v", err)
		return warn
	}
	got, err := clipboard.Read()
	if prev != "" {
		clipboard.Copy(prev)
	}
	if err != nil || strings.TrimSpace(got) != probe {
		d.printf("WARN: clipboard read back %q (%v)", got, err)
		return warn
	}
	d.printf("PASS: clipboard works")
	return pass
}

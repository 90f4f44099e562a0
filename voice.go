package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"voxdoc/audio"
	"voxdoc/hotkey"
	"voxdoc/log"
	"voxdoc/recorder"
	"voxdoc/session"
)

func deviceLineText(name string) string {
	if name == "" {
		name = "system default"
	}
	if audio.IsBluetooth(name) {
		name += " (BT, reduced quality)"
	}
	return "mic: " + name
}

// hotkeyLoop forwards hybrid hotkey presses to the controller until ctx ends.
func hotkeyLoop(ctx context.Context, hy *hotkey.Hybrid, ctl *controller) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hy.Start():
			ctl.start(hy.IsToggle)
		case <-hy.StopChan():
			ctl.Stop()
		}
	}
}

// registerHotkey grabs the configured global hotkey. A nil Hybrid means the
// hotkey is disabled or could not be registered; the TUI keys still work.
func (a *app) registerHotkey() (*hotkey.Hybrid, hotkey.Hotkey, string) {
	if a.opts.hotkey == "" {
		return nil, nil, ""
	}
	b, err := hotkey.Parse(a.opts.hotkey)
	if err != nil {
		log.Warnf("global hotkey disabled: %v", err)
		return nil, nil, ""
	}
	hk, err := hotkey.New(b)
	if err == nil {
		err = hk.Register()
	}
	if err != nil {
		log.Warnf("global hotkey disabled: %v", err)
		return nil, nil, ""
	}
	return hotkey.NewHybrid(hk, a.opts.longPress), hk, b.String()
}

func (a *app) runVoice() error {
	if !a.sessions.IsAuthenticated() {
		return session.ErrNotAuthenticated
	}

	actx, capture, err := a.openCapture()
	if err != nil {
		return err
	}
	defer actx.Close()
	defer capture.Close()

	ctx, cancel := context.WithCancel(a.ctx)
	defer cancel()
	go a.client.Warm()

	rec := recorder.New(capture, a.opts.rate)
	defer rec.Close()

	var prog *tea.Program
	send := func(msg tea.Msg) { prog.Send(msg) }
	pipe := newPipeline(rec, a.client, actx.Backend(), capture.DeviceName(), func(level float64) {
		send(AudioLevelMsg{Level: level})
	})
	ctl := newController(ctx, pipe, a.client, send)
	ctl.open = a.open

	hy, hk, label := a.registerHotkey()
	prog = tea.NewProgram(newTUIModel(ctl, label), tea.WithAltScreen())
	if hy != nil {
		defer hk.Unregister()
		defer hy.Close()
		go hotkeyLoop(ctx, hy, ctl)
	}

	log.SessionStart(actx.Backend(), capture.DeviceName(), "wav")
	go func() {
		<-ctx.Done()
		prog.Quit()
	}()
	go prog.Send(DeviceLineMsg{Text: deviceLineText(capture.DeviceName())})

	_, runErr := prog.Run()
	cancel()
	ctl.Close()
	ctl.Wait()

	recordings, queries := pipe.Counts()
	log.SessionEnd(recordings, queries)
	if runErr != nil {
		return fmt.Errorf("terminal UI: %w", runErr)
	}
	return nil
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"voxdoc/audio"
	"voxdoc/beep"
	"voxdoc/encoder"
	"voxdoc/hotkey"
	"voxdoc/log"
	"voxdoc/recorder"
)

// printSink writes controller events as plain lines for scripted runs.
func printSink(w io.Writer) func(tea.Msg) {
	var mu sync.Mutex
	return func(msg tea.Msg) {
		mu.Lock()
		defer mu.Unlock()
		switch m := msg.(type) {
		case RecordingStartMsg:
			fmt.Fprintln(w, "RECORDING")
		case RecordingStopMsg:
			fmt.Fprintln(w, "STOPPED")
		case StageMsg:
			fmt.Fprintln(w, "STAGE", m.Stage)
		case StatusMsg:
			if m.Err {
				fmt.Fprintln(w, "ERROR:", m.Text)
			} else {
				fmt.Fprintln(w, "STATUS:", m.Text)
			}
		case ResultMsg:
			res := m.Result
			if res.Err != nil {
				fmt.Fprintln(w, "ERROR:", res.Err)
				return
			}
			fmt.Fprintln(w, "QUESTION:", res.Question)
			fmt.Fprintln(w, "ANSWER:", flattenLine(res.Answer.Text))
			for _, s := range res.Answer.Sources {
				fmt.Fprintf(w, "SOURCE: %s %s %.2f\n", s.DocumentID, s.Filename, s.Score)
			}
		}
	}
}

func flattenLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// runTestMode replays wavPath as the microphone and drives the voice
// pipeline from stdin.
func (a *app) runTestMode(wavPath string) error {
	beep.Disable()
	fakeCtx, err := audio.NewFakeContext(wavPath, a.opts.realtime)
	if err != nil {
		return fmt.Errorf("loading WAV: %w", err)
	}
	return a.runScript(fakeCtx, a.stdin, a.out)
}

func (a *app) runScript(fakeCtx *audio.FakeContext, in io.Reader, out io.Writer) error {
	capture, err := fakeCtx.NewCapture(nil, audio.CaptureConfig{SampleRate: fakeCtx.SampleRate(), Channels: encoder.Channels})
	if err != nil {
		return fmt.Errorf("creating capture: %w", err)
	}
	defer capture.Close()
	fakeCapture := capture.(*audio.FakeCapture)

	ctx, cancel := context.WithCancel(a.ctx)
	defer cancel()

	rec := recorder.New(capture, fakeCtx.SampleRate())
	defer rec.Close()

	send := printSink(out)
	pipe := newPipeline(rec, a.client, fakeCtx.Backend(), capture.DeviceName(), nil)
	log.SessionStart(fakeCtx.Backend(), capture.DeviceName(), "wav")
	defer func() {
		recordings, queries := pipe.Counts()
		log.SessionEnd(recordings, queries)
	}()

	ctl := newController(ctx, pipe, a.client, send)
	ctl.copy = func(text string) error {
		send(StatusMsg{Text: "COPIED " + flattenLine(text)})
		return nil
	}
	ctl.open = func(path string) error {
		send(StatusMsg{Text: "OPENED " + path})
		return nil
	}
	ctl.cue = func(s beep.Sound) {
		if a.opts.beep {
			beep.Play(s)
		}
	}
	defer ctl.Wait()
	defer ctl.Close()

	hk := hotkey.NewFake()
	hy := hotkey.NewHybrid(hk, a.opts.longPress)
	defer hy.Close()
	go hotkeyLoop(ctx, hy, ctl)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		arg := ""
		if len(fields) > 1 {
			arg = fields[1]
		}
		switch strings.ToUpper(fields[0]) {
		case "START":
			ctl.Start()
		case "STOP":
			ctl.Stop()
		case "TOGGLE":
			ctl.Toggle()
		case "RESET":
			ctl.Reset()
		case "KEYDOWN":
			hk.SimKeydown()
		case "KEYUP":
			hk.SimKeyup()
		case "WAIT":
			ctl.Wait()
		case "WAIT_AUDIO_DONE":
			select {
			case <-fakeCapture.AudioDone():
			case <-ctx.Done():
			}
		case "COPY":
			ctl.Copy()
		case "OPEN":
			n, _ := strconv.Atoi(arg)
			ctl.OpenSource(max(n-1, 0))
			ctl.Wait()
		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "QUIT":
			return nil
		default:
			fmt.Fprintf(out, "ERROR: unknown command %q\n", fields[0])
		}
	}
	return scanner.Err()
}

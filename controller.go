package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"voxdoc/backend"
	"voxdoc/beep"
	"voxdoc/clipboard"
	"voxdoc/log"
)

// Messages the controller emits. The TUI renders them; test mode prints them.
type (
	RecordingStartMsg struct{}
	RecordingStopMsg  struct{}
	RecordingTickMsg  struct{ Duration float64 }
	AudioLevelMsg     struct{ Level float64 }
	StageMsg          struct{ Stage stage }
	ResultMsg         struct{ Result queryResult }
	StatusMsg         struct {
		Text string
		Err  bool
	}
	DeviceLineMsg struct{ Text string }
)

type downloader interface {
	DownloadDocument(ctx context.Context, id, dir string) (string, error)
}

// controller serializes the actions that can come from the keyboard, the
// global hotkey, and test input.
type controller struct {
	ctx  context.Context
	p    *pipeline
	docs downloader
	send func(tea.Msg)

	// replaced in tests
	copy func(string) error
	open func(string) error
	cue  func(beep.Sound)

	mu       sync.Mutex
	busy     bool
	last     *queryResult
	tickStop chan struct{}
	pending  sync.WaitGroup
}

func newController(ctx context.Context, p *pipeline, docs downloader, send func(tea.Msg)) *controller {
	return &controller{
		ctx:  ctx,
		p:    p,
		docs: docs,
		send: send,
		copy: clipboard.Copy,
		open: backend.OpenDocument,
		cue:  beep.Play,
	}
}

func (c *controller) status(format string, args ...any) {
	c.send(StatusMsg{Text: fmt.Sprintf(format, args...)})
}

func (c *controller) fail(format string, args ...any) {
	c.send(StatusMsg{Text: fmt.Sprintf(format, args...), Err: true})
}

// Toggle starts or stops a recording. Recordings started here count as
// toggled for the silence monitor.
func (c *controller) Toggle() {
	if c.p.Recording() {
		c.Stop()
		return
	}
	c.Start()
}

// Start begins recording unless a recording is running or the previous
// question is still being answered.
func (c *controller) Start() {
	c.start(nil)
}

// start begins a recording; toggled reports whether it stays open without a
// held key. nil means always.
func (c *controller) start(toggled func() bool) {
	if toggled == nil {
		toggled = func() bool { return true }
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.p.Recording() {
		return
	}
	if c.busy {
		c.status("still answering the last question")
		return
	}
	if err := c.p.Start(); err != nil {
		log.Errorf("recording error: %v", err)
		c.cue(beep.Error)
		c.fail("Error recording: %v", err)
		return
	}
	c.cue(beep.Start)
	c.tickStop = make(chan struct{})
	go c.tick(c.tickStop, newQuietMonitor(toggled))
	c.send(RecordingStartMsg{})
}

func (c *controller) tick(stop chan struct{}, quiet *quietMonitor) {
	t := time.NewTicker(levelTick)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		c.send(RecordingTickMsg{Duration: c.p.rec.Duration().Seconds()})
		switch quiet.Tick(c.p.takeVoiced()) {
		case quietWarn:
			log.Warn("no voice detected")
			c.cue(beep.Error)
			c.fail("no voice detected, check the microphone")
		case quietCleared:
			c.status("voice detected")
		case quietRemind:
			c.cue(beep.Error)
		case quietGiveUp:
			c.giveUp(stop)
			return
		}
	}
}

// giveUp discards a toggled recording that stayed silent for too long.
func (c *controller) giveUp(stop chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tickStop != stop || !c.p.Recording() {
		return
	}
	close(c.tickStop)
	c.p.rec.Stop()
	c.p.rec.Reset()
	log.Infof("recording discarded after %s of silence", quietGiveUpAt)
	c.cue(beep.Stop)
	c.send(RecordingStopMsg{})
	c.status("nothing heard for %s, recording discarded", quietGiveUpAt)
}

// Stop ends the recording and answers it in the background.
func (c *controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.p.Recording() {
		return
	}
	close(c.tickStop)
	rec, err := c.p.Stop()
	c.cue(beep.Stop)
	c.send(RecordingStopMsg{})
	if errors.Is(err, errTooShort) {
		c.status("recording too short, discarded")
		return
	}

	c.busy = true
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		res := c.p.Query(c.ctx, rec, func(s stage) { c.send(StageMsg{Stage: s}) })
		c.mu.Lock()
		c.busy = false
		if res.Err == nil {
			c.last = &res
		}
		c.mu.Unlock()
		if res.Err != nil && c.ctx.Err() == nil {
			c.cue(beep.Error)
		}
		c.send(ResultMsg{Result: res})
	}()
}

// Wait blocks until background queries have finished.
func (c *controller) Wait() {
	c.pending.Wait()
}

// Reset throws away the current recording without sending it.
func (c *controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.p.rec.Reset()
	c.status("recording discarded")
}

func (c *controller) lastResult() *queryResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Copy puts the last answer and its sources on the clipboard.
func (c *controller) Copy() {
	res := c.lastResult()
	if res == nil {
		c.status("nothing to copy yet")
		return
	}
	text := clipboard.Answer(res.Answer.Text, sourceNames(res.Answer.Sources))
	if err := c.copy(text); err != nil {
		c.fail("copy failed: %v", err)
		return
	}
	c.status("answer copied")
}

// OpenSource downloads the n-th cited document of the last answer and opens
// it with the system viewer.
func (c *controller) OpenSource(n int) {
	res := c.lastResult()
	if res == nil || n >= len(res.Answer.Sources) {
		c.status("no cited document to open")
		return
	}
	src := res.Answer.Sources[n]
	c.status("downloading %s...", src.Filename)

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		dir := filepath.Join(os.TempDir(), "voxdoc")
		path, err := c.docs.DownloadDocument(c.ctx, src.DocumentID, dir)
		if err != nil {
			log.Errorf("download %s: %v", src.DocumentID, err)
			c.fail("download failed: %v", err)
			return
		}
		if err := c.open(path); err != nil {
			c.fail("cannot open %s: %v", path, err)
			return
		}
		c.status("opened %s", filepath.Base(path))
	}()
}

// Close stops a running recording without sending it.
func (c *controller) Close() {
	c.mu.Lock()
	if c.p.Recording() {
		close(c.tickStop)
		c.p.rec.Stop()
	}
	c.mu.Unlock()
}

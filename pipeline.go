package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"voxdoc/audio"
	"voxdoc/backend"
	"voxdoc/encoder"
	"voxdoc/log"
	"voxdoc/recorder"
)

// minRecording is the shortest capture that is sent to the server.
const minRecording = 100 * time.Millisecond

var errTooShort = errors.New("recording too short")

// assistant is the part of the backend client a voice query needs.
type assistant interface {
	SpeechToText(ctx context.Context, rec encoder.Container) (backend.Transcription, error)
	ProcessQuery(ctx context.Context, question string) (backend.Answer, error)
}

type stage int

const (
	stageIdle stage = iota
	stageRecording
	stageTranscribing
	stageAnswering
)

func (s stage) String() string {
	switch s {
	case stageRecording:
		return "recording"
	case stageTranscribing:
		return "transcribing"
	case stageAnswering:
		return "answering"
	}
	return "idle"
}

// queryResult is the outcome of one spoken question.
type queryResult struct {
	Question  string
	Answer    backend.Answer
	Recording encoder.Container
	Err       error
}

// pipeline connects the recorder to the backend: a finished recording is
// exported as WAV, transcribed, and the text asked as a question.
type pipeline struct {
	rec     *recorder.Recorder
	api     assistant
	backend string
	device  string
	onLevel func(float64)

	mu         sync.Mutex
	peak       float64
	voiced     bool
	recordings int
	queries    int
}

func newPipeline(rec *recorder.Recorder, api assistant, backendName, device string, onLevel func(float64)) *pipeline {
	p := &pipeline{rec: rec, api: api, backend: backendName, device: device, onLevel: onLevel}
	rec.OnBlock(p.observe)
	return p
}

func (p *pipeline) observe(block []float32) {
	level := audio.RMS(block)
	p.mu.Lock()
	if level > p.peak {
		p.peak = level
	}
	if level >= speechLevel {
		p.voiced = true
	}
	p.mu.Unlock()
	if p.onLevel != nil {
		p.onLevel(level)
	}
}

func (p *pipeline) Start() error {
	p.mu.Lock()
	p.peak = 0
	p.voiced = false
	p.mu.Unlock()
	return p.rec.Start()
}

// takeVoiced reports whether any block since the last call was loud enough
// to be speech.
func (p *pipeline) takeVoiced() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.voiced
	p.voiced = false
	return v
}

func (p *pipeline) Recording() bool {
	return p.rec.Recording()
}

// Stop ends the recording and returns the WAV export. Recordings shorter than
// minRecording return errTooShort.
func (p *pipeline) Stop() (encoder.Container, error) {
	p.rec.Stop()
	if p.rec.Duration() < minRecording {
		p.rec.Reset()
		return encoder.Container{}, errTooShort
	}

	var out encoder.Container
	p.rec.Export(func(c encoder.Container) { out = c })

	p.mu.Lock()
	p.recordings++
	peak := p.peak
	p.mu.Unlock()

	log.RecordingMetrics(log.Recording{
		Backend:   p.backend,
		Device:    p.device,
		Format:    out.Format,
		AudioS:    out.Duration().Seconds(),
		Samples:   out.SampleCount,
		SizeKB:    float64(len(out.Data)) / 1024,
		EncodeMs:  float64(out.EncodeTime.Microseconds()) / 1000,
		PeakLevel: peak,
	})
	return out, nil
}

// Query transcribes rec and asks the resulting text. progress is told when
// the answering stage begins.
func (p *pipeline) Query(ctx context.Context, rec encoder.Container, progress func(stage)) queryResult {
	res := queryResult{Recording: rec}
	if progress != nil {
		progress(stageTranscribing)
	}
	tr, err := p.api.SpeechToText(ctx, rec)
	if err != nil {
		res.Err = fmt.Errorf("transcribing: %w", err)
		log.Errorf("speech-to-text failed: %v", err)
		return res
	}
	res.Question = tr.Text
	if progress != nil {
		progress(stageAnswering)
	}
	res.Answer, res.Err = p.Ask(ctx, tr.Text)
	return res
}

// Ask sends a typed or transcribed question.
func (p *pipeline) Ask(ctx context.Context, question string) (backend.Answer, error) {
	ans, err := ask(ctx, p.api, question)
	if err != nil {
		return backend.Answer{}, err
	}
	p.mu.Lock()
	p.queries++
	p.mu.Unlock()
	return ans, nil
}

type querier interface {
	ProcessQuery(ctx context.Context, question string) (backend.Answer, error)
}

func ask(ctx context.Context, api querier, question string) (backend.Answer, error) {
	question = strings.TrimSpace(question)
	ans, err := api.ProcessQuery(ctx, question)
	if err != nil {
		log.Errorf("query failed: %v", err)
		return backend.Answer{}, fmt.Errorf("asking: %w", err)
	}
	log.QueryText(question, ans.Text)
	return ans, nil
}

// Counts returns how many recordings were exported and questions answered.
func (p *pipeline) Counts() (recordings, queries int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recordings, p.queries
}

func sourceNames(sources []backend.Source) []string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		name := s.Filename
		if name == "" {
			name = "document " + s.DocumentID
		}
		names = append(names, name)
	}
	return names
}

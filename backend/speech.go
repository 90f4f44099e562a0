package backend

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"voxdoc/encoder"
	"voxdoc/log"
)

// ErrNoSpeech is returned when the service hears nothing it can transcribe.
var ErrNoSpeech = errors.New("no speech recognized")

type Transcription struct {
	Text      string
	Language  string
	RequestID string
	Metrics   *NetworkMetrics
}

type speechRequest struct {
	AudioData string `json:"audio_data"`
}

type speechResponse struct {
	Transcription string `json:"transcription"`
	LanguageCode  string `json:"language_code"`
	RequestID     string `json:"request_id"`
}

// SpeechToText sends a WAV recording to the server and returns the text. The
// server only accepts WAV.
func (c *Client) SpeechToText(ctx context.Context, rec encoder.Container) (Transcription, error) {
	if rec.Format != "" && rec.Format != encoder.FormatWAV {
		return Transcription{}, fmt.Errorf("speech-to-text needs wav audio, got %s", rec.Format)
	}
	if len(rec.Data) <= encoder.WAVHeaderSize {
		return Transcription{}, ErrNoSpeech
	}

	var resp speechResponse
	traced, err := c.sendJSON(ctx, http.MethodPost, "/speech-to-text", speechRequest{
		AudioData: base64.StdEncoding.EncodeToString(rec.Data),
	}, &resp, true)
	if err != nil {
		return Transcription{}, err
	}

	text := strings.TrimSpace(resp.Transcription)
	if text == "" {
		return Transcription{}, ErrNoSpeech
	}
	m := traced.Metrics
	log.Infof("speech-to-text: %.1f KB in %s, %s on the wire", float64(m.SentBytes)/1024,
		m.Total.Round(time.Millisecond), m.Sum().Round(time.Millisecond))
	return Transcription{Text: text, Language: resp.LanguageCode, RequestID: resp.RequestID, Metrics: m}, nil
}

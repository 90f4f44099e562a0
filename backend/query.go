package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

type Source struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"similarity_score"`
	Summary    string  `json:"summary"`
}

type Answer struct {
	Text           string   `json:"answer"`
	Sources        []Source `json:"sources"`
	ProcessingTime float64  `json:"processing_time"`
}

// Elapsed is the server-side processing time.
func (a Answer) Elapsed() time.Duration {
	return time.Duration(a.ProcessingTime * float64(time.Second))
}

type queryRequest struct {
	Query string `json:"query"`
}

// ProcessQuery asks a question against the signed-in user's indexed
// documents.
func (c *Client) ProcessQuery(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, errors.New("empty question")
	}
	var a Answer
	if err := c.doJSON(ctx, http.MethodPost, "/process-query", queryRequest{Query: question}, &a, true); err != nil {
		return Answer{}, err
	}
	return a, nil
}

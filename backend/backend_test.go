package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"voxdoc/encoder"
	"voxdoc/session"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *session.Store) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	store := session.NewStore("")
	c, err := New(srv.URL+"/", store)
	if err != nil {
		t.Fatal(err)
	}
	return c, store
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	if got, want := m.Sum(), 195*time.Millisecond; got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

// Run with -race: the transport fires trace callbacks from its own
// goroutines while the body is being written.
func TestTracedClientWithBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		w.Write(data[:4])
	}))
	t.Cleanup(srv.Close)

	tc := NewTracedClient(5 * time.Second)
	payload := strings.Repeat("voxdoc", 64*1024)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(payload))
			if err != nil {
				t.Error(err)
				return
			}
			resp, err := tc.Do(req)
			if err != nil {
				t.Errorf("Do: %v", err)
				return
			}
			m := resp.Metrics
			if string(resp.Body) != "voxd" {
				t.Errorf("body = %q", resp.Body)
			}
			if m.SentBytes != int64(len(payload)) {
				t.Errorf("SentBytes = %d", m.SentBytes)
			}
			if m.Total <= 0 || m.TTFB < 0 || m.Download < 0 {
				t.Errorf("metrics = %+v", m)
			}
		}()
	}
	wg.Wait()
}

type failTrailer struct{ bytes.Buffer }

// Write fails on the closing boundary, which multipart writes in one call.
func (f *failTrailer) Write(p []byte) (int, error) {
	if bytes.HasSuffix(p, []byte("--\r\n")) {
		return 0, errors.New("disk full")
	}
	return f.Buffer.Write(p)
}

func TestWriteFormCloseError(t *testing.T) {
	if _, err := writeForm(&failTrailer{}, "a.pdf", "application/pdf", []byte("%PDF")); err == nil {
		t.Error("error closing the form was dropped")
	}

	var buf bytes.Buffer
	ctype, err := writeForm(&buf, "a.pdf", "application/pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("writeForm: %v", err)
	}
	if !strings.HasPrefix(ctype, "multipart/form-data; boundary=") || !strings.Contains(buf.String(), "%PDF") {
		t.Errorf("form %s: %q", ctype, buf.String())
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, u := range []string{"localhost:8000", "ftp://x", "://"} {
		if _, err := New(u, session.NewStore("")); err == nil {
			t.Errorf("New(%q) succeeded", u)
		}
	}
}

func TestParseDetail(t *testing.T) {
	for _, tt := range []struct {
		name, body, want string
	}{
		{"string", `{"detail":"Invalid email or password"}`, "Invalid email or password"},
		{"validation", `{"detail":[{"loc":["body","email"],"msg":"field required"}]}`, "email: field required"},
		{"plain", "Internal Server Error\n", "Internal Server Error"},
		{"no detail", `{"error":"x"}`, `{"error":"x"}`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseDetail([]byte(tt.body)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("login sent an Authorization header")
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		var req credentials
		json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "a@b.c" || req.Password != "pw" {
			writeJSON(w, 401, map[string]string{"detail": "Invalid email or password"})
			return
		}
		writeJSON(w, 200, map[string]string{
			"status": "success", "access_token": "tok", "user_id": "u1", "user_email": "a@b.c",
		})
	})

	var notified []session.State
	store.OnSessionChange(func(s session.State) { notified = append(notified, s) })

	_, err := c.Login(context.Background(), "a@b.c", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Detail != "Invalid email or password" {
		t.Fatalf("bad login err = %v", err)
	}
	if store.IsAuthenticated() {
		t.Fatal("failed login authenticated the session")
	}

	st, err := c.Login(context.Background(), " a@b.c ", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if st.Token != "tok" || st.UserID != "u1" || store.Token() != "tok" {
		t.Errorf("state = %+v, store token = %q", st, store.Token())
	}
	if len(notified) != 1 {
		t.Errorf("notifications = %d, want 1", len(notified))
	}
}

func TestSignupMismatch(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent despite mismatched passwords")
	})
	if _, err := c.Signup(context.Background(), "a@b.c", "one", "two"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("err = %v", err)
	}
}

func TestAuthRequired(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent without a session")
	})
	if _, err := c.ProcessQuery(context.Background(), "hi"); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestUnauthorizedClearsSession(t *testing.T) {
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, map[string]string{"detail": "Invalid authentication"})
	})
	store.Set(session.State{Token: "expired"})

	_, err := c.ProcessQuery(context.Background(), "hello")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if store.IsAuthenticated() {
		t.Error("session not cleared after 401")
	}
}

func TestSpeechToText(t *testing.T) {
	rec, _ := encoder.Export(encoder.FormatWAV, []float32{0.5, 0.5, -1, -1, 0}, 8000)

	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speech-to-text" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		var req speechRequest
		json.NewDecoder(r.Body).Decode(&req)
		audio, err := base64.StdEncoding.DecodeString(req.AudioData)
		if err != nil || len(audio) != 54 || string(audio[:4]) != "RIFF" {
			t.Errorf("audio: %d bytes, err %v", len(audio), err)
		}
		writeJSON(w, 200, map[string]string{
			"status": "success", "transcription": "  what is the refund policy ", "language_code": "en-IN",
		})
	})
	store.Set(session.State{Token: "tok"})

	tr, err := c.SpeechToText(context.Background(), rec)
	if err != nil {
		t.Fatalf("SpeechToText: %v", err)
	}
	if tr.Text != "what is the refund policy" || tr.Language != "en-IN" {
		t.Errorf("got %+v", tr)
	}
	if tr.Metrics == nil || tr.Metrics.SentBytes <= 0 || tr.Metrics.Total <= 0 {
		t.Errorf("metrics = %+v", tr.Metrics)
	}
}

func TestSpeechToTextRejects(t *testing.T) {
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"transcription": ""})
	})
	store.Set(session.State{Token: "tok"})

	empty, _ := encoder.Export(encoder.FormatWAV, nil, 16000)
	if _, err := c.SpeechToText(context.Background(), empty); !errors.Is(err, ErrNoSpeech) {
		t.Errorf("header-only: err = %v", err)
	}
	flac := encoder.Container{Data: make([]byte, 100), Format: encoder.FormatFLAC}
	if _, err := c.SpeechToText(context.Background(), flac); err == nil {
		t.Error("flac accepted")
	}
	rec, _ := encoder.Export(encoder.FormatWAV, []float32{0.1}, 16000)
	if _, err := c.SpeechToText(context.Background(), rec); !errors.Is(err, ErrNoSpeech) {
		t.Errorf("blank transcription: err = %v", err)
	}
}

func TestProcessQuery(t *testing.T) {
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Query != "refund policy?" {
			t.Errorf("query = %q", req.Query)
		}
		io.WriteString(w, `{"answer":"30 days.","sources":[
			{"document_id":"7","filename":"terms.pdf","similarity_score":0.82,"summary":"Refunds within 30 days"}
		],"processing_time":1.5}`)
	})
	store.Set(session.State{Token: "tok"})

	a, err := c.ProcessQuery(context.Background(), "  refund policy? ")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if a.Text != "30 days." || len(a.Sources) != 1 {
		t.Fatalf("answer = %+v", a)
	}
	if s := a.Sources[0]; s.DocumentID != "7" || s.Filename != "terms.pdf" || s.Score != 0.82 {
		t.Errorf("source = %+v", s)
	}
	if a.Elapsed() != 1500*time.Millisecond {
		t.Errorf("Elapsed = %v", a.Elapsed())
	}

	if _, err := c.ProcessQuery(context.Background(), "   "); err == nil {
		t.Error("blank question accepted")
	}
}

func TestUploadFile(t *testing.T) {
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename == "dup.pdf" {
			writeJSON(w, 409, map[string]string{"detail": "Document 'dup.pdf' already exists"})
			return
		}
		if hdr.Header.Get("Content-Type") != "application/pdf" || string(data) != "%PDF-1.4" {
			t.Errorf("part: %s %q", hdr.Header.Get("Content-Type"), data)
		}
		writeJSON(w, 200, map[string]any{"status": "success", "filename": hdr.Filename, "document_id": 12})
	})
	store.Set(session.State{Token: "tok"})

	dir := t.TempDir()
	ok := filepath.Join(dir, "report.PDF")
	dup := filepath.Join(dir, "dup.pdf")
	txt := filepath.Join(dir, "notes.txt")
	for _, p := range []string{ok, dup, txt} {
		os.WriteFile(p, []byte("%PDF-1.4"), 0644)
	}

	u, err := c.UploadFile(context.Background(), ok)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if u.ID() != "12" || u.Filename != "report.PDF" {
		t.Errorf("upload = %+v", u)
	}
	if _, err := c.UploadFile(context.Background(), dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate: err = %v", err)
	}
	if _, err := c.UploadFile(context.Background(), txt); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("txt: err = %v", err)
	}
}

func TestDownloadDocument(t *testing.T) {
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/download-document/7":
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Content-Disposition", "attachment; filename=annual report.pdf")
			io.WriteString(w, "%PDF")
		case "/download-document/8":
			w.Header().Set("Content-Type", "image/png")
			io.WriteString(w, "png")
		default:
			writeJSON(w, 404, map[string]string{"detail": "Document not found or access denied"})
		}
	})
	store.Set(session.State{Token: "tok"})
	dir := t.TempDir()

	path, err := c.DownloadDocument(context.Background(), "7", dir)
	if err != nil {
		t.Fatalf("DownloadDocument: %v", err)
	}
	if filepath.Base(path) != "annual report.pdf" {
		t.Errorf("path = %s", path)
	}
	if data, _ := os.ReadFile(path); string(data) != "%PDF" {
		t.Errorf("content = %q", data)
	}

	path, err = c.DownloadDocument(context.Background(), "8", dir)
	if err != nil || filepath.Ext(path) != ".png" {
		t.Errorf("fallback name: %s, %v", path, err)
	}

	_, err = c.DownloadDocument(context.Background(), "9", dir)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 {
		t.Errorf("missing doc: err = %v", err)
	}
}

func TestAttachmentName(t *testing.T) {
	for _, tt := range []struct{ in, want string }{
		{`attachment; filename="a.pdf"`, "a.pdf"},
		{`attachment; filename=../../etc/passwd`, "passwd"},
		{`attachment`, ""},
		{``, ""},
	} {
		if got := attachmentName(tt.in); got != tt.want {
			t.Errorf("attachmentName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHealth(t *testing.T) {
	status := 200
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("health sent credentials")
		}
		if status == 200 {
			writeJSON(w, 200, map[string]any{"status": "degraded", "services": map[string]string{"openai": "error: quota"}})
			return
		}
		writeJSON(w, status, map[string]string{"status": "unhealthy", "error": "boom"})
	})

	h, err := c.Health(context.Background())
	if err != nil || h.OK() || h.Services["openai"] != "error: quota" {
		t.Errorf("degraded: %+v, %v", h, err)
	}

	status = 500
	h, err = c.Health(context.Background())
	if err != nil || h.Status != "unhealthy" || h.Error != "boom" {
		t.Errorf("unhealthy: %+v, %v", h, err)
	}
}

func TestLogoutAlwaysClears(t *testing.T) {
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 500, map[string]string{"detail": "down"})
	})
	store.Set(session.State{Token: "tok"})
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if store.IsAuthenticated() {
		t.Error("session survived logout")
	}
}

func TestVerify(t *testing.T) {
	valid := true
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"authenticated": valid, "user_id": "u1"})
	})
	store.Set(session.State{Token: "tok"})

	if v, err := c.Verify(context.Background()); err != nil || v.UserID != "u1" {
		t.Errorf("valid: %+v, %v", v, err)
	}
	valid = false
	if _, err := c.Verify(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("invalid: err = %v", err)
	}
	if store.IsAuthenticated() {
		t.Error("invalid token kept")
	}
}

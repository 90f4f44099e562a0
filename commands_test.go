package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxdoc/audio"
	"voxdoc/backend"
	"voxdoc/encoder"
	"voxdoc/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// fakeServer mimics the document assistant API closely enough for the
// commands.
func fakeServer() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["email"] != "a@b.c" || req["password"] != "pw" {
			writeJSON(w, 401, map[string]string{"detail": "Invalid email or password"})
			return
		}
		writeJSON(w, 200, map[string]string{"access_token": "tok", "user_id": "u1", "user_email": "a@b.c"})
	})
	mux.HandleFunc("GET /auth/verify", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"authenticated": r.Header.Get("Authorization") == "Bearer tok", "user_id": "u1"})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"message": "Logged out"})
	})
	mux.HandleFunc("POST /speech-to-text", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AudioData string `json:"audio_data"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		data, err := base64.StdEncoding.DecodeString(req.AudioData)
		if err != nil || !bytes.HasPrefix(data, []byte("RIFF")) {
			writeJSON(w, 400, map[string]string{"detail": "Invalid audio data"})
			return
		}
		writeJSON(w, 200, map[string]string{"transcription": " what is the refund policy ", "language_code": "en", "request_id": "r1"})
	})
	mux.HandleFunc("POST /process-query", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, 200, map[string]any{
			"answer":          "Refunds are accepted within 30 days.",
			"sources":         []map[string]any{{"document_id": "3", "filename": "policy.pdf", "similarity_score": 0.91, "summary": "Returns"}},
			"processing_time": 1.2,
		})
	})
	mux.HandleFunc("POST /upload-file", func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, 400, map[string]string{"detail": "No file"})
			return
		}
		f.Close()
		if hdr.Filename == "dup.pdf" {
			writeJSON(w, 409, map[string]string{"detail": "File dup.pdf already exists"})
			return
		}
		writeJSON(w, 200, map[string]any{"status": "success", "filename": hdr.Filename, "document_id": 7, "summary": "A short doc"})
	})
	mux.HandleFunc("POST /start-indexing", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{
			"message":           "Indexing complete",
			"last_indexed_time": "2026-10-19T10:00:00",
			"total_documents":   2,
			"progress_info":     map[string]int{"documents_embedded": 2, "total_documents": 2},
		})
	})
	mux.HandleFunc("GET /download-document/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", "attachment; filename=policy.pdf")
		w.Write([]byte("%PDF-1.4 " + r.PathValue("id")))
	})
	mux.HandleFunc("DELETE /delete-document/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "404" {
			writeJSON(w, 404, map[string]string{"detail": "Document not found"})
			return
		}
		writeJSON(w, 200, map[string]string{"message": "deleted"})
	})
	return mux
}

type testEnv struct {
	app    *app
	store  *session.Store
	out    *bytes.Buffer
	errOut *bytes.Buffer
	opened []string
}

func newTestEnv(t *testing.T, input string, signedIn bool) *testEnv {
	t.Helper()
	srv := httptest.NewServer(fakeServer())
	t.Cleanup(srv.Close)

	store := session.NewStore("")
	if signedIn {
		store.Set(session.State{Token: "tok", Email: "a@b.c", UserID: "u1"})
	}
	client, err := backend.New(srv.URL, store)
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{store: store, out: &bytes.Buffer{}, errOut: &bytes.Buffer{}}
	env.app = &app{
		ctx:      context.Background(),
		opts:     options{rate: 16000, longPress: 50 * time.Millisecond},
		sessions: store,
		client:   client,
		in:       bufio.NewReader(strings.NewReader(input)),
		stdin:    strings.NewReader(input),
		out:      env.out,
		errOut:   env.errOut,
		openAudio: func(string, audio.ProbeFunc) (audio.Context, error) {
			return audio.NewFakeContextFromSamples(tone(16000), 16000, false), nil
		},
		open: func(p string) error {
			env.opened = append(env.opened, p)
			return nil
		},
	}
	return env
}

func (e *testEnv) run(t *testing.T, args ...string) error {
	t.Helper()
	c, ok := findCommand(args[0])
	if !ok {
		t.Fatalf("no command %q", args[0])
	}
	return c.run(e.app, args[1:])
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, "a@b.c\npw\n", false)
	if err := env.run(t, "login"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if env.store.Token() != "tok" {
		t.Error("token not stored")
	}
	if !strings.Contains(env.out.String(), "Signed in as a@b.c") {
		t.Errorf("output = %q", env.out.String())
	}
}

func TestLoginRejected(t *testing.T) {
	env := newTestEnv(t, "wrong\n", false)
	err := env.run(t, "login", "-email", "a@b.c")
	if err == nil || !strings.Contains(err.Error(), "Invalid email or password") {
		t.Fatalf("err = %v", err)
	}
	if env.store.IsAuthenticated() {
		t.Error("rejected login stored a session")
	}
}

func TestSignupMismatch(t *testing.T) {
	env := newTestEnv(t, "a@b.c\npw1\npw2\n", false)
	if err := env.run(t, "signup"); !errors.Is(err, backend.ErrPasswordMismatch) {
		t.Errorf("err = %v, want ErrPasswordMismatch", err)
	}
}

func TestWhoamiAndLogout(t *testing.T) {
	env := newTestEnv(t, "", true)
	if err := env.run(t, "whoami"); err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if !strings.Contains(env.out.String(), "a@b.c (user u1)") {
		t.Errorf("output = %q", env.out.String())
	}
	if err := env.run(t, "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if env.store.IsAuthenticated() {
		t.Error("still signed in after logout")
	}
	if err := env.run(t, "whoami"); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Errorf("whoami after logout = %v", err)
	}
}

func TestDispatchExitCodes(t *testing.T) {
	env := newTestEnv(t, "", false)
	if code := env.app.dispatch([]string{"whoami"}); code != 1 {
		t.Errorf("signed-out whoami exit = %d, want 1", code)
	}
	if !strings.Contains(env.errOut.String(), "voxdoc login") {
		t.Errorf("no sign-in hint: %q", env.errOut.String())
	}
	if code := env.app.dispatch([]string{"ask"}); code != 2 {
		t.Errorf("empty ask exit = %d, want 2", code)
	}
}

func TestAsk(t *testing.T) {
	env := newTestEnv(t, "", true)
	if err := env.run(t, "ask", "what", "is", "the", "refund", "policy"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	out := env.out.String()
	for _, want := range []string{"Refunds are accepted within 30 days.", "Sources:", "1. policy.pdf [id 3, 91%]"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAskSignedOut(t *testing.T) {
	env := newTestEnv(t, "", false)
	if err := env.run(t, "ask", "hello"); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Errorf("err = %v", err)
	}
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t, "", true)
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"doc.pdf", "dup.pdf", "notes.txt"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("content"), 0644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}

	err := env.run(t, append([]string{"upload", "-index"}, paths...)...)
	if err == nil || !strings.Contains(err.Error(), "1 of 3 uploads failed") {
		t.Fatalf("err = %v", err)
	}
	out := env.out.String()
	for _, want := range []string{"uploaded doc.pdf (id 7)", "skipped dup.pdf: already uploaded", "Indexing complete", "2/2 documents embedded"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(env.errOut.String(), "unsupported file type") {
		t.Errorf("stderr = %q", env.errOut.String())
	}
}

func TestOpen(t *testing.T) {
	env := newTestEnv(t, "", true)
	dir := t.TempDir()

	if err := env.run(t, "open", "-dir", dir, "-print", "3"); err != nil {
		t.Fatalf("open -print: %v", err)
	}
	want := filepath.Join(dir, "policy.pdf")
	if strings.TrimSpace(env.out.String()) != want {
		t.Errorf("printed %q, want %q", env.out.String(), want)
	}
	if len(env.opened) != 0 {
		t.Error("-print opened the file")
	}

	if err := env.run(t, "open", "-dir", dir, "3"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(env.opened) != 1 || env.opened[0] != want {
		t.Errorf("opened %v", env.opened)
	}
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t, "", true)
	err := env.run(t, "delete", "3", "404")
	if err == nil || !strings.Contains(err.Error(), "Document not found") {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(env.out.String(), "deleted 3") {
		t.Errorf("output = %q", env.out.String())
	}
}

func TestRecord(t *testing.T) {
	for _, tt := range []struct {
		format string
		magic  string
	}{
		{encoder.FormatWAV, "RIFF"},
		{encoder.FormatFLAC, "fLaC"},
	} {
		t.Run(tt.format, func(t *testing.T) {
			env := newTestEnv(t, "", false)
			out := filepath.Join(t.TempDir(), "out."+tt.format)
			if err := env.run(t, "record", "-o", out, "-for", "10ms", "-format", tt.format); err != nil {
				t.Fatalf("record: %v", err)
			}
			data, err := os.ReadFile(out)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.HasPrefix(data, []byte(tt.magic)) {
				t.Errorf("file starts with %q", data[:4])
			}
			if !strings.Contains(env.out.String(), "(1.0s,") {
				t.Errorf("output = %q", env.out.String())
			}
		})
	}
}

func TestRecordBadFormat(t *testing.T) {
	env := newTestEnv(t, "", false)
	if err := env.run(t, "record", "-format", "mp3"); err == nil {
		t.Error("accepted mp3")
	}
}

func TestDevices(t *testing.T) {
	env := newTestEnv(t, "", false)
	if err := env.run(t, "devices"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(env.out.String(), "* fake") {
		t.Errorf("output = %q", env.out.String())
	}
}

func TestScript(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	env := newTestEnv(t, "", true)
	fake := audio.NewFakeContextFromSamples(tone(3200), 16000, false)
	script := strings.Join([]string{"START", "WAIT_AUDIO_DONE", "STOP", "WAIT", "COPY", "OPEN 1", "BOGUS", "QUIT", "START"}, "\n")

	var out bytes.Buffer
	if err := env.app.runScript(fake, strings.NewReader(script), &out); err != nil {
		t.Fatalf("runScript: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"RECORDING",
		"STOPPED",
		"STAGE transcribing",
		"STAGE answering",
		"QUESTION: what is the refund policy",
		"ANSWER: Refunds are accepted within 30 days.",
		"SOURCE: 3 policy.pdf 0.91",
		"STATUS: COPIED Refunds are accepted within 30 days. Sources: - policy.pdf",
		"STATUS: OPENED ",
		`ERROR: unknown command "BOGUS"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Count(got, "RECORDING") != 1 {
		t.Error("commands after QUIT were run")
	}
}

func TestScriptHotkey(t *testing.T) {
	env := newTestEnv(t, "", true)
	fake := audio.NewFakeContextFromSamples(tone(3200), 16000, false)
	script := strings.Join([]string{"KEYDOWN", "SLEEP 100", "KEYUP", "SLEEP 50", "WAIT", "QUIT"}, "\n")

	var out bytes.Buffer
	if err := env.app.runScript(fake, strings.NewReader(script), &out); err != nil {
		t.Fatalf("runScript: %v", err)
	}
	if !strings.Contains(out.String(), "ANSWER: Refunds are accepted") {
		t.Errorf("hold-to-talk did not produce an answer:\n%s", out.String())
	}
}

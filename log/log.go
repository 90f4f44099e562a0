package log

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	diagName  = "diagnostics_log.txt"
	queryName = "query_log.txt"
)

var (
	diagLog   zerolog.Logger
	diagFile  *os.File
	queryFile *os.File
	logMu     sync.Mutex
	logReady  bool
	pid       int
	dir       string
)

// Recording describes one finished capture.
type Recording struct {
	Backend   string
	Device    string
	Format    string
	AudioS    float64
	Samples   int
	SizeKB    float64
	EncodeMs  float64
	PeakLevel float64
}

// Request is the network timing of one backend call.
type Request struct {
	Endpoint   string
	RequestID  string
	Status     int
	DNSMs      float64
	TLSMs      float64
	TTFBMs     float64
	TotalMs    float64
	SentKB     float64
	ConnReused bool
}

func ResolveDir(flagPath string) (string, error) {
	if flagPath != "" {
		return absPath(flagPath)
	}
	if envPath := os.Getenv("VOXDOC_LOG_PATH"); envPath != "" {
		return absPath(envPath)
	}
	return defaultDir()
}

// defaultDir follows each platform's convention for per-user log files.
func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", "voxdoc"), nil
	case "windows":
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Local")
		}
		return filepath.Join(base, "voxdoc", "logs"), nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "voxdoc", "logs"), nil
}

func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}
	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, diagName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	queryFile, err = os.OpenFile(filepath.Join(dir, queryName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		diagFile.Close()
		diagFile = nil
		return err
	}

	w := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(w).With().Timestamp().Int("pid", pid).Logger()
	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if queryFile != nil {
		queryFile.Close()
		queryFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(backend, device, format string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("backend", backend).
		Str("device", device).
		Str("format", format).
		Msg("session_start")
}

func SessionEnd(recordings, queries int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("recordings", recordings).
		Int("queries", queries).
		Msg("session_end")
}

func RecordingMetrics(r Recording) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("backend", r.Backend).
		Str("device", r.Device).
		Str("format", r.Format).
		Float64("audio_s", r.AudioS).
		Int("samples", r.Samples).
		Float64("size_kb", r.SizeKB).
		Float64("encode_ms", r.EncodeMs).
		Float64("peak", r.PeakLevel).
		Msg("recording")
}

func RequestMetrics(r Request) {
	if !logReady {
		return
	}
	conn := "new"
	if r.ConnReused {
		conn = "reused"
	}
	diagLog.Info().
		Str("endpoint", r.Endpoint).
		Str("request_id", r.RequestID).
		Int("status", r.Status).
		Str("conn", conn).
		Float64("dns_ms", r.DNSMs).
		Float64("tls_ms", r.TLSMs).
		Float64("ttfb_ms", r.TTFBMs).
		Float64("total_ms", r.TotalMs).
		Float64("sent_kb", r.SentKB).
		Msg("request")
}

// QueryText appends one line per question/answer pair to the query log.
// Tabs and newlines inside the text are flattened so each entry stays on
// a single line.
func QueryText(question, answer string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if queryFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n",
		time.Now().Format("2006-01-02 15:04:05"), pid, flatten(question), flatten(answer))
	queryFile.WriteString(line)
}

var flattener = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

func flatten(s string) string {
	return flattener.Replace(strings.TrimSpace(s))
}

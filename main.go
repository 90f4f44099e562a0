package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"voxdoc/audio"
	"voxdoc/backend"
	"voxdoc/beep"
	"voxdoc/encoder"
	"voxdoc/hotkey"
	"voxdoc/log"
	"voxdoc/session"
	"voxdoc/shutdown"
)

var version = "dev"

type options struct {
	backendURL   string
	device       string
	setup        bool
	audioBackend string
	rate         int
	hotkey       string
	longPress    time.Duration
	realtime     bool
	testWAV      string
	beep         bool
}

// app is what every command runs against.
type app struct {
	ctx      context.Context
	opts     options
	sessions *session.Store
	client   *backend.Client

	in     *bufio.Reader
	stdin  io.Reader
	out    io.Writer
	errOut io.Writer

	openAudio func(preferred string, onFail audio.ProbeFunc) (audio.Context, error)
	open      func(path string) error
}

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "Usage: voxdoc [flags] [command] [args]\n\n")
	fmt.Fprintf(w, "Without a command voxdoc starts the voice assistant.\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "\nFlags:\n")
	flag.PrintDefaults()
}

func initCrashLog() {
	dir, err := log.ResolveDir("")
	if err != nil {
		return
	}
	initCrashLogIn(dir)
}

func initCrashLogIn(dir string) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(dir, "crash_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(f, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(f, debug.CrashOptions{})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run() {
	var opts options
	flag.StringVar(&opts.backendURL, "backend", envOr("VOXDOC_BACKEND_URL", backend.DefaultURL), "document assistant server URL (env VOXDOC_BACKEND_URL)")
	flag.StringVar(&opts.device, "device", "", "use named microphone device")
	flag.BoolVar(&opts.setup, "setup", false, "select microphone device interactively")
	flag.StringVar(&opts.audioBackend, "backend-audio", audio.BackendAuto, "audio backend: auto, malgo or pulse (linux)")
	flag.IntVar(&opts.rate, "rate", encoder.SampleRate, "capture sample rate in Hz")
	flag.StringVar(&opts.hotkey, "hotkey", hotkey.Default, "global record hotkey, empty to disable")
	flag.DurationVar(&opts.longPress, "longpress", 350*time.Millisecond, "hold longer than this to record push-to-talk style")
	flag.StringVar(&opts.testWAV, "test", "", "headless mode: replay this WAV and read commands from stdin")
	flag.BoolVar(&opts.realtime, "realtime", false, "in -test mode, replay audio at its natural pace")
	flag.BoolVar(&opts.beep, "beep", true, "play a tone when recording starts and stops")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Usage = usage
	flag.Parse()

	if *versionFlag {
		fmt.Printf("voxdoc %s\n", version)
		os.Exit(0)
	}
	if !opts.beep {
		beep.Disable()
	}
	if opts.rate <= 0 {
		fmt.Fprintf(os.Stderr, "Error: invalid sample rate %d\n", opts.rate)
		os.Exit(2)
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if *logPathFlag != "" {
		initCrashLogIn(logPath)
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	a, err := newApp(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		log.Close()
		os.Exit(1)
	}
	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()
	a.ctx = ctx

	code := a.dispatch(flag.Args())
	cancel()
	log.Close()
	os.Exit(code)
}

func newApp(opts options) (*app, error) {
	path, err := session.ResolvePath()
	if err != nil {
		return nil, fmt.Errorf("resolving session path: %w", err)
	}
	store := session.NewStore(path)
	if err := store.Load(); err != nil {
		log.Warnf("ignoring unreadable session: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	store.OnSessionChange(func(st session.State) {
		if st.Token == "" {
			log.Info("signed out")
		} else {
			log.Infof("signed in as %s", st.Email)
		}
	})

	client, err := backend.New(opts.backendURL, store)
	if err != nil {
		return nil, err
	}
	return &app{
		ctx:       context.Background(),
		opts:      opts,
		sessions:  store,
		client:    client,
		in:        bufio.NewReader(os.Stdin),
		stdin:     os.Stdin,
		out:       os.Stdout,
		errOut:    os.Stderr,
		openAudio: audio.NewContext,
		open:      backend.OpenDocument,
	}, nil
}

// dispatch runs the command named by args[0], or the voice assistant when
// args is empty, and returns the process exit code.
func (a *app) dispatch(args []string) int {
	var err error
	switch {
	case a.opts.testWAV != "":
		err = a.runTestMode(a.opts.testWAV)
	case len(args) == 0:
		err = a.runVoice()
	default:
		c, ok := findCommand(args[0])
		if !ok {
			fmt.Fprintf(a.errOut, "Error: unknown command %q\n\n", args[0])
			flag.Usage()
			return 2
		}
		err = c.run(a, args[1:])
	}

	var code exitCode
	switch {
	case err == nil:
		return 0
	case errors.As(err, &code):
		return int(code)
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(a.errOut, "Interrupted")
		return 130
	}
	log.Errorf("%v", err)
	fmt.Fprintf(a.errOut, "Error: %v\n", err)
	if errors.Is(err, session.ErrNotAuthenticated) || errors.Is(err, backend.ErrUnauthorized) {
		fmt.Fprintln(a.errOut, "Sign in with: voxdoc login")
	}
	return 1
}

// exitCode ends the process with the given status without printing an error.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

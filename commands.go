package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	"voxdoc/audio"
	"voxdoc/backend"
	"voxdoc/clipboard"
	"voxdoc/doctor"
	"voxdoc/encoder"
	"voxdoc/log"
	"voxdoc/recorder"
	"voxdoc/session"
)

type command struct {
	name    string
	summary string
	run     func(a *app, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"login", "sign in to the document assistant", (*app).cmdLogin},
		{"signup", "create an account", (*app).cmdSignup},
		{"logout", "sign out and forget the stored token", (*app).cmdLogout},
		{"whoami", "show the signed-in user", (*app).cmdWhoami},
		{"ask", "ask a typed question", (*app).cmdAsk},
		{"upload", "upload PDF or image documents", (*app).cmdUpload},
		{"index", "rebuild the search index over uploaded documents", (*app).cmdIndex},
		{"open", "download and open a document", (*app).cmdOpen},
		{"delete", "delete documents", (*app).cmdDelete},
		{"record", "record the microphone to a file", (*app).cmdRecord},
		{"devices", "list capture devices", (*app).cmdDevices},
		{"doctor", "run system diagnostics", (*app).cmdDoctor},
	}
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func (a *app) flagSet(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	fs.Usage = func() {
		fmt.Fprintf(a.errOut, "Usage: voxdoc %s %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// secret reads a password without echo when stdin is a terminal.
func (a *app) secret(label string) (string, error) {
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.out, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.out)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}
	return a.prompt(label)
}

func (a *app) cmdLogin(args []string) error {
	fs := a.flagSet("login", "[-email address]")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var err error
	if *email == "" {
		if *email, err = a.prompt("Email: "); err != nil {
			return err
		}
	}
	password, err := a.secret("Password: ")
	if err != nil {
		return err
	}
	st, err := a.client.Login(a.ctx, *email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Fprintf(a.out, "Signed in as %s\n", st.Email)
	return nil
}

func (a *app) cmdSignup(args []string) error {
	fs := a.flagSet("signup", "[-email address]")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var err error
	if *email == "" {
		if *email, err = a.prompt("Email: "); err != nil {
			return err
		}
	}
	password, err := a.secret("Password: ")
	if err != nil {
		return err
	}
	confirm, err := a.secret("Confirm password: ")
	if err != nil {
		return err
	}
	res, err := a.client.Signup(a.ctx, *email, password, confirm)
	if err != nil {
		return fmt.Errorf("signup failed: %w", err)
	}
	if res.Message != "" {
		fmt.Fprintln(a.out, res.Message)
	}
	fmt.Fprintln(a.out, "Account created. Sign in with: voxdoc login")
	return nil
}

func (a *app) cmdLogout(args []string) error {
	if err := a.flagSet("logout", "").Parse(args); err != nil {
		return err
	}
	if !a.sessions.IsAuthenticated() {
		fmt.Fprintln(a.out, "Not signed in")
		return nil
	}
	if err := a.client.Logout(a.ctx); err != nil {
		fmt.Fprintf(a.errOut, "Warning: server logout failed: %v\n", err)
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *app) cmdWhoami(args []string) error {
	if err := a.flagSet("whoami", "").Parse(args); err != nil {
		return err
	}
	if !a.sessions.IsAuthenticated() {
		return session.ErrNotAuthenticated
	}
	v, err := a.client.Verify(a.ctx)
	if err != nil {
		return err
	}
	st := a.sessions.State()
	fmt.Fprintf(a.out, "%s (user %s)\n", st.Email, v.UserID)
	return nil
}

func (a *app) cmdAsk(args []string) error {
	fs := a.flagSet("ask", "[-copy] question...")
	copyFlag := fs.Bool("copy", false, "copy the answer to the clipboard")
	if err := fs.Parse(args); err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fs.Usage()
		return exitCode(2)
	}
	ans, err := ask(a.ctx, a.client, question)
	if err != nil {
		return err
	}
	printAnswer(a.out, ans)
	if *copyFlag {
		if err := clipboard.Copy(clipboard.Answer(ans.Text, sourceNames(ans.Sources))); err != nil {
			fmt.Fprintf(a.errOut, "Warning: copy failed: %v\n", err)
		}
	}
	return nil
}

func printAnswer(w io.Writer, ans backend.Answer) {
	fmt.Fprintln(w, strings.TrimSpace(ans.Text))
	if len(ans.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for i, s := range ans.Sources {
			fmt.Fprintf(w, "  %d. %s [id %s, %.0f%%]\n", i+1, s.Filename, s.DocumentID, s.Score*100)
		}
	}
}

func (a *app) cmdUpload(args []string) error {
	fs := a.flagSet("upload", "[-index] file...")
	index := fs.Bool("index", false, "rebuild the index after uploading")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitCode(2)
	}

	var failed, uploaded int
	for _, path := range fs.Args() {
		if a.ctx.Err() != nil {
			return a.ctx.Err()
		}
		u, err := a.client.UploadFile(a.ctx, path)
		switch {
		case errors.Is(err, backend.ErrDuplicate):
			fmt.Fprintf(a.out, "skipped %s: already uploaded\n", filepath.Base(path))
		case err != nil:
			failed++
			fmt.Fprintf(a.errOut, "failed %s: %v\n", filepath.Base(path), err)
		default:
			uploaded++
			fmt.Fprintf(a.out, "uploaded %s (id %s)\n", u.Filename, u.ID())
			if u.Summary != "" {
				fmt.Fprintf(a.out, "  %s\n", u.Summary)
			}
		}
	}
	if *index && uploaded > 0 {
		if err := a.cmdIndex(nil); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, fs.NArg())
	}
	return nil
}

func (a *app) cmdIndex(args []string) error {
	if err := a.flagSet("index", "").Parse(args); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Indexing documents...")
	res, err := a.client.StartIndexing(a.ctx)
	if err != nil {
		return err
	}
	if res.Message != "" {
		fmt.Fprintln(a.out, res.Message)
	}
	fmt.Fprintf(a.out, "%d/%d documents embedded\n", res.Progress.DocumentsEmbedded, res.Progress.TotalDocuments)
	if res.LastIndexedTime != "" {
		fmt.Fprintf(a.out, "last indexed: %s\n", res.LastIndexedTime)
	}
	return nil
}

func (a *app) cmdOpen(args []string) error {
	fs := a.flagSet("open", "[-dir path] [-print] document-id")
	dir := fs.String("dir", filepath.Join(os.TempDir(), "voxdoc"), "download directory")
	printOnly := fs.Bool("print", false, "print the downloaded path instead of opening it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitCode(2)
	}
	path, err := a.client.DownloadDocument(a.ctx, fs.Arg(0), *dir)
	if err != nil {
		return err
	}
	if *printOnly {
		fmt.Fprintln(a.out, path)
		return nil
	}
	if err := a.open(path); err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	fmt.Fprintf(a.out, "opened %s\n", path)
	return nil
}

func (a *app) cmdDelete(args []string) error {
	fs := a.flagSet("delete", "document-id...")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitCode(2)
	}
	for _, id := range fs.Args() {
		if err := a.client.DeleteDocument(a.ctx, id); err != nil {
			return fmt.Errorf("deleting %s: %w", id, err)
		}
		fmt.Fprintf(a.out, "deleted %s\n", id)
	}
	return nil
}

// openCapture opens the audio backend and the device chosen by -device or
// -setup.
func (a *app) openCapture() (audio.Context, audio.CaptureDevice, error) {
	actx, err := a.openAudio(a.opts.audioBackend, func(name string, err error) {
		log.Warnf("audio backend %s unavailable: %v", name, err)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing audio: %w", err)
	}

	var dev *audio.DeviceInfo
	switch {
	case a.opts.device != "":
		dev, err = audio.FindDevice(actx, a.opts.device)
	case a.opts.setup:
		f, ok := a.stdin.(*os.File)
		if !ok {
			err = errors.New("-setup needs an interactive terminal")
			break
		}
		dev, err = audio.SelectDevice(actx, f, a.out)
	}
	if err != nil {
		actx.Close()
		return nil, nil, err
	}

	capture, err := actx.NewCapture(dev, audio.CaptureConfig{SampleRate: a.opts.rate, Channels: encoder.Channels})
	if err != nil {
		actx.Close()
		return nil, nil, fmt.Errorf("opening capture: %w", err)
	}
	return actx, capture, nil
}

func (a *app) cmdRecord(args []string) error {
	fs := a.flagSet("record", "[-o file] [-for duration] [-format wav|flac]")
	out := fs.String("o", "", "output file (default recording.<format>)")
	dur := fs.Duration("for", 5*time.Second, "recording length, 0 records until interrupted")
	format := fs.String("format", encoder.FormatWAV, "file format: wav or flac")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *format != encoder.FormatWAV && *format != encoder.FormatFLAC {
		return fmt.Errorf("unknown format %q (use wav or flac)", *format)
	}
	if *out == "" {
		*out = "recording." + *format
	}

	actx, capture, err := a.openCapture()
	if err != nil {
		return err
	}
	defer actx.Close()
	defer capture.Close()

	rec := recorder.New(capture, a.opts.rate)
	defer rec.Close()

	if err := rec.Start(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Recording from %s...\n", capture.DeviceName())
	var timeout <-chan time.Time
	if *dur > 0 {
		t := time.NewTimer(*dur)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-timeout:
	case <-a.ctx.Done():
	}
	rec.Stop()

	c, err := rec.ExportAs(*format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, c.Data, 0644); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %s (%.1fs, %.1f KB)\n", *out, c.Duration().Seconds(), float64(len(c.Data))/1024)
	return nil
}

func (a *app) cmdDevices(args []string) error {
	if err := a.flagSet("devices", "").Parse(args); err != nil {
		return err
	}
	actx, err := a.openAudio(a.opts.audioBackend, nil)
	if err != nil {
		return fmt.Errorf("initializing audio: %w", err)
	}
	defer actx.Close()

	devices, err := actx.Devices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return audio.ErrNoDevices
	}
	fmt.Fprintf(a.out, "%s capture devices:\n", actx.Backend())
	for _, d := range devices {
		mark := " "
		if d.IsDefault {
			mark = "*"
		}
		fmt.Fprintf(a.out, "%s %s\n", mark, d.Name)
	}
	return nil
}

func (a *app) cmdDoctor(args []string) error {
	fs := a.flagSet("doctor", "[-for duration]")
	captureFor := fs.Duration("for", 2*time.Second, "microphone test length")
	if err := fs.Parse(args); err != nil {
		return err
	}
	code := doctor.Run(a.ctx, doctor.Config{
		Out:           a.out,
		OpenAudio:     a.openAudio,
		AudioBackend:  a.opts.audioBackend,
		Device:        a.opts.device,
		SampleRate:    a.opts.rate,
		CaptureFor:    *captureFor,
		Hotkey:        a.opts.hotkey,
		Backend:       a.client,
		Authenticated: a.sessions.IsAuthenticated(),
	})
	if code != 0 {
		return exitCode(code)
	}
	return nil
}

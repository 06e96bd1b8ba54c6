// Package cli implements relayctl, a command line client for the relay.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sir_venger/mediarelay/pkg/relayclient"
	"golang.org/x/term"
)

const defaultServer = "http://localhost:3000"

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// App holds the process streams and environment of one relayctl invocation.
type App struct {
	Stdin  *os.File
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string

	newClient func(relayclient.Options) relayclient.Client
}

// NewApp returns an App bound to the process streams.
func NewApp() *App {
	return &App{
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		Getenv:    os.Getenv,
		newClient: relayclient.New,
	}
}

// Run executes args (without the program name) and returns the exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.usage()
		return 2
	}

	var err error
	switch args[0] {
	case "upload":
		err = a.upload(ctx, args[1:])
	case "download":
		err = a.download(ctx, args[1:])
	case "health":
		err = a.health(ctx, args[1:])
	case "help", "-h", "--help":
		a.usage()
		return 0
	default:
		fmt.Fprintf(a.Stderr, "unknown command %q\n", args[0])
		a.usage()
		return 2
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(a.Stderr, "error:", err)
		return 1
	}
	return 0
}

func (a *App) usage() {
	fmt.Fprint(a.Stderr, `usage: relayctl <command> [flags]

commands:
  upload <file>      upload a file, prints the stored name and URLs
  download <name>    download a stored file
  health             check that the relay answers

environment:
  RELAY_URL          relay base URL (default `+defaultServer+`)
  RELAY_TOKEN        upload token
`)
}

type commonFlags struct {
	server string
	quiet  bool
}

func (a *App) flagSet(name string, c *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.Stderr)

	server := a.Getenv("RELAY_URL")
	if server == "" {
		server = defaultServer
	}
	fs.StringVar(&c.server, "server", server, "relay base URL")
	fs.BoolVar(&c.quiet, "q", false, "do not draw a progress bar")
	return fs
}

func (a *App) client(c commonFlags, token string) relayclient.Client {
	opts := relayclient.Options{BaseURL: c.server, Token: token}
	if !c.quiet && a.stderrIsTerminal() {
		opts.Progress = a.Stderr
	}
	return a.newClient(opts)
}

func (a *App) stderrIsTerminal() bool {
	f, ok := a.Stderr.(*os.File)
	return ok && isTerminal(int(f.Fd()))
}

func (a *App) upload(ctx context.Context, args []string) error {
	var c commonFlags
	fs := a.flagSet("upload", &c)
	token := fs.String("token", "", "upload token (default $RELAY_TOKEN, prompted when empty)")
	as := fs.String("name", "", "file name to report to the relay (default: base name of <file>)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("upload: exactly one file is required")
	}

	tok, err := a.token(*token)
	if err != nil {
		return err
	}

	path := fs.Arg(0)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}

	name := *as
	if name == "" {
		name = filepath.Base(path)
	}

	res, err := a.client(c, tok).Upload(ctx, relayclient.UploadRequest{Filename: name, Reader: f, Size: st.Size()})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(a.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// token resolves the upload token: flag, then RELAY_TOKEN, then an interactive prompt.
func (a *App) token(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := a.Getenv("RELAY_TOKEN"); v != "" {
		return v, nil
	}
	if a.Stdin == nil || !isTerminal(int(a.Stdin.Fd())) {
		return "", errors.New("no upload token: pass -token or set RELAY_TOKEN")
	}

	fmt.Fprint(a.Stderr, "Upload token: ")
	b, err := readPassword(int(a.Stdin.Fd()))
	fmt.Fprintln(a.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (a *App) download(ctx context.Context, args []string) (err error) {
	var c commonFlags
	fs := a.flagSet("download", &c)
	out := fs.String("o", "", `output path, "-" for stdout (default: the stored name)`)
	if err = fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("download: exactly one stored name is required")
	}
	name := fs.Arg(0)

	body, err := a.client(c, "").Download(ctx, name)
	if err != nil {
		return err
	}
	defer body.Close()

	if *out == "-" {
		_, err = io.Copy(a.Stdout, body)
		return err
	}

	dst := *out
	if dst == "" {
		dst = filepath.Base(name)
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	_, err = io.Copy(f, body)
	return err
}

func (a *App) health(ctx context.Context, args []string) error {
	var c commonFlags
	fs := a.flagSet("health", &c)
	if err := fs.Parse(args); err != nil {
		return err
	}

	h, err := a.client(c, "").Health(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Stdout, "%s %s %s\n", h.Service, h.Status, h.Timestamp)
	return nil
}

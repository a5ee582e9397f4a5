// Command classroom is a terminal client for the e-learning backend:
// notifications with a live unread badge, direct messages and the course
// catalogue.
//
// Usage:
//
//	classroom [--config path] [--demo] [--log-level level] [command]
//
// Commands:
//
//	tui       run the terminal UI (default)
//	login     sign in and remember the session
//	logout    sign out and forget the session
//	digest    write or deliver a digest of unread notifications
//	announce  post a course announcement and notify enrolled students
//	version   print the version
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/nhle/classroom/internal/app"
	"github.com/nhle/classroom/internal/backend"
	"github.com/nhle/classroom/internal/credential"
	"github.com/nhle/classroom/internal/digest"
	"github.com/nhle/classroom/internal/gateway"
	"github.com/nhle/classroom/internal/logging"
	"github.com/nhle/classroom/internal/metrics"
	"github.com/nhle/classroom/internal/model"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const commandTimeout = 60 * time.Second

// env is what every subcommand runs with.
type env struct {
	cfg        *model.AppConfig
	configPath string
	creds      credential.Store
	stdout     io.Writer
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := pflag.NewFlagSet("classroom", pflag.ContinueOnError)
	global.SetInterspersed(false)
	configPath := global.String("config", model.DefaultConfigPath(), "path to the config file")
	demo := global.Bool("demo", false, "run against the demo backend, ignoring configured credentials")
	logLevel := global.String("log-level", "", "override the configured log level")
	global.Usage = usage(global)
	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	name, rest := "tui", global.Args()
	if len(rest) > 0 {
		name, rest = rest[0], rest[1:]
	}
	if name == "version" {
		fmt.Println("classroom", version)
		return 0
	}

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "classroom:", err)
		return 1
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	e := env{
		cfg:        cfg,
		configPath: *configPath,
		creds:      credential.Default(model.ConfigDir()),
		stdout:     os.Stdout,
	}
	if *demo {
		cfg.Backend = model.BackendConfig{Driver: model.DriverREST, TimeoutSec: 1, RequestsPerSec: 1}
		e.creds = credential.NewMemory()
	}

	closeLog, err := setupLogging(cfg.Log, name == "tui")
	if err != nil {
		fmt.Fprintln(os.Stderr, "classroom:", err)
		return 1
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
				logging.Error().Err(err).Str("addr", cfg.Metrics.Listen).Msg("metrics listener stopped")
			}
		}()
	}

	switch name {
	case "tui":
		err = runTUI(ctx, e)
	case "login":
		err = runLogin(ctx, e, rest)
	case "logout":
		err = runLogout(ctx, e)
	case "digest":
		err = runDigest(ctx, e, rest)
	case "announce":
		err = runAnnounce(ctx, e, rest)
	default:
		fmt.Fprintf(os.Stderr, "classroom: unknown command %q\n", name)
		global.Usage()
		return 2
	}
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		logging.Error().Err(err).Str("command", name).Msg("command failed")
		fmt.Fprintln(os.Stderr, "classroom:", err)
		return 1
	}
	return 0
}

func usage(fs *pflag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, `Usage: classroom [flags] [command]

Commands:
  tui        run the terminal UI (default)
  login      sign in and remember the session
  logout     sign out and forget the session
  digest     write or deliver a digest of unread notifications
  announce   post a course announcement
  version    print the version

Flags:
%s`, fs.FlagUsages())
	}
}

// setupLogging sends logs to the configured file. The terminal UI owns
// the screen, so it always logs to a file; the other commands log to
// stderr when no file is configured.
func setupLogging(cfg model.LogConfig, tui bool) (func(), error) {
	path := cfg.File
	if path == "" && tui {
		path = filepath.Join(model.ConfigDir(), "classroom.log")
	}
	if path == "" {
		logging.Init(logging.Config{Level: cfg.Level, Format: "console", Output: os.Stderr})
		return func() {}, nil
	}

	f, err := logging.OpenFile(path)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: cfg.Level, Format: cfg.Format, Output: f})
	return func() { _ = f.Close() }, nil
}

func connFor(b *backend.Backend) app.Conn {
	return app.Conn{Gateway: b.Gateway, Auth: b.Auth, Sessions: b, Close: b.Close}
}

func runTUI(ctx context.Context, e env) error {
	b, err := backend.Open(ctx, e.cfg.Backend, e.creds)
	if err != nil {
		return err
	}

	session, err := b.Restore(ctx)
	switch {
	case errors.Is(err, backend.ErrNoSession):
		session = nil
	case err != nil:
		logging.Warn().Err(err).Msg("restoring session")
		session = nil
	}

	creds := e.creds
	m := app.New(app.Options{
		Conn:       connFor(b),
		Session:    session,
		Config:     e.cfg,
		ConfigPath: e.configPath,
		Creds:      creds,
		Reopen: func(ctx context.Context, cfg *model.AppConfig) (app.Conn, error) {
			nb, err := backend.Open(ctx, cfg.Backend, creds)
			if err != nil {
				return app.Conn{}, err
			}
			return connFor(nb), nil
		},
		Probe: func(ctx context.Context, bc model.BackendConfig) error {
			return probe(ctx, bc, creds)
		},
	})

	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if fm, ok := final.(app.Model); ok {
		if cerr := fm.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("closing backend")
		}
	}
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// probe opens bc and lists the courses, the cheapest call every backend
// answers.
func probe(ctx context.Context, bc model.BackendConfig, creds credential.Store) error {
	if bc.IsDemo() {
		return errors.New("backend credentials are incomplete")
	}
	b, err := backend.Open(ctx, bc, creds)
	if err != nil {
		return err
	}
	defer b.Close()
	_, err = b.Gateway.ListCourses(ctx)
	return err
}

func runLogin(ctx context.Context, e env, args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	email := fs.String("email", "", "account email")
	otp := fs.Bool("otp", false, "sign in with a code sent by email instead of a password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	b, err := backend.Open(ctx, e.cfg.Backend, e.creds)
	if err != nil {
		return err
	}
	defer b.Close()
	if b.Mode() != gateway.ModeRemote {
		fmt.Fprintf(e.stdout, "The %s backend needs no sign in.\n", b.Mode())
		return nil
	}

	in := bufio.NewReader(os.Stdin)
	if *email == "" {
		if *email, err = prompt(in, "Email: "); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var s *model.Session
	if *otp {
		if err := b.Auth.SendOTP(ctx, *email); err != nil {
			return fmt.Errorf("sending code: %w", err)
		}
		code, err := prompt(in, "Code sent to "+*email+": ")
		if err != nil {
			return err
		}
		if s, err = b.Auth.VerifyOTP(ctx, *email, code); err != nil {
			return err
		}
	} else {
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}
		if s, err = b.Auth.SignIn(ctx, *email, password); err != nil {
			return err
		}
	}

	if err := b.Remember(s); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	logging.Info().Str("user_id", s.User.ID).Msg("signed in from the command line")
	fmt.Fprintf(e.stdout, "Signed in as %s\n", s.User.Email)
	return nil
}

func runLogout(ctx context.Context, e env) error {
	b, err := backend.Open(ctx, e.cfg.Backend, e.creds)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	s, err := b.Restore(ctx)
	if errors.Is(err, backend.ErrNoSession) {
		fmt.Fprintln(e.stdout, "Not signed in.")
		return nil
	}
	if err != nil {
		return err
	}
	if err := b.Forget(ctx, s); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, "Signed out.")
	return nil
}

// session opens the backend and resumes the stored session.
func session(ctx context.Context, e env) (*backend.Backend, *model.Session, error) {
	b, err := backend.Open(ctx, e.cfg.Backend, e.creds)
	if err != nil {
		return nil, nil, err
	}
	s, err := b.Restore(ctx)
	if err != nil {
		_ = b.Close()
		if errors.Is(err, backend.ErrNoSession) {
			return nil, nil, errors.New("not signed in, run `classroom login` first")
		}
		return nil, nil, err
	}
	return b, s, nil
}

func runDigest(ctx context.Context, e env, args []string) error {
	fs := pflag.NewFlagSet("digest", pflag.ContinueOnError)
	out := fs.StringP("out", "o", "-", "file to write the message to, - for stdout")
	deliver := fs.Bool("deliver", false, "append the digest to the configured IMAP mailbox")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	b, s, err := session(ctx, e)
	if err != nil {
		return err
	}
	defer b.Close()

	unread, err := digest.Collect(ctx, b.Gateway, s.User.ID, e.cfg.Sync.NotificationLimit)
	if err != nil {
		return err
	}
	to := e.cfg.Digest.To
	if to == "" {
		to = s.User.Email
	}
	d := digest.Digest{
		From:          e.cfg.Digest.From,
		To:            to,
		UserName:      s.User.FullName,
		Notifications: unread,
		GeneratedAt:   time.Now(),
	}

	if *deliver {
		password, err := e.creds.Get(credential.KeyIMAPPassword)
		if err != nil && !errors.Is(err, credential.ErrNotFound) {
			return fmt.Errorf("reading IMAP password: %w", err)
		}
		if err := digest.Send(ctx, digest.NewIMAPDeliverer(e.cfg.Digest, password), d); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "Delivered digest: %s\n", d.Subject())
		return nil
	}

	w := e.stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("creating %s: %w", *out, err)
		}
		defer f.Close()
		w = f
	}
	return digest.Compose(w, d)
}

func runAnnounce(ctx context.Context, e env, args []string) error {
	fs := pflag.NewFlagSet("announce", pflag.ContinueOnError)
	course := fs.String("course", "", "course id")
	title := fs.String("title", "", "announcement title")
	body := fs.String("body", "", "announcement text")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	b, s, err := session(ctx, e)
	if err != nil {
		return err
	}
	defer b.Close()

	created, err := gateway.NewPublisher(b.Gateway).Announce(ctx, model.Announcement{
		CourseID:  *course,
		TeacherID: s.User.ID,
		Title:     *title,
		Content:   *body,
	})
	if err != nil {
		return err
	}
	if created == nil {
		fmt.Fprintln(e.stdout, "Nothing was published (demo backend).")
		return nil
	}
	fmt.Fprintf(e.stdout, "Published announcement %s\n", created.ID)
	return nil
}

func prompt(in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%s is required", strings.TrimSuffix(strings.TrimSpace(label), ":"))
	}
	return line, nil
}

func readPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(bufio.NewReader(os.Stdin), label)
	}
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

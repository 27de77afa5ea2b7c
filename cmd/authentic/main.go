// Command authentic manages password records in a SQLite database.
//
// Usage:
//
//	authentic [-config file] [-db path] <command> [arguments]
//
// Commands:
//
//	add-user <login> [email]   create a record with a new password
//	set-password <login>       replace the password of a record
//	login <login>              authenticate, migrating legacy digests
//	hash <provider> [salt]     print the digest of a password
//	gen-key                    print a new aes256 key
//	info                       print the provider policy and database summary
//
// Passwords are read from AUTHENTIC_PASSWORD when set, otherwise from the
// terminal without echo, otherwise from the first line of standard input.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"golang.org/x/term"

	"github.com/hasbyte1/go-authentic/authentic"
	"github.com/hasbyte1/go-authentic/authentic/sqlstore"
	"github.com/hasbyte1/go-authentic/config"
	"github.com/hasbyte1/go-authentic/encryption"
	"github.com/hasbyte1/go-authentic/hashing"
	"github.com/hasbyte1/go-authentic/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// app holds what every command needs.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("authentic", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "TOML configuration file")
	dbPath := fs.String("db", "", "database path, overrides the configuration")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: authentic [-config file] [-db path] <add-user|set-password|login|hash|gen-key|info> [arguments]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig(*configPath, *dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	log, err := cfg.Logger(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	a := &app{cfg: cfg, log: log, stdin: stdin, stdout: stdout, stderr: stderr}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "add-user":
		err = a.addUser(ctx, rest)
	case "set-password":
		err = a.setPassword(ctx, rest)
	case "login":
		err = a.login(ctx, rest)
	case "hash":
		err = a.hash(rest)
	case "gen-key":
		err = a.genKey()
	case "info":
		err = a.info(ctx)
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig(path, dbPath string) (*config.Config, error) {
	var cfg *config.Config
	if path != "" {
		c, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		cfg = config.Default()
		cfg.ApplyEnvOverrides()
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Wiring
// ──────────────────────────────────────────────────────────────────────────────

type stack struct {
	store *sqlstore.Store
	reg   *hashing.Registry
	auth  *authentic.Authenticator
}

func (a *app) open(ctx context.Context) (*stack, error) {
	reg, err := a.cfg.Registry()
	if err != nil {
		return nil, err
	}
	policy, err := a.cfg.Policy(reg)
	if err != nil {
		return nil, err
	}
	fields := a.cfg.FieldMapping()
	store, err := sqlstore.Open(ctx, sqlstore.Options{
		Path:               a.cfg.Database.Path,
		Table:              a.cfg.Database.Table,
		Fields:             &fields,
		CaseSensitiveLogin: a.cfg.Database.CaseSensitiveLogin,
	})
	if err != nil {
		return nil, err
	}
	auth, err := authentic.New(store, policy, a.cfg.AuthenticatorConfig(a.log),
		authentic.WithTransitionListener(func(ev authentic.TransitionEvent) {
			fmt.Fprintf(a.stdout, "transitioned %s -> %s (%s, %s)\n", ev.From, ev.To, ev.Reason, ev.Outcome)
		}))
	if err != nil {
		store.Close()
		return nil, err
	}
	return &stack{store: store, reg: reg, auth: auth}, nil
}

func (a *app) validator(st *stack) (*session.Validator, error) {
	var opts []session.ValidatorOption
	opts = append(opts, session.WithLogger(a.log))
	if gopts, enabled := a.cfg.GuardOptions(); enabled {
		guard, err := session.NewBruteForceGuard(st.auth.Fields(), gopts)
		if err != nil {
			return nil, err
		}
		opts = append(opts, session.WithGuard(guard))
	}
	return session.NewValidator(st.auth, st.store, opts...)
}

// ──────────────────────────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────────────────────────

func (a *app) addUser(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("add-user takes <login> [email]")
	}
	st, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer st.store.Close()

	fields := st.auth.Fields()
	rec := authentic.NewModel(nil)
	rec.Set(fields.LoginField(), args[0])
	if len(args) == 2 && fields.Email != "" {
		rec.Set(fields.Email, args[1])
	}
	password, err := a.readPassword("New password: ")
	if err != nil {
		return err
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password must not be blank")
	}
	if err := st.auth.SetPassword(ctx, rec, password); err != nil {
		return err
	}
	if err := st.store.Save(ctx, rec, authentic.SaveOptions{}); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "created %s (%s)\n", args[0], rec.ID())
	return nil
}

func (a *app) setPassword(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("set-password takes <login>")
	}
	st, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer st.store.Close()

	field := st.auth.Fields().LoginField()
	rec, err := st.store.FindByLogin(ctx, field, args[0], a.cfg.Database.CaseSensitiveLogin)
	if err != nil {
		return err
	}
	password, err := a.readPassword("New password: ")
	if err != nil {
		return err
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password must not be blank")
	}
	if err := st.auth.SetPassword(ctx, rec, password); err != nil {
		return err
	}
	if err := st.auth.ResetPersistenceToken(rec); err != nil {
		return err
	}
	if err := st.store.Save(ctx, rec, authentic.SaveOptions{}); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "password updated for %s\n", args[0])
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("login takes <login>")
	}
	st, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer st.store.Close()

	v, err := a.validator(st)
	if err != nil {
		return err
	}
	m, err := session.NewManager(v)
	if err != nil {
		return err
	}
	password, err := a.readPassword("Password: ")
	if err != nil {
		return err
	}

	s := m.New(nil)
	s.Login, s.Password = args[0], password
	if err := s.Save(ctx); err != nil {
		var ae *session.AuthError
		if errors.As(err, &ae) {
			return ae.Generalized()
		}
		return err
	}
	rec := s.Record()
	fmt.Fprintf(a.stdout, "authenticated %s (login #%s)\n", args[0], rec.Get(st.auth.Fields().LoginCount))
	return nil
}

func (a *app) hash(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("hash takes <provider> [salt]")
	}
	reg, err := a.cfg.Registry()
	if err != nil {
		return err
	}
	p, err := reg.Provider(hashing.Name(args[0]))
	if err != nil {
		return err
	}
	password, err := a.readPassword("Password: ")
	if err != nil {
		return err
	}
	tokens := []string{password}
	if len(args) == 2 {
		tokens = append(tokens, args[1])
	}
	digest, err := p.Encrypt(tokens...)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, digest)
	return nil
}

func (a *app) genKey() error {
	key, err := encryption.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, encryption.EncodeKey(key))
	return nil
}

func (a *app) info(ctx context.Context) error {
	st, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer st.store.Close()

	n, err := st.store.Len(ctx)
	if err != nil {
		return err
	}
	names := make([]string, 0)
	for _, name := range st.auth.Policy().Names() {
		names = append(names, string(name))
	}
	fmt.Fprintf(a.stdout, "policy:    %s\n", strings.Join(names, ", "))
	fmt.Fprintf(a.stdout, "providers: %v\n", st.reg.Names())
	fmt.Fprintf(a.stdout, "database:  %s (%d records)\n", a.cfg.Database.Path, n)
	fmt.Fprintf(a.stdout, "columns:   %s\n", strings.Join(st.store.Columns(), ", "))
	return nil
}

// readPassword reads a password from AUTHENTIC_PASSWORD, the terminal or
// the first line of stdin, in that order.
func (a *app) readPassword(prompt string) (string, error) {
	if v, ok := os.LookupEnv("AUTHENTIC_PASSWORD"); ok {
		return v, nil
	}
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.stderr, prompt)
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(password), nil
	}
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

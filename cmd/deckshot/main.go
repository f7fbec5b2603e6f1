package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/root4loot/goutils/fileutil"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/root4loot/deckshot"
	"github.com/root4loot/deckshot/internal/cache"
	"github.com/root4loot/deckshot/internal/config"
	"github.com/root4loot/deckshot/internal/server"
	"github.com/root4loot/deckshot/pkg/capture"
	"github.com/root4loot/deckshot/pkg/deck"
	"github.com/root4loot/deckshot/pkg/log"
)

const appName = "deckshot"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

var longHelp = strings.TrimSpace(`
Capture the rendered deck of a KARDS deck builder page (or any page region) into a PNG.

A headless browser loads the page, waits for the network to go quiet and for the deck
region to appear, then captures that region. When the region never shows up the whole
page is captured instead. The run fails with a non-zero exit code when no valid image
could be written.

Configuration is read from $HOME/.deckshot/config.toml, then DECKSHOT_* environment
variables, then flags.
`)

var exampleUsage = strings.TrimSpace(`
  deckshot "https://www.kards.com/decks/deck-builder?hash=%25%2545%7Co0o5j4" deck.png
  deckshot deck '%%45|o0o5j4' deck.png --preset builder
  deckshot batch -l targets.txt -o ./screenshots -c 5
  deckshot serve --listen :8080 --redis localhost:6379
`)

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(format string, args ...any) error {
	return &exitError{code: exitUsage, err: fmt.Errorf(format, args...)}
}

func failure(err error) error {
	return &exitError{code: exitFailure, err: err}
}

// app holds state shared by the commands.
type app struct {
	cfg       config.Config
	cfgPath   string
	stdin     io.Reader
	stderr    io.Writer
	newEngine func(config.Config) capture.Engine
	log       log.Logger

	listFile string
}

func newApp(stdin io.Reader, stderr io.Writer) *app {
	return &app{
		cfg:       config.DefaultConfig(),
		stdin:     stdin,
		stderr:    stderr,
		newEngine: config.Config.NewEngine,
	}
}

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stderr))
}

func run(args []string, stdin io.Reader, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newApp(stdin, stderr).execute(ctx, args)
}

// execute runs the command line and maps the outcome to an exit code.
func (a *app) execute(ctx context.Context, args []string) int {
	if args == nil {
		args = []string{}
	}

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.stderr)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) && ee.code == exitFailure {
		// already reported by the logger
		return exitFailure
	}

	fmt.Fprintf(a.stderr, "Error: %v\nRun '%s --help' for usage.\n", err, appName)
	return exitUsage
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           appName + " <url> <output>",
		Short:         "Capture the deck region of a web page into a PNG",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          positional,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}
			return a.captureOne(cmd.Context(), strings.TrimSpace(args[0]), strings.TrimSpace(args[1]), "")
		},
	}

	a.bindCaptureFlags(root.PersistentFlags())

	root.AddCommand(a.deckCmd(), a.batchCmd(), a.serveCmd())
	return root
}

// positional requires exactly two non-empty arguments.
func positional(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return usageError("expected <url> and <output>, got %d argument(s)", len(args))
	}
	for i, name := range []string{"url", "output"} {
		if strings.TrimSpace(args[i]) == "" {
			return usageError("%s must not be empty", name)
		}
	}
	return nil
}

func (a *app) deckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deck <code|message> <output>",
		Short: "Capture a deck from its code, e.g. %%45|o0o5j4 or !%%45|o0o5j4",
		Args:  positional,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}

			code := strings.TrimSpace(args[0])
			if c, ok := deck.ParseTrigger(code); ok {
				code = c
			}
			target, err := deck.URL(a.cfg.BaseURL, code)
			if err != nil {
				return usageError("%q: %w", args[0], err)
			}
			return a.captureOne(cmd.Context(), target, strings.TrimSpace(args[1]), code)
		},
	}
}

func (a *app) batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [targets...]",
		Short: "Capture many targets (URLs, hosts or deck codes) into a folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}

			targets, err := a.targets(args)
			if err != nil {
				return usageError("%w", err)
			}
			if len(targets) == 0 {
				return usageError("no targets given")
			}
			return a.captureMany(cmd.Context(), targets)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&a.listFile, "list", "l", "", "file with targets, one per line")
	f.IntVarP(&a.cfg.Concurrency, "concurrency", "c", a.cfg.Concurrency, "number of browsers running at once")
	f.StringVarP(&a.cfg.OutFolder, "outfolder", "o", a.cfg.OutFolder, "folder receiving the screenshots")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Render deck screenshots over HTTP (GET /deck?code=, POST /message)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}
			return a.serve(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVar(&a.cfg.Listen, "listen", a.cfg.Listen, "address to listen on")
	f.StringVar(&a.cfg.RedisAddr, "redis", a.cfg.RedisAddr, "redis address for the image cache (disabled when empty)")
	f.DurationVar(&a.cfg.CacheTTL, "cache-ttl", a.cfg.CacheTTL, "how long rendered decks are cached")
	f.DurationVar(&a.cfg.RequestTimeout, "request-timeout", a.cfg.RequestTimeout, "bound on one render including queueing")
	f.IntVarP(&a.cfg.Concurrency, "concurrency", "c", a.cfg.Concurrency, "number of browsers running at once")
	return cmd
}

// load applies the config file and environment below the flags, validates, and sets up logging.
func (a *app) load(cmd *cobra.Command) error {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	cfgFile := a.cfgPath
	if cfgFile == "" {
		cfgFile = config.DefaultConfigPath()
	}
	if cfgFile != "" && config.FileExists(cfgFile) {
		fc, err := config.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := config.ApplyFileConfig(&a.cfg, fc, changed); err != nil {
			return err
		}
	} else if a.cfgPath != "" {
		return fmt.Errorf("config file %s not found", a.cfgPath)
	}

	if err := config.ApplyEnvConfig(&a.cfg, changed); err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	if a.log == nil {
		a.log = a.cfg.Logger(appName)
	}
	a.log.Debug("configuration",
		log.String("preset", a.cfg.Preset),
		log.String("engine", a.cfg.Engine),
		log.Any("config", a.cfg))
	return nil
}

func (a *app) orchestrator() *capture.Orchestrator {
	return capture.New(a.newEngine(a.cfg), capture.WithLogger(a.log))
}

func (a *app) captureOne(ctx context.Context, target, output, label string) error {
	var extra []capture.Option
	if a.cfg.Imprint {
		if label == "" {
			label = target
		}
		extra = append(extra, capture.WithImprint(label))
	}

	req, err := a.cfg.Request(target, output, extra...)
	if err != nil {
		return usageError("%w", err)
	}

	result := a.orchestrator().Run(ctx, req)
	if !result.Success() {
		a.reportFailure(target, result.Err)
		return failure(result.Err)
	}

	a.reportSuccess(result)
	return nil
}

func (a *app) captureMany(ctx context.Context, targets []string) error {
	runner := deckshot.NewRunnerWithOptions(a.orchestrator(), deckshot.Options{
		Concurrency: a.cfg.Concurrency,
		OutFolder:   a.cfg.OutFolder,
		BaseURL:     a.cfg.BaseURL,
		Imprint:     a.cfg.Imprint,
		Build:       a.cfg.Request,
		Log:         a.log,
	})

	results := make(chan deckshot.Result)
	go runner.MultipleStream(ctx, results, targets...)

	failed := 0
	for res := range results {
		switch {
		case res.Skipped:
		case res.Success():
			a.reportSuccess(res.Result)
		default:
			failed++
			a.reportFailure(res.Target, res.Err)
		}
	}

	if failed > 0 {
		return failure(fmt.Errorf("%d of %d targets failed", failed, len(targets)))
	}
	if err := ctx.Err(); err != nil {
		a.log.Warn("batch interrupted, remaining targets were not captured")
		return failure(err)
	}
	return nil
}

func (a *app) serve(ctx context.Context) error {
	var c cache.Cache = cache.Nop{}
	if a.cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", a.cfg.RedisAddr, err)
		}
		a.log.Info("redis connected", log.String("addr", a.cfg.RedisAddr))
		c = cache.NewRedisCache(rdb, appName+":")
	}

	router := server.NewRouter(server.Deps{
		Capturer:    a.orchestrator(),
		Build:       a.cfg.Request,
		Cache:       c,
		CacheTTL:    a.cfg.CacheTTL,
		Timeout:     a.cfg.RequestTimeout,
		Concurrency: a.cfg.Concurrency,
		BaseURL:     a.cfg.BaseURL,
		Preset:      a.cfg.Preset,
		Imprint:     a.cfg.Imprint,
		Log:         a.log,
	})

	if err := server.Serve(ctx, a.cfg.Listen, router, a.log); err != nil {
		a.log.Error("HTTP server failed", log.Err(err))
		return failure(err)
	}
	return nil
}

func (a *app) reportSuccess(r capture.Result) {
	msg := "screenshot saved"
	if r.Unchanged {
		msg = "similar screenshot exists, kept it"
	}
	a.log.Info(msg,
		log.String("path", r.Path),
		log.Int64("bytes", r.Bytes),
		log.Stringer("strategy", r.Strategy),
		log.Bool("fallback", r.Fallback))
}

func (a *app) reportFailure(target string, err *capture.Error) {
	switch {
	case capture.IsDNSError(err):
		a.log.Warn("DNS lookup failed", log.String("target", target))
	case err.Kind == capture.KindNavigationTimeout && capture.IsTimeoutError(err):
		a.log.Error("page did not finish loading in time",
			log.String("target", target),
			log.String("stage", string(err.Stage)))
	default:
		a.log.Error("could not capture screenshot",
			log.String("target", target),
			log.String("error", err.Kind.String()),
			log.String("stage", string(err.Stage)),
			log.String("cause", capture.RootCause(err.Err)))
	}
}

// targets collects batch targets from arguments, the list file and piped stdin.
func (a *app) targets(args []string) ([]string, error) {
	var targets []string
	for _, arg := range args {
		for _, t := range strings.Split(arg, ",") {
			if t = strings.TrimSpace(t); t != "" {
				targets = append(targets, t)
			}
		}
	}

	if a.listFile != "" {
		lines, err := fileutil.ReadFile(a.listFile)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", a.listFile, err)
		}
		for _, l := range lines {
			if l = strings.TrimSpace(l); l != "" {
				targets = append(targets, l)
			}
		}
	}

	if hasStdin(a.stdin) {
		scanner := bufio.NewScanner(a.stdin)
		for scanner.Scan() {
			targets = append(targets, strings.Fields(scanner.Text())...)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	}

	return targets, nil
}

// hasStdin reports whether r carries piped input.
func hasStdin(r io.Reader) bool {
	if r == nil {
		return false
	}
	f, ok := r.(*os.File)
	if !ok {
		return true
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}

	mode := stat.Mode()
	isPipedFromChrDev := (mode & os.ModeCharDevice) == 0
	isPipedFromFIFO := (mode & os.ModeNamedPipe) != 0

	return isPipedFromChrDev || isPipedFromFIFO
}

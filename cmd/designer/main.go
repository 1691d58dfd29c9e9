// Command designer is an interactive front end for a designer session.
//
// Without arguments it starts a line-oriented shell over the canvas. The
// export and layout subcommands load a graph, optionally lay it out, and
// print the exported JSON.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/captify-io/designer"
	"github.com/captify-io/designer/canvas"
	"github.com/captify-io/designer/config"
	"github.com/captify-io/designer/telemetry"
	"github.com/chzyer/readline"
)

type flags struct {
	configPath string
	userID     string
	email      string
	token      string
	root       string
	mode       string
	output     string
	trace      bool
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", os.Getenv(config.EnvConfigPath), "path to designer.yaml")
	flag.StringVar(&f.userID, "user", "local", "user id sent with persistence requests")
	flag.StringVar(&f.email, "email", "", "user email sent with persistence requests")
	flag.StringVar(&f.token, "token", os.Getenv("DESIGNER_TOKEN"), "session token")
	flag.StringVar(&f.root, "root", "", "node to load on start")
	flag.StringVar(&f.mode, "mode", "", "canvas mode: designer or ontology")
	flag.StringVar(&f.output, "o", "", "output file for export and layout (default stdout)")
	flag.BoolVar(&f.trace, "trace", false, "log spans at debug level")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [export|layout]\n\nFlags:\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, f, flag.Arg(0), os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags, subcommand string, out io.Writer) error {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.GetLogLevel()}))

	opts := []designer.Option{
		designer.WithConfig(cfg),
		designer.WithLogger(logger),
		designer.WithNotifier(notifier{out: out}),
	}
	if f.mode != "" {
		opts = append(opts, designer.WithMode(canvas.ParseMode(f.mode)))
	}
	if f.trace {
		tp := telemetry.NewTracerProvider(cfg.Telemetry.GetServiceName(), telemetry.LogExporter{Logger: logger}, logger)
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Warn("failed to shut down tracer provider", "error", err)
			}
		}()
		opts = append(opts, designer.WithTracerProvider(tp))
	}

	session := designer.Session{UserID: f.userID, Email: f.email, Token: f.token}
	d, err := designer.New(session, opts...)
	if err != nil {
		return err
	}
	defer designer.CloseWithLog(d, logger, "designer")

	switch subcommand {
	case "", "shell":
		return shell(ctx, d, f, out)
	case "export", "layout":
		return batch(ctx, d, f, subcommand == "layout", out)
	default:
		return fmt.Errorf("unknown subcommand %q", subcommand)
	}
}

// batch loads the configured root, optionally applies the layout and
// writes the exported model.
func batch(ctx context.Context, d *designer.Designer, f flags, relayout bool, out io.Writer) error {
	if err := d.Load(ctx, f.root); err != nil {
		return err
	}
	if relayout {
		d.AutoLayout(ctx)
	}
	data, err := d.Export()
	if err != nil {
		return err
	}
	if f.output == "" {
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	return os.WriteFile(f.output, data, 0o644)
}

func shell(ctx context.Context, d *designer.Designer, f flags, out io.Writer) error {
	r := &repl{d: d, out: out}
	fmt.Fprintln(out, "Captify designer. Use 'help' for the list of commands.")

	if f.root != "" {
		if err := r.load(ctx, []string{f.root}); err != nil {
			fmt.Fprintln(out, "Error:", err)
		}
	}

	home, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          r.prompt(),
		HistoryFile:     filepath.Join(home, ".designer_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	err = r.run(ctx, rl)
	if d.Store().Dirty() {
		fmt.Fprintln(out, "Unsaved changes were discarded.")
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/askql/askql/internal/auth"
	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/console"
	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/secrets"
	"github.com/askql/askql/internal/session"
	"github.com/askql/askql/internal/web"
)

type turnFlags struct {
	yes     bool
	maxRows int
}

func (f *turnFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "run generated queries without asking for confirmation")
	cmd.Flags().IntVar(&f.maxRows, "max-rows", 0, "print at most this many result rows (0 prints all)")
}

func (f *turnFlags) consoleOptions(cfg config.Config) console.Options {
	return console.Options{
		ConfirmBeforeExecute: cfg.Session.ConfirmBeforeExecute && !f.yes,
		MaxDisplayRows:       f.maxRows,
	}
}

func newReplCommand(opts Options, flags *globalFlags) *cobra.Command {
	tf := &turnFlags{}
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start the interactive console",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRepl(cmd, opts, flags, tf)
		},
	}
	tf.bind(cmd)
	return cmd
}

func runRepl(cmd *cobra.Command, opts Options, flags *globalFlags, tf *turnFlags) error {
	cfg, err := loadConfig(opts, flags)
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg, opts.Stderr)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, opts, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if !console.IsInteractive(opts.Stdout) {
		pterm.DisableStyling()
	}
	return console.New(rt.base, opts.Stdin, opts.Stdout, tf.consoleOptions(cfg)).Run(ctx)
}

func newAskCommand(opts Options, flags *globalFlags) *cobra.Command {
	tf := &turnFlags{}
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and exit",
		Long: `ask runs a single turn. The exit status is non-zero when generation or
execution fails or when the generated SQL is blocked.`,
		Example: `  askql ask --yes "Top 5 countries by revenue"`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageError{errors.New("a question is required")}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, flags)
			if err != nil {
				return err
			}
			logger := observability.NewLogger(cfg, opts.Stderr)
			rt, err := openRuntime(cmd.Context(), opts, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if !console.IsInteractive(opts.Stdout) {
				pterm.DisableStyling()
			}
			c := console.New(rt.base, opts.Stdin, opts.Stdout, tf.consoleOptions(cfg))
			result, err := c.Once(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if result.Status == session.StatusBlocked {
				return errBlocked
			}
			return nil
		},
	}
	tf.bind(cmd)
	return cmd
}

func newSchemaCommand(opts Options, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the schema summary sent with every question",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts, flags)
			if err != nil {
				return err
			}
			rt, err := openDatabase(cmd.Context(), cfg, observability.NewLogger(cfg, opts.Stderr))
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			_, err = fmt.Fprintln(opts.Stdout, rt.schema.Render())
			return err
		},
	}
}

func newServeCommand(opts Options, flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web form and JSON API",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts, flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Address = addr
			}
			logger := observability.NewLogger(cfg, opts.Stderr)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(ctx, opts, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			server, err := newServer(rt)
			if err != nil {
				return err
			}
			return serveUntilDone(ctx, server, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides ASKQL_HTTP_ADDR)")
	return cmd
}

func newServer(rt *runtime) (*http.Server, error) {
	cfg := rt.cfg
	deps := web.Dependencies{
		Logger:            rt.logger,
		Sessions:          web.NewSessionStore(rt.base, cfg.HTTP.SessionTTL),
		Readiness:         rt.db.PingContext,
		DependencyTimeout: time.Second,
		Dialect:           rt.dialect,
		ExportAvailable:   rt.exportAvailable,
	}
	if strings.TrimSpace(cfg.HTTP.APIKeys) != "" {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.HTTP.APIKeys)
		if err != nil {
			return nil, fmt.Errorf("parse ASKQL_HTTP_API_KEYS: %w", err)
		}
		deps.AuthMiddleware = auth.Middleware(rt.logger, validator)
		rt.logger.Info("api_keys_enabled", slog.Int("clients", validator.Len()))
	}

	return &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           web.NewHandler(cfg, deps),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}, nil
}

func serveUntilDone(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting web server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("web server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down web server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func newKeyCommand(opts Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the text-generation API key in the OS credential store",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set [api-key]",
			Short: "Store the API key. Reads it from stdin when omitted.",
			Args: func(_ *cobra.Command, args []string) error {
				if len(args) > 1 {
					return usageError{fmt.Errorf("accepts at most 1 arg, received %d", len(args))}
				}
				return nil
			},
			RunE: func(_ *cobra.Command, args []string) error {
				value := ""
				if len(args) == 1 {
					value = args[0]
				} else {
					read, err := readSecret(opts.Stdin, opts.Stdout)
					if err != nil {
						return err
					}
					value = read
				}
				store, err := opts.OpenSecrets()
				if err != nil {
					return err
				}
				if err := store.SetAPIKey(value); err != nil {
					return err
				}
				pterm.Success.WithWriter(opts.Stdout).Println("API key saved to the credential store.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Remove the stored API key",
			Args:  exactArgs(0),
			RunE: func(_ *cobra.Command, _ []string) error {
				store, err := opts.OpenSecrets()
				if err != nil {
					return err
				}
				if err := store.DeleteAPIKey(); err != nil {
					return err
				}
				pterm.Info.WithWriter(opts.Stdout).Println("API key removed.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Report whether an API key is stored",
			Args:  exactArgs(0),
			RunE: func(_ *cobra.Command, _ []string) error {
				store, err := opts.OpenSecrets()
				if err != nil {
					return err
				}
				_, err = store.APIKey()
				switch {
				case err == nil:
					_, err = fmt.Fprintln(opts.Stdout, "stored")
				case errors.Is(err, secrets.ErrNotFound):
					_, err = fmt.Fprintln(opts.Stdout, "not stored")
				}
				return err
			},
		},
	)
	return cmd
}

// readSecret reads without echo on a terminal and a plain line otherwise.
func readSecret(in io.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(out, "API key: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read api key: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read api key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Package cli builds the askql command tree. Run returns a process exit code so
// cmd/askql stays a one-liner and the commands can be driven from tests.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/nl2sql"
	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/secrets"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Lookup resolves configuration keys. Nil reads the process environment
	// after loading a .env file from the working directory.
	Lookup config.LookupFunc
	// OpenSecrets opens the credential store. Nil uses the OS keyring.
	OpenSecrets func() (*secrets.Store, error)
	// NewCompleter builds the text-generation backend. Nil uses nl2sql.NewCompleter.
	NewCompleter func(config.AIConfig) (nl2sql.Completer, error)
}

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

var errBlocked = errors.New("generated SQL was blocked by the safety gate")

func Run(ctx context.Context, args []string, opts Options) int {
	opts = opts.withDefaults()
	root := newRootCommand(opts)
	root.SetArgs(args)
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "error: %s\n", observability.Mask(err.Error()))
		var usage usageError
		if errors.As(err, &usage) {
			_, _ = fmt.Fprintln(opts.Stderr, "run 'askql --help' for usage")
			return exitUsage
		}
		return exitFailure
	}
	return exitOK
}

func (o Options) withDefaults() Options {
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = io.Discard
	}
	if o.Stderr == nil {
		o.Stderr = io.Discard
	}
	if o.OpenSecrets == nil {
		o.OpenSecrets = func() (*secrets.Store, error) { return secrets.Open(secrets.ServiceName) }
	}
	if o.NewCompleter == nil {
		o.NewCompleter = nl2sql.NewCompleter
	}
	return o
}

type globalFlags struct {
	configFile string
	driver     string
	dsn        string
}

func newRootCommand(opts Options) *cobra.Command {
	flags := &globalFlags{}
	replFlags := &turnFlags{}

	root := &cobra.Command{
		Use:   "askql",
		Short: "Ask questions about a SQL database in plain language",
		Long: `askql turns a question into a single read-only SELECT, checks it against a
safety gate, runs it and shows the rows. Without a subcommand it starts the
interactive console.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRepl(cmd, opts, flags, replFlags)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "YAML config file (same keys as the ASKQL_ environment)")
	root.PersistentFlags().StringVar(&flags.driver, "driver", "", "database driver: sqlite, postgres, mysql or duckdb")
	root.PersistentFlags().StringVar(&flags.dsn, "dsn", "", "database DSN or file path")
	replFlags.bind(root)

	root.AddCommand(
		newReplCommand(opts, flags),
		newAskCommand(opts, flags),
		newSchemaCommand(opts, flags),
		newServeCommand(opts, flags),
		newKeyCommand(opts),
		newDemoCommand(opts),
	)
	return root
}

func noArgs(_ *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageError{fmt.Errorf("unknown command %q", args[0])}
	}
	return nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError{fmt.Errorf("accepts %d arg(s), received %d", n, len(args))}
		}
		return nil
	}
}

// loadConfig layers command-line flags over the environment.
func loadConfig(opts Options, flags *globalFlags) (config.Config, error) {
	lookup := opts.Lookup
	if lookup == nil {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return config.Config{}, fmt.Errorf("load .env: %w", err)
		}
		lookup = os.LookupEnv
	}

	overrides := map[string]string{}
	if v := strings.TrimSpace(flags.configFile); v != "" {
		overrides["ASKQL_CONFIG_FILE"] = v
	}
	if v := strings.TrimSpace(flags.driver); v != "" {
		overrides["ASKQL_DATABASE_DRIVER"] = v
	}
	if v := strings.TrimSpace(flags.dsn); v != "" {
		overrides["ASKQL_DATABASE_DSN"] = v
	}

	return config.Load("askql", func(key string) (string, bool) {
		if v, ok := overrides[key]; ok {
			return v, true
		}
		return lookup(key)
	})
}

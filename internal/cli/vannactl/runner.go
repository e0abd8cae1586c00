package vannactl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowbit/vanna/internal/backup"
)

// BackupService is the snapshot surface used by the backup and restore commands.
type BackupService interface {
	Snapshot(ctx context.Context) (backup.SnapshotInfo, error)
	Restore(ctx context.Context, key string) (int, error)
	Snapshots(ctx context.Context) ([]backup.SnapshotInfo, error)
	Prune(ctx context.Context, keep int) ([]string, error)
}

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
	// OpenBackup connects the local training store to the backup bucket. Nil disables the
	// backup and restore commands.
	OpenBackup func(ctx context.Context) (BackupService, error)
}

// Run executes vannactl with args and returns the process exit code.
func Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	root := NewRootCommand(opts)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func NewRootCommand(opts Options) *cobra.Command {
	app := &app{opts: opts}

	root := &cobra.Command{
		Use:           "vannactl",
		Short:         "Operate the Flowbit Vanna natural-language-to-SQL service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			app.client = &apiClient{baseURL: app.baseURL, apiKey: app.apiKey, http: app.httpClient()}
		},
	}
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.PersistentFlags().StringVar(&app.baseURL, "base-url", firstNonEmpty(opts.BaseURL, "http://localhost:8000"), "Vanna API base URL")
	root.PersistentFlags().StringVar(&app.apiKey, "api-key", opts.APIKey, "Admin API key for train and remove")
	root.PersistentFlags().DurationVar(&app.timeout, "timeout", durationOr(opts.Timeout, 2*time.Minute), "HTTP timeout (e.g. 30s)")
	root.PersistentFlags().BoolVar(&app.rawJSON, "json", false, "Print raw JSON responses")

	root.AddCommand(
		app.askCommand(),
		app.getCommand("status", "Show whether the service is operational", "/status"),
		app.getCommand("health", "Check the service is up", "/health"),
		app.getCommand("ready", "Check the service is ready to answer questions", "/ready"),
		app.trainCommand(),
		app.trainingCommand(),
		app.backupCommand(),
		app.restoreCommand(),
	)
	return root
}

type app struct {
	opts    Options
	client  *apiClient
	baseURL string
	apiKey  string
	timeout time.Duration
	rawJSON bool
}

func (a *app) httpClient() *http.Client {
	if a.opts.HTTPClient != nil {
		return a.opts.HTTPClient
	}
	return &http.Client{Timeout: a.timeout}
}

func (a *app) getCommand(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := a.client.do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			if pretty, ok := prettyJSON(raw); ok {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), pretty)
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(raw)))
			return nil
		},
	}
}

func (a *app) backupService(ctx context.Context) (BackupService, error) {
	if a.opts.OpenBackup == nil {
		return nil, fmt.Errorf("backup is not available in this build")
	}
	return a.opts.OpenBackup(ctx)
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

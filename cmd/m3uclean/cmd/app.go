package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmylchreest/m3uclean/internal/config"
	"github.com/jmylchreest/m3uclean/internal/database"
	"github.com/jmylchreest/m3uclean/internal/metrics"
	"github.com/jmylchreest/m3uclean/internal/observability"
	"github.com/jmylchreest/m3uclean/internal/repository"
	"github.com/jmylchreest/m3uclean/internal/runner"
	"github.com/jmylchreest/m3uclean/internal/source"
	"github.com/jmylchreest/m3uclean/internal/storage"
	"github.com/jmylchreest/m3uclean/internal/version"
	"github.com/jmylchreest/m3uclean/pkg/httpclient"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app holds the components shared by the job commands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	workspace *storage.Workspace
	resolver  *source.Resolver
	metrics   *metrics.Recorder

	db      *database.DB
	history repository.RunRepository
}

// loadConfig decodes the global viper instance populated by initConfig.
func loadConfig() (*config.Config, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// newApp builds the source resolver and output workspace from cfg, with "-"
// bound to the command's stdin and stdout. The run
// history database is opened only when withHistory is set and history is
// enabled in configuration.
func newApp(ctx context.Context, cmd *cobra.Command, cfg *config.Config, withHistory bool) (*app, error) {
	logger := slog.Default()

	ws, err := storage.NewWorkspace(cfg.Runner.BaseDir, cfg.Runner.StrictPaths)
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	ws = ws.WithStdio(cmd.InOrStdin(), cmd.OutOrStdout())

	resolver, err := source.NewResolver(source.Config{
		Client:               newHTTPClient(cfg.Fetch, logger),
		Workspace:            ws,
		ValidateRemoteHeader: cfg.Fetch.ValidateHeader,
		Logger:               observability.WithComponent(logger, "source"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating source resolver: %w", err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		workspace: ws,
		resolver:  resolver,
		metrics:   metrics.New(),
	}

	if withHistory && cfg.History.Enabled {
		db, err := database.Open(ctx, cfg.History, observability.WithComponent(logger, "database"))
		if err != nil {
			return nil, fmt.Errorf("opening run history: %w", err)
		}
		a.db = db
		a.history = repository.NewRunRepository(db.DB)
	}

	return a, nil
}

// newHTTPClient maps fetch settings onto the HTTP client configuration.
func newHTTPClient(cfg config.FetchConfig, logger *slog.Logger) *httpclient.Client {
	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = cfg.Timeout
	clientCfg.MaxRedirects = cfg.MaxRedirects
	clientCfg.InsecureSkipVerify = cfg.InsecureSkipVerify
	clientCfg.MaxResponseSize = cfg.MaxResponseSize.Bytes()
	clientCfg.UserAgent = cfg.UserAgent
	if clientCfg.UserAgent == "" {
		clientCfg.UserAgent = version.UserAgent()
	}
	clientCfg.Logger = observability.WithComponent(logger, "httpclient")
	return httpclient.New(clientCfg)
}

// runner returns a job runner wired to the app's source, workspace, metrics
// and history.
func (a *app) runner() (*runner.Runner, error) {
	return runner.New(runner.Config{
		Source:           a.resolver,
		Sink:             a.workspace,
		Filter:           a.cfg.Filter,
		Concurrency:      a.cfg.Runner.Concurrency,
		Metrics:          a.metrics,
		MetricsTextfile:  a.cfg.Metrics.Textfile,
		History:          a.history,
		HistoryRetention: a.cfg.History.Retention,
		Logger:           a.logger,
	})
}

// Close releases the history database if one was opened.
func (a *app) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// jobFailureError reports failed jobs when fail_on_error is set.
func jobFailureError(cfg *config.Config, report *runner.Report) error {
	if !cfg.Runner.FailOnError || report.Failed() == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d jobs failed: %w", report.Failed(), len(report.Results), report.Err())
}

// errNoJobs is returned by commands that need at least one configured job.
var errNoJobs = errors.New("no jobs configured (add a jobs section to m3uclean.yaml)")

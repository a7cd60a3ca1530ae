package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/simpro-tap/pkg/catalog"
	"github.com/ajitpratap0/simpro-tap/pkg/clients"
	"github.com/ajitpratap0/simpro-tap/pkg/config"
	"github.com/ajitpratap0/simpro-tap/pkg/connector/core"
	"github.com/ajitpratap0/simpro-tap/pkg/connector/sources/simpro"
	"github.com/ajitpratap0/simpro-tap/pkg/errors"
	"github.com/ajitpratap0/simpro-tap/pkg/logger"
	"github.com/ajitpratap0/simpro-tap/pkg/metrics"
	"github.com/ajitpratap0/simpro-tap/pkg/observability"
	"github.com/ajitpratap0/simpro-tap/pkg/singer"
)

// syncOptions are the resolved flag and SIMPRO_* environment values
type syncOptions struct {
	ConfigPath  string
	StatePath   string
	CatalogPath string
	OutputPath  string
	MetricsAddr string
	LogLevel    string
	Trace       bool
	Select      []string
}

func optionsFrom(v *viper.Viper) syncOptions {
	return syncOptions{
		ConfigPath:  v.GetString("config"),
		StatePath:   v.GetString("state"),
		CatalogPath: v.GetString("catalog"),
		OutputPath:  v.GetString("output"),
		MetricsAddr: v.GetString("metrics-addr"),
		LogLevel:    v.GetString("log-level"),
		Trace:       v.GetBool("trace"),
		Select:      v.GetStringSlice("select"),
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	v := config.NewEnv()

	root := &cobra.Command{
		Use:   "simpro-tap",
		Short: "Singer tap for the simPRO job management API",
		Long: `simpro-tap extracts jobs, quotes, invoices, customers, schedules and
related resources from a simPRO company and writes them to stdout as Singer
SCHEMA, RECORD and STATE messages. Logs go to stderr.

Examples:
  simpro-tap --config config.json --discover > catalog.json
  simpro-tap --config config.json --catalog catalog.json --state state.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFrom(v)
			if v.GetBool("discover") {
				return runDiscover(stdout)
			}
			return runSync(cmd.Context(), opts, stdout, stderr, v)
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "Tap configuration file (JSON or YAML)")
	flags.String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")

	root.Flags().StringP("state", "s", "", "State file to resume from (.gz/.zst/.s2 are decompressed)")
	root.Flags().String("catalog", "", "Catalog file selecting the streams to sync")
	root.Flags().Bool("discover", false, "Print the catalog of supported streams and exit")
	root.Flags().StringP("output", "o", "", "Write messages to a file instead of stdout (.gz/.zst/.s2 compress)")
	root.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	root.Flags().Bool("trace", false, "Export OpenTelemetry spans to stderr")
	root.Flags().StringSlice("select", nil, "Select streams by ID in addition to the catalog")

	_ = v.BindPFlags(flags)
	_ = v.BindPFlags(root.Flags())

	root.AddCommand(&cobra.Command{
		Use:   "discover",
		Short: "Print the catalog of supported streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(stdout)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "streams",
		Short: "Show the stream tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStreams(stdout)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "simpro-tap v%s\n", version)
			fmt.Fprintf(stdout, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(stdout, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	return root
}

func runDiscover(stdout io.Writer) error {
	cat, err := catalog.Discover()
	if err != nil {
		return err
	}
	return cat.Write(stdout)
}

func printStreams(stdout io.Writer) error {
	reg, err := simpro.NewStreamRegistry(simpro.NewFetcher(nil, simpro.FetcherConfig{}, nil))
	if err != nil {
		return err
	}
	var walk func(id core.StreamID, depth int)
	walk = func(id core.StreamID, depth int) {
		fmt.Fprintf(stdout, "%s%s\n", strings.Repeat("  ", depth), id)
		kind, err := reg.Get(id)
		if err != nil {
			return
		}
		for _, child := range kind.Children() {
			walk(child, depth+1)
		}
	}
	for _, root := range reg.Roots() {
		walk(root.Descriptor().ID, 0)
	}
	return nil
}

func runSync(ctx context.Context, opts syncOptions, stdout, stderr io.Writer, env *viper.Viper) error {
	if opts.ConfigPath == "" {
		return errors.New(errors.ErrorTypeConfig, "--config is required")
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to load config")
	}
	config.ApplyEnv(cfg, env)

	level := opts.LogLevel
	if level == "" {
		level = cfg.LogLevel
	}
	if err := logger.Init(logger.Config{Level: level}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize logger")
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Trace {
		tc := observability.DefaultTracingConfig(version)
		tc.Writer = stderr
		shutdown, err := observability.Setup(tc)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				log.Warn("failed to flush traces", zap.Error(err))
			}
		}()
	}

	if opts.MetricsAddr != "" {
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		log.Info("serving metrics", zap.String("addr", opts.MetricsAddr))
	}

	cat, err := loadCatalog(opts)
	if err != nil {
		return err
	}

	state := core.Bookmarks{}
	if opts.StatePath != "" {
		if state, err = singer.ReadStateFile(opts.StatePath); err != nil {
			return err
		}
	}

	source, err := simpro.NewSource(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()

	var out io.WriteCloser = nopWriteCloser{stdout}
	if opts.OutputPath != "" && opts.OutputPath != "-" {
		if out, err = singer.OpenOutput(opts.OutputPath); err != nil {
			return err
		}
	}

	timer := metrics.NewTimer("sync")
	_, runErr := source.Driver(cat, singer.NewWriter(out), clients.SystemClock).Run(ctx, state)
	closeErr := out.Close()

	if runErr != nil {
		log.Error("sync failed", zap.Error(runErr), zap.Duration("duration", timer.Stop()))
		return runErr
	}
	if closeErr != nil {
		return errors.Wrap(closeErr, errors.ErrorTypeFile, "failed to close output")
	}
	stats := source.Gate.Stats()
	log.Info("sync finished",
		zap.Duration("duration", timer.Stop()),
		zap.Int64("requests", stats.AllowedRequests),
		zap.Int64("delayed_requests", stats.DelayedRequests))
	return nil
}

func loadCatalog(opts syncOptions) (*catalog.Catalog, error) {
	var (
		cat *catalog.Catalog
		err error
	)
	if opts.CatalogPath != "" {
		cat, err = catalog.Load(opts.CatalogPath)
	} else {
		cat, err = catalog.Discover()
	}
	if err != nil {
		return nil, err
	}

	ids := make([]core.StreamID, 0, len(opts.Select))
	for _, s := range opts.Select {
		if s = strings.TrimSpace(s); s != "" {
			ids = append(ids, core.StreamID(s))
		}
	}
	if err := cat.Select(ids...); err != nil {
		return nil, err
	}
	if len(cat.SelectedStreams()) == 0 {
		logger.Get().Warn("no streams selected")
	}
	return cat, nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

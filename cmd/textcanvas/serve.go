package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-dev/textcanvas/internal/config"
	"github.com/vango-dev/textcanvas/internal/discovery"
	"github.com/vango-dev/textcanvas/internal/errors"
	"github.com/vango-dev/textcanvas/internal/export"
	"github.com/vango-dev/textcanvas/internal/state"
	"github.com/vango-dev/textcanvas/internal/store"
	"github.com/vango-dev/textcanvas/internal/web"
	"github.com/vango-dev/textcanvas/pkg/canvas"
	"github.com/vango-dev/textcanvas/pkg/server"
)

// serveFlags override the matching config file values when set.
type serveFlags struct {
	host           string
	port           int
	frameDelay     time.Duration
	dsn            string
	httpAddress    string
	discover       bool
	instance       string
	bucket         string
	exportInterval time.Duration
}

func serveCmd(g *globalFlags) *cobra.Command {
	f := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the canvas server",
		Long: `Run the canvas server.

The server accepts WebSocket clients on the canvas port, persists
every edit to the configured store, and broadcasts the changed cells
to all clients once per tick.

Examples:
  textcanvas serve
  textcanvas serve --port=10500 --store=sqlite:canvas.db
  textcanvas serve --store=postgres://localhost/canvas --http=127.0.0.1:10501
  textcanvas serve --discover --export-interval=10m --bucket=snapshots`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	f.register(cmd)

	return cmd
}

// register binds the serve flags to cmd.
func (f *serveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.host, "host", "H", "", "Address to bind (default "+config.DefaultHost+")")
	cmd.Flags().IntVarP(&f.port, "port", "p", 0, fmt.Sprintf("Port to listen on (default %d)", config.DefaultPort))
	cmd.Flags().DurationVar(&f.frameDelay, "frame-delay", 0, "Pause between ticks (default "+config.DefaultFrameDelay+")")
	cmd.Flags().StringVar(&f.dsn, "store", "", "Store DSN: sqlite:<path>, postgres://, redis://, memory: (default "+config.DefaultDSN+")")
	cmd.Flags().StringVar(&f.httpAddress, "http", "", "Serve /healthz, /metrics and /canvas on this address")
	cmd.Flags().BoolVar(&f.discover, "discover", false, "Advertise the server over mDNS")
	cmd.Flags().StringVar(&f.instance, "instance", "", "mDNS instance name (default "+config.DefaultInstance+")")
	cmd.Flags().StringVar(&f.bucket, "bucket", "", "S3 bucket for periodic snapshots")
	cmd.Flags().DurationVar(&f.exportInterval, "export-interval", 0, "Upload a snapshot this often (requires --bucket)")
}

// apply copies the flags the user actually set onto cfg.
func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = f.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = f.port
	}
	if flags.Changed("frame-delay") {
		cfg.Server.FrameDelay = f.frameDelay.String()
	}
	if flags.Changed("store") {
		cfg.Store.DSN = f.dsn
	}
	if flags.Changed("http") {
		cfg.HTTP.Address = f.httpAddress
	}
	if flags.Changed("discover") {
		cfg.Discovery.Enabled = f.discover
	}
	if flags.Changed("instance") {
		cfg.Discovery.Instance = f.instance
	}
	if flags.Changed("bucket") {
		cfg.Export.Bucket = f.bucket
	}
	if flags.Changed("export-interval") {
		cfg.Export.Interval = f.exportInterval.String()
	}
}

// openStore opens the configured backend wrapped in tracing spans.
func openStore(ctx context.Context, dsn string) (store.Store, error) {
	st, err := store.Open(ctx, dsn)
	if err != nil {
		if stderrors.Is(err, store.ErrUnsupportedDSN) {
			return nil, errors.New("E131").WithDetail(dsn).Wrap(err)
		}
		return nil, errors.New("E130").WithDetail(dsn).Wrap(err)
	}
	return store.Traced(st), nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()

	st, err := openStore(ctx, cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	cv := canvas.New()
	handler := state.New(ctx, st, cv, nil, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := server.NewMetrics(server.WithRegistry(reg))

	srv := server.New(cfg.ServerConfig(), handler,
		server.WithLogger(logger.With("component", "server")),
		server.WithMetrics(metrics),
	)
	handler.SetSender(srv)

	if err := srv.Listen(); err != nil {
		return errors.New("E100").
			WithDetail(srv.Config().Address()).
			WithSuggestion("Pick another port with --port").
			Wrap(err)
	}
	defer srv.Close()

	printBanner()
	success("Canvas listening on %s:%d", cfg.Server.Host, srv.Port())
	info("Store: %s (%d cells loaded)", cfg.Store.DSN, cv.Len())

	if cfg.HTTP.Address != "" {
		hs := web.New(cv,
			web.WithGatherer(reg),
			web.WithClientCount(srv.Registry().Len),
			web.WithLogger(logger.With("component", "web")),
		)
		go func() {
			if err := hs.Serve(ctx, cfg.HTTP.Address); err != nil {
				logger.Error("http server stopped", "error", err)
			}
		}()
		info("HTTP: http://%s/healthz", cfg.HTTP.Address)
	}

	if cfg.Discovery.Enabled {
		ad, err := discovery.Register(cfg.Discovery.Instance, srv.Port())
		if err != nil {
			warn("%s", errors.New("E150").Wrap(err).FormatCompact())
		} else {
			defer ad.Shutdown()
			info("Advertising %s as %q", discovery.Service, cfg.Discovery.Instance)
		}
	}

	if interval := cfg.ExportInterval(); interval > 0 {
		exporter, err := newExporter(cfg, cv)
		if err != nil {
			return err
		}
		go exporter.Run(ctx, interval)
		info("Exporting snapshots to s3://%s/%s every %s", cfg.Export.Bucket, cfg.Export.Prefix, interval)
	}

	// A signal only ends the loop so the process can exit. Clients are not
	// notified and in-flight HTTP requests are cut off.
	fmt.Println()
	if err := srv.Run(ctx); err != nil {
		return errors.New("E101").Wrap(err)
	}
	fmt.Println("\n  Shutting down...")
	return nil
}

// newExporter builds an S3 exporter from the export section.
func newExporter(cfg *config.Config, cv *canvas.Canvas) (*export.Exporter, error) {
	if cfg.Export.Bucket == "" {
		return nil, errors.New("E141")
	}
	client := export.NewS3Client(export.S3Config{
		Region:   cfg.Export.Region,
		Endpoint: cfg.Export.Endpoint,
	})
	return export.New(cv, export.NewS3Sink(client, cfg.Export.Bucket),
		export.WithPrefix(cfg.Export.Prefix),
		export.WithLogger(slog.Default().With("component", "export")),
	)
}

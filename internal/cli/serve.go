package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/datachat-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/datachat-go/internal/infrastructure/config"
	httpserver "github.com/0xcro3dile/datachat-go/internal/infrastructure/http"
	"github.com/0xcro3dile/datachat-go/internal/infrastructure/logging"
)

func newServeCmd(configPath func() string) *cobra.Command {
	var addr, watchDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath())
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if watchDir != "" {
				cfg.Ingest.WatchDir = watchDir
			}

			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			server := httpserver.NewServer(a.orchestrator, a.ingest, httpserver.Options{
				Addr:           cfg.Server.Addr,
				ReadTimeout:    cfg.Server.ReadTimeout,
				WriteTimeout:   cfg.Server.WriteTimeout,
				MaxUploadBytes: cfg.MaxUploadBytes(),
				Logger:         logger,
				Gatherer:       a.gatherer,
			})

			// The watcher must exist before anything is started, so a
			// failure here leaves no goroutine behind.
			var drop *filewatcher.DropFolder
			if cfg.Ingest.WatchDir != "" {
				watcher, err := filewatcher.NewFSNotifyWatcher(nil, logger)
				if err != nil {
					return err
				}
				defer watcher.Stop()
				drop = filewatcher.NewDropFolder(watcher, a.ingest, logger, filewatcher.DefaultSettle)
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return server.Start(ctx) })
			if drop != nil {
				g.Go(func() error { return drop.Run(ctx, cfg.Ingest.WatchDir) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().StringVar(&watchDir, "watch", "", "Drop folder to ingest CSV files from (overrides ingest.watch_dir)")
	return cmd
}

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/Backdrop/internal/api"
	"github.com/bryanchriswhite/Backdrop/internal/logger"
	"github.com/bryanchriswhite/Backdrop/internal/renderer"
	"github.com/bryanchriswhite/Backdrop/internal/report"
	"github.com/bryanchriswhite/Backdrop/internal/session"
	"github.com/bryanchriswhite/Backdrop/internal/window"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// rollbackTimeout bounds how long shutdown waits to restore previewed wallpapers
const rollbackTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Backdrop server",
	Long: `Start the renderer host and the HTTP API the editor talks to.

Every saved wallpaper is loaded into the renderer at startup. Edit sessions
still open when the server stops are rolled back.`,
	Example: `  # Start server on default port (8080)
  backdrop serve

  # Start server on custom port
  backdrop serve --port 9090

  # Start with debug logging
  BACKDROP_LOG_LEVEL=debug backdrop serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("serve")

	port := configMgr.GetPort()
	if p := viper.GetInt("server_port"); p > 0 {
		port = p
	}

	errs := report.NewCollector(100)
	host := renderer.NewHost()
	host.Load(configMgr.Records())
	sessions := session.NewRegistry(configMgr, host, report.Multi{report.Log{Component: "session"}, errs})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	// The application picker and focus tracking need a display; without one
	// the editor still works with typed-in paths.
	var apps api.Applications
	if backend, err := window.Detect(); err != nil {
		log.Warn().Err(err).Msg("Window tracking disabled")
	} else {
		windowMgr := window.NewManager(backend)
		defer windowMgr.Stop()
		focus := windowMgr.Subscribe()
		if err := windowMgr.Start(); err != nil {
			return fmt.Errorf("failed to start window manager: %w", err)
		}
		apps = windowMgr

		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case win := <-focus:
					if win != nil {
						host.Focus(win.Path, win.Title)
					}
				}
			}
		})
	}

	server := api.NewServer(configMgr, host, sessions, apps, errs)
	g.Go(func() error {
		return server.Run(gctx, port)
	})

	log.Info().
		Int("port", port).
		Str("config", configMgr.GetConfigPath()).
		Int("wallpapers", len(host.IDs())).
		Msg("Backdrop is running")

	runErr := g.Wait()

	log.Info().Msg("Shutting down gracefully")
	rollbackCtx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()
	if err := sessions.CloseAll(rollbackCtx); err != nil {
		log.Warn().Err(err).Msg("Some edit sessions could not be rolled back")
	}
	return runErr
}

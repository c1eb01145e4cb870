package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/equitybot/api"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading loop",
	Long: `Run trading cycles at the configured cadence while the market is open
and send the daily summary after the close. The control API and websocket
feed are served on --listen (defaults to api.listen from the config).

Example:
  equitybot run --config equitybot.yaml --listen 127.0.0.1:8080`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runListen string
	runNoAPI  bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runListen, "listen", "", "API listen address (overrides api.listen)")
	runCmd.Flags().BoolVar(&runNoAPI, "no-api", false, "do not start the control API")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.engine.Run(ctx) })

	if !runNoAPI {
		addr := cfg.API.Listen
		if runListen != "" {
			addr = runListen
		}
		gin.SetMode(gin.ReleaseMode)
		hub := api.NewHub(log.Named("ws"))
		a.engine.Subscribe(hub)
		srv := api.NewServer(a.engine, hub, log.Named("api"))
		g.Go(func() error {
			hub.Run(ctx)
			return nil
		})
		g.Go(func() error {
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
	}

	log.Info("equitybot started",
		zap.Strings("universe", cfg.Universe.Symbols),
		zap.String("state", cfg.State.Path),
		zap.Bool("api", !runNoAPI))
	err = g.Wait()
	log.Info("equitybot stopped")
	return err
}

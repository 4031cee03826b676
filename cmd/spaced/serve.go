package main

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tokmz/spaces/internal/server"
	"github.com/tokmz/spaces/pkg/config"
)

var watchConfig bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&watchConfig, "watch", true, "reload log level when the config file changes")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 监听回调可能早于 App 创建完成
	var current atomic.Pointer[server.App]
	var opts []config.Option
	if watchConfig {
		opts = append(opts, config.WithWatch(func(c *config.Config) {
			if app := current.Load(); app != nil {
				app.Reload(c)
			}
		}))
	}
	settings, cfg, err := server.LoadSettings(cfgFile, opts...)
	if err != nil {
		return err
	}
	defer cfg.Close()

	app, err := server.New(ctx, settings)
	if err != nil {
		return err
	}
	current.Store(app)

	if used := cfg.ConfigFileUsed(); used != "" {
		app.Logger().Info("config loaded", zap.String("file", used))
	}
	return app.Run(ctx)
}

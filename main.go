package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/semihalev/zlog/v2"
	"github.com/spf13/cobra"

	"github.com/bigc0127/evoarc-dns/api"
	"github.com/bigc0127/evoarc-dns/config"
	"github.com/bigc0127/evoarc-dns/proxy"
	"github.com/bigc0127/evoarc-dns/resolver"
)

const version = "0.1.0"

var flagcfgpath string

var rootCmd = &cobra.Command{
	Use:   "evoarc-dns",
	Short: "Local DNS-over-HTTPS resolver and proxy",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local DNS proxy and control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("evoarc-dns v" + version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagcfgpath, "config", "c", "evoarc-dns.conf",
		"location of the config file, if config file not found, a config will generate")

	rootCmd.AddCommand(serveCmd, versionCmd)
}

func setupLogger(level string) {
	logger := zlog.NewStructured()
	logger.SetWriter(zlog.StdoutTerminal())

	switch level {
	case "debug":
		logger.SetLevel(zlog.LevelDebug)
	case "warn":
		logger.SetLevel(zlog.LevelWarn)
	case "error":
		logger.SetLevel(zlog.LevelError)
	default:
		logger.SetLevel(zlog.LevelInfo)
	}

	zlog.SetDefault(logger)
}

func serve() error {
	cfg, err := config.Load(flagcfgpath, version)
	if err != nil {
		return err
	}

	setupLogger(cfg.LogLevel)

	zlog.Info("Starting evoarc-dns...", "version", version)

	res, err := resolver.New(cfg)
	if err != nil {
		return err
	}

	prx := proxy.New(cfg, res)
	if err := prx.Start(); err != nil {
		return err
	}

	ctl := api.New(cfg, res, prx)
	ctl.Run()

	// provider changes in the config file take effect live, anything
	// else needs a restart
	watcher, err := config.NewWatcher(flagcfgpath, version, func(next *config.Config) {
		if next.Provider == res.CurrentProvider().Name {
			return
		}
		if err := res.SetProvider(next.Provider); err != nil {
			zlog.Error("Provider from reloaded config rejected", "provider", next.Provider, "error", err.Error())
		}
	})
	if err != nil {
		zlog.Warn("Config watcher disabled", "error", err.Error())
	} else {
		defer watcher.Stop()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c

	zlog.Info("Stopping evoarc-dns...")

	prx.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ctl.Shutdown(ctx)

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/philthes/SwiftRiver/internal/cache"
	"github.com/philthes/SwiftRiver/internal/channels"
	"github.com/philthes/SwiftRiver/internal/config"
	"github.com/philthes/SwiftRiver/internal/database"
	"github.com/philthes/SwiftRiver/internal/event"
	"github.com/philthes/SwiftRiver/internal/logging"
	"github.com/philthes/SwiftRiver/internal/rivers"
	"github.com/philthes/SwiftRiver/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "swiftriver-api",
		Short: "SwiftRiver feed aggregation service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("river-lifetime-days", defaults.GetInt("river.lifetime_days"), "Days a river stays active per extension")
	cmd.PersistentFlags().Int("river-drop-quota", defaults.GetInt("river.drop_quota"), "Drop capacity of a new river")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "river.lifetime_days", "river-lifetime-days")
	bindFlag(cmd, "river.drop_quota", "river-drop-quota")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	dispatcher := event.NewDispatcher(logger)
	for _, name := range []string{event.RiverSave, event.RiverEnable, event.RiverDisable} {
		dispatcher.Subscribe(name, func(ctx context.Context, evt event.Event) {
			logger.Info("river lifecycle event",
				zap.String("event", evt.Name), zap.Int64("river_id", evt.RiverID))
		})
	}

	riversService, err := rivers.NewService(rivers.ServiceConfig{
		Database:      db,
		Cache:         cache.NewMemory(),
		Events:        dispatcher,
		Channels:      channels.Default(),
		Clock:         time.Now,
		Logger:        logger,
		LifetimeDays:  appConfig.RiverLifetimeDays,
		DropQuota:     appConfig.RiverDropQuota,
		FeedCacheTTL:  appConfig.FeedCacheTTL,
		MaxIDCacheTTL: appConfig.MaxIDCacheTTL,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		RiversService: riversService,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/egzakutacno/deeep-myria/internal/app"
	"github.com/egzakutacno/deeep-myria/internal/config"
	"github.com/egzakutacno/deeep-myria/internal/logging"
	"github.com/egzakutacno/deeep-myria/internal/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	bootLogger, _ := logging.New("info")
	config.LoadEnv(bootLogger)

	cfg, err := config.LoadValidated("")
	if err != nil {
		bootLogger.WithError(err).Fatal("Invalid configuration")
	}

	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Warn("Unknown log level, using info")
	}
	log := logging.WithService(logger, app.ServiceName)

	if cfg.Server.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	a := app.New(cfg, logger)

	// Root context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Heartbeat; settled liveness keeps the lifecycle state in step with
	// the node, starting with the first beat.
	go a.Monitor.Start(ctx)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      a.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":    cfg.Server.Port,
			"version": version.Version,
			"commit":  version.GetShortCommit(),
			"rpc":     cfg.Node.RPCEndpoint(),
		}).Info("Myria supervisor started")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()
	a.Journal.Record(logging.EventStartup, logging.Fields{"port": cfg.Server.Port, "version": version.Version})

	<-ctx.Done()
	log.Info("Shutting down Myria supervisor")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	a.Journal.Record(logging.EventShutdown, nil)
	log.Info("Myria supervisor stopped")
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeljkobekcic/webserver/internal/accesslog"
	"github.com/zeljkobekcic/webserver/internal/config"
	"github.com/zeljkobekcic/webserver/internal/fileserver"
	"github.com/zeljkobekcic/webserver/internal/logging"
	"github.com/zeljkobekcic/webserver/internal/mime"
	"github.com/zeljkobekcic/webserver/internal/server"
)

const program = "httpserver"

func run(args []string, stdout, stderr io.Writer, stop <-chan os.Signal) int {
	getenv, err := config.EnvWithDotEnv(".env")
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", program, err)
		return 1
	}

	cfg, err := config.Load(args, getenv)
	var verr *config.ValidationError
	switch {
	case errors.Is(err, flag.ErrHelp):
		config.PrintUsage(stderr, program, "")
		return 0
	case errors.Is(err, config.ErrUsage), errors.As(err, &verr):
		config.PrintUsage(stderr, program, err.Error())
		return 2
	case err != nil:
		fmt.Fprintf(stderr, "%s: %v\n", program, err)
		return 1
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := logging.New(stderr, level, cfg.LogFormat)
	slog.SetDefault(logger)

	types, err := mime.Load(cfg.MIMEPath)
	if err != nil {
		logger.Error("loading MIME map", "error", err)
		return 1
	}
	logger.Debug("MIME map loaded", "path", cfg.MIMEPath, "extensions", types.Len())

	files := fileserver.New(cfg.Root, types)
	files.DateGMT = cfg.DateGMT
	files.AllowTraversal = cfg.AllowTraversal
	files.Logger = logger

	scfg := server.Config{
		Port:         cfg.Port,
		MaxConns:     cfg.MaxConns,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Logger:       logger,
	}
	if cfg.AccessLog != "" {
		store, err := accesslog.Open(cfg.AccessLog)
		if err != nil {
			logger.Error("opening access log", "error", err)
			return 1
		}
		defer store.Close()
		scfg.OnResult = store.Observer(logger)
	}

	srv, err := server.Serve(scfg, files)
	if err != nil {
		logger.Error("starting server", "error", err)
		return 1
	}
	logging.Banner(stdout, srv.Addr().String(), cfg.Root, types.Len())

	sig := <-stop
	logger.Info("shutting down", "signal", sig.String())
	if err := srv.Close(); err != nil {
		logger.Warn("closing listener", "error", err)
	}
	srv.Wait()
	logger.Info("server gracefully stopped")
	return 0
}

func main() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, sigChan))
}

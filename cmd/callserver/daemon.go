package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lightningnetwork/lnd/build"
	"github.com/lightningnetwork/lnd/signal"
	"github.com/unimarket/callmarket"

	// Blank import to set up profiling HTTP handlers.
	_ "net/http/pprof"
)

const (
	// defaultLogFilename is the default file name for the server log
	// file.
	defaultLogFilename = "callserver.log"
)

func daemon(cfg *callmarket.Config) error {
	// Hook interceptor for os signals.
	shutdownInterceptor, err := signal.Intercept()
	if err != nil {
		return err
	}

	logWriter := build.NewRotatingLogWriter()
	callmarket.SetupLoggers(logWriter, shutdownInterceptor)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Printf("Supported subsystems: %v\n",
			logWriter.SupportedSubsystems())
		os.Exit(0)
	}

	err = logWriter.InitLogRotator(
		filepath.Join(cfg.LogDir, defaultLogFilename),
		cfg.MaxLogFileSize, cfg.MaxLogFiles,
	)
	if err != nil {
		return fmt.Errorf("unable to initialize log rotator: %v", err)
	}
	err = build.ParseAndSetDebugLevels(cfg.DebugLevel, logWriter)
	if err != nil {
		return err
	}

	// Enable http profiling and validate profile port number if
	// requested.
	if cfg.Profile != "" {
		profilePort, err := strconv.Atoi(cfg.Profile)
		if err != nil || profilePort < 1024 || profilePort > 65535 {
			return fmt.Errorf("the profile port must be between " +
				"1024 and 65535")
		}

		go func() {
			listenAddr := net.JoinHostPort("", cfg.Profile)
			profileRedirect := http.RedirectHandler("/debug/pprof",
				http.StatusSeeOther)
			http.Handle("/", profileRedirect)
			fmt.Println(http.ListenAndServe(listenAddr, nil))
		}()
	}

	server, err := callmarket.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("unable to create server: %v", err)
	}

	if err := server.Start(); err != nil {
		return fmt.Errorf("unable to start server: %v", err)
	}

	// Wait for any external interrupt signal.
	<-shutdownInterceptor.ShutdownChannel()

	return server.Stop()
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/unimarket/callmarket"
)

var (
	// defaultConfigFilename is the default file name for the
	// configuration file for the callmarket server.
	defaultConfigFilename = "callserver.conf"
)

func main() {
	err := start()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func start() error {
	// Pre-parse command line so that cfg.Network is set.
	cfg, err := preParse()
	if err != nil {
		return err
	}

	networkDir := filepath.Join(cfg.BaseDir, cfg.Network)
	if err := os.MkdirAll(networkDir, os.ModePerm); err != nil {
		return err
	}

	configFile := filepath.Join(networkDir, defaultConfigFilename)
	if err := flags.IniParse(configFile, cfg); err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the cfg
		// file doesn't exist which is OK.
		if _, ok := err.(*flags.IniError); ok {
			return err
		}
	}

	// Parse command line flags again to restore flags overwritten by
	// the ini file.
	if _, err := flags.Parse(cfg); err != nil {
		return err
	}

	return daemon(cfg)
}

// preParse parses the command line with unknown flags ignored, so that the
// network dependent config file location is known for the main parse.
func preParse() (*callmarket.Config, error) {
	cfg := callmarket.DefaultConfig()
	parser := flags.NewParser(cfg, flags.IgnoreUnknown)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	return cfg, nil
}

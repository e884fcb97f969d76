package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/opsdeck/opsdeck/internal/buildinfo"
	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/daemon"
)

func main() {
	var showVersion bool
	var configPath string

	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	if showVersion {
		fmt.Println(buildinfo.String())
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("opsdeckd: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("opsdeckd: %s", buildinfo.String())
	if err := daemon.Run(ctx, cfg); err != nil {
		log.Fatalf("opsdeckd: %v", err)
	}
}

// loadConfig reads the YAML config when one exists. Without -config the
// default path is optional; an explicitly named file must be readable.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		warning, permErr := config.CheckConfigPermissions(cfg.ConfigPath)
		if permErr != nil {
			return config.Config{}, permErr
		}
		if warning != "" {
			log.Printf("opsdeckd: %s", warning)
		}
		return cfg, nil
	}
	if path == "" && errors.Is(err, os.ErrNotExist) {
		cfg = config.DefaultConfig()
		return cfg, cfg.Validate()
	}
	return config.Config{}, err
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/loader"
	"github.com/gofhir/txserver/server"
)

// fileConfig is the yaml server configuration.
type fileConfig struct {
	Addr      string   `yaml:"addr"`
	CacheDir  string   `yaml:"cacheDir"`
	BaseURL   string   `yaml:"baseUrl"`
	VSACKey   string   `yaml:"vsacKey"`
	Deadline  string   `yaml:"deadline"`
	Sources   []string `yaml:"sources"`
	Endpoints []struct {
		Mount       string `yaml:"mount"`
		FHIRVersion string `yaml:"fhirVersion"`
	} `yaml:"endpoints"`
	TolerateFailures bool `yaml:"tolerateFailures"`
}

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	var configPath string
	rootCmd := &cobra.Command{
		Use:   "txserver",
		Short: "FHIR terminology server",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "txserver.yaml", "configuration file")

	rootCmd.AddCommand(serveCmd(&configPath, log))
	rootCmd.AddCommand(loadCmd(&configPath, log))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func readConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = ".txserver-cache"
	}
	return &cfg, nil
}

func serveCmd(configPath *string, log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load the configured sources and serve the endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			lib, err := loader.New(loader.Config{
				Sources:          cfg.Sources,
				BaseURL:          cfg.BaseURL,
				CacheDir:         cfg.CacheDir,
				VSACKey:          cfg.VSACKey,
				TolerateFailures: cfg.TolerateFailures,
			}, log).Load(ctx)
			if err != nil {
				return err
			}
			defer lib.Close()

			srvCfg := server.Config{Addr: cfg.Addr}
			if cfg.Deadline != "" {
				d, err := time.ParseDuration(cfg.Deadline)
				if err != nil {
					return fmt.Errorf("parse deadline: %w", err)
				}
				srvCfg.DefaultDeadline = d
			}
			for _, ep := range cfg.Endpoints {
				v, ok := txserver.ParseFHIRVersion(ep.FHIRVersion)
				if !ok {
					return fmt.Errorf("unsupported FHIR version %q for mount %s", ep.FHIRVersion, ep.Mount)
				}
				srvCfg.Endpoints = append(srvCfg.Endpoints, server.Endpoint{
					MountPath:   ep.Mount,
					FHIRVersion: v,
				})
			}
			if len(srvCfg.Endpoints) == 0 {
				srvCfg.Endpoints = []server.Endpoint{{MountPath: "/tx/r4", FHIRVersion: txserver.R4}}
			}

			srv, err := server.New(srvCfg, lib, log)
			if err != nil {
				return err
			}
			log.Info().Str("addr", cfg.Addr).Int("endpoints", len(srvCfg.Endpoints)).Msg("serving")
			return srv.Start(ctx)
		},
	}
}

func loadCmd(configPath *string, log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Fetch and materialize the configured sources, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			lib, err := loader.New(loader.Config{
				Sources:          cfg.Sources,
				BaseURL:          cfg.BaseURL,
				CacheDir:         cfg.CacheDir,
				VSACKey:          cfg.VSACKey,
				TolerateFailures: cfg.TolerateFailures,
			}, log).Load(ctx)
			if err != nil {
				return err
			}
			lib.Close()
			log.Info().Msg("sources loaded")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("txserver 0.9.0")
		},
	}
}

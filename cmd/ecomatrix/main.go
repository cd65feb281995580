package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lcatools/ecomatrix/internal/config"
	"github.com/lcatools/ecomatrix/internal/logger"
	"github.com/lcatools/ecomatrix/internal/pipeline"
	"github.com/lcatools/ecomatrix/internal/web"
)

var (
	configPath string
	overrides  struct {
		sysDir  string
		outDir  string
		project string
	}
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ecomatrix",
		Short: "Ecospold2 to matrix converter",
		Long: `Converts an ecoinvent ecospold2 dataset into labelled matrix
representations: the normalized traceable Leontief system or the
supply-and-use tables, with optional characterisation.`,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		"ecomatrix.yaml", "project configuration file")
	rootCmd.PersistentFlags().StringVar(&overrides.sysDir, "sys-dir", "",
		"ecospold system directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&overrides.outDir, "out-dir", "",
		"output directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&overrides.project, "project", "",
		"project name (overrides config)")

	rootCmd.AddCommand(createLeontiefCmd())
	rootCmd.AddCommand(createSUTCmd())
	rootCmd.AddCommand(createAuditServerCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadRun loads and validates the configuration, then opens the run log.
func loadRun() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if overrides.sysDir != "" {
		cfg.SysDir = overrides.sysDir
	}
	if overrides.outDir != "" {
		cfg.OutDir = overrides.outDir
	}
	if overrides.project != "" {
		cfg.Project = overrides.project
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.LogDir(), cfg.Project, cfg.Verbose)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func createLeontiefCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leontief",
		Short: "Build the normalized traceable Leontief system (A, F, C)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRun()
			if err != nil {
				return err
			}
			defer log.Sync()

			p, err := pipeline.New(cfg, log)
			if err != nil {
				return err
			}
			if err := p.RunLeontief(); err != nil {
				log.Errorf("Run failed: %v", err)
				return err
			}
			return nil
		},
	}
}

func createSUTCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sut",
		Short: "Build the supply-and-use tables (U, V, G_act)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRun()
			if err != nil {
				return err
			}
			defer log.Sync()

			p, err := pipeline.New(cfg, log)
			if err != nil {
				return err
			}
			if err := p.RunSUT(); err != nil {
				log.Errorf("Run failed: %v", err)
				return err
			}
			return nil
		},
	}
}

func createAuditServerCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "audit-server",
		Short: "Browse a finished run's audit artifacts over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRun()
			if err != nil {
				return err
			}
			defer log.Sync()

			srv, err := web.NewServer(log, addr, cfg.LogDir())
			if err != nil {
				return err
			}
			return srv.Start()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

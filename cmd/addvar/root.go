package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/egobogo/addvar/internal/config"
	"github.com/egobogo/addvar/internal/config/filesys"
)

const defaultConfigPath = "addvar.yaml"

// rootOptions is shared by every subcommand. cfg and logger are set in the
// root's PersistentPreRunE.
type rootOptions struct {
	configPath string
	envFile    string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "addvar",
		Short:         "Tangent memory store, semantic index and reconciler",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.load(cmd.ErrOrStderr())
		},
	}
	cmd.PersistentFlags().StringVar(&o.configPath, "config", "", "config file (default $ADDVAR_CONFIG or "+defaultConfigPath+")")
	cmd.PersistentFlags().StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded into the environment before the config")

	cmd.AddCommand(
		newServeCmd(o),
		newIngestCmd(o),
		newQueryCmd(o),
		newReconcileCmd(o),
		newLedgerCmd(o),
	)
	return cmd
}

// load reads the dotenv file and the configuration, then installs the
// logger. The default config path may be absent; an explicit one may not.
func (o *rootOptions) load(logOut io.Writer) error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}

	path, explicit := o.configPath, o.configPath != ""
	if !explicit {
		if env := os.Getenv("ADDVAR_CONFIG"); env != "" {
			path, explicit = env, true
		} else {
			path = defaultConfigPath
		}
	}

	provider := filesys.NewFilesysConfigProvider()
	config.SetProvider(provider)
	switch err := config.Load(path); {
	case err == nil:
		cfg, err := config.GetLoadedConfig()
		if err != nil {
			return err
		}
		o.cfg = cfg
	case !explicit && errors.Is(err, fs.ErrNotExist):
		cfg, err := provider.Defaults()
		if err != nil {
			return err
		}
		o.cfg = cfg
	default:
		return err
	}

	logger, err := newLogger(o.cfg.Log, logOut)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	o.logger = logger
	return nil
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level := slog.LevelInfo
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("log.level: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log.format: unknown format %q", cfg.Format)
	}
}

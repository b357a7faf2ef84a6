package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/framelink/internal/config"
	"github.com/danmuck/framelink/internal/launcher"
	"github.com/danmuck/framelink/internal/observability"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "cmd/launcherctl/config.toml"

var (
	cfgFile string
	addr    string
	tokens  []string
)

var rootCmd = &cobra.Command{
	Use:           "launcherctl",
	Short:         "Run the reference launcher peer",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.InitLogger("launcherctl")

		cfg, err := resolveConfig(cfgFile, cmd.Flags().Changed("config"), overrides{
			addr:    addr,
			addrSet: cmd.Flags().Changed("addr"),
			tokens:  tokens,
		})
		if err != nil {
			return err
		}

		l, err := launcher.New(cfg)
		if err != nil {
			return err
		}
		logger.Info().
			Str("name", l.Name).
			Str("public_origin", cfg.PublicOrigin).
			Strs("allowed_origins", cfg.AllowedOrigins).
			Strs("actions", l.Registry.Names()).
			Msg("launcher configured")
		return l.Serve(cmd.Context())
	},
}

// overrides carries the command line flags that take precedence over the
// config file.
type overrides struct {
	addr    string
	addrSet bool
	tokens  []string
}

// resolveConfig validates only after flags are applied, so a file without
// tokens is fine when --token supplies them.
func resolveConfig(path string, explicit bool, o overrides) (config.LauncherConfig, error) {
	cfg, err := loadConfig(path, explicit)
	if err != nil {
		return config.LauncherConfig{}, err
	}
	if o.addrSet {
		cfg.Addr = o.addr
	}
	cfg.Tokens = append(cfg.Tokens, o.tokens...)
	if err := config.ValidateLauncherConfig(cfg); err != nil {
		return config.LauncherConfig{}, err
	}
	return cfg, nil
}

// loadConfig falls back to defaults when the default path does not exist.
// The result is not validated.
func loadConfig(path string, explicit bool) (config.LauncherConfig, error) {
	cfg, err := config.ReadLauncherConfig(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.DefaultLauncherConfig(), nil
	}
	return config.LauncherConfig{}, err
}

func main() {
	rootCmd.Flags().StringVar(&cfgFile, "config", defaultConfigPath, "launcher config file")
	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address override")
	rootCmd.Flags().StringSliceVar(&tokens, "token", nil, "additional accepted token (repeatable)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "launcherctl: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/framelink/internal/observability"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	overrides flagOverrides

	// set during PersistentPreRunE
	cfg    clientConfig
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sdkctl",
	Short: "Drive a framelink client against a launcher peer",
	Long: `sdkctl runs the client handshake against a launcher peer over a
WebSocket or a sandboxed handler script, then issues api_call requests and
prints the matching api_result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = observability.InitLogger("sdkctl")

		loaded, err := loadClientConfig(cfgFile, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		overrides.apply(&loaded, cmd.Flags().Changed)
		cfg, err = loaded.finalize()
		if err != nil {
			return fmt.Errorf("invalid sdk config: %w", err)
		}
		logger.Debug().
			Str("peer_url", cfg.Session.PeerURL).
			Str("trusted_origin", cfg.Session.TrustedOrigin).
			Str("transport", cfg.Transport).
			Msg("sdkctl config loaded")
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "sdkctl:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", defaultConfigPath, "sdk config file")
	pf.StringVar(&overrides.PeerURL, "peer-url", "", "peer handler URL")
	pf.StringVar(&overrides.TrustedOrigin, "trusted-origin", "", "origin the peer is served from")
	pf.StringVar(&overrides.HostOrigin, "host-origin", "", "origin this client presents")
	pf.StringVar(&overrides.Transport, "transport", "", "peer transport: websocket|sandbox")
	pf.StringVar(&overrides.Token, "token", "", "bootstrap auth token")
	pf.StringVar(&overrides.PageURL, "page-url", "", "host page URL carrying the token in its query")
	pf.DurationVar(&overrides.HandshakeTimeout, "handshake-timeout", 0, "handshake deadline (0 waits forever)")
	pf.BoolVar(&overrides.RequestIDs, "request-ids", false, "tag api_call messages with a requestId")
	pf.StringVar(&overrides.SecurityMode, "security-mode", "", "development|production")
}

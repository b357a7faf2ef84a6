package main

import (
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Run the handshake and print the resulting session snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r, err := startClient(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer r.stop()

		handshakeErr := r.awaitHandshake(ctx)
		snap, err := r.client.Snapshot(ctx)
		if err != nil {
			return err
		}
		out := map[string]any{
			"state":         snap.State.String(),
			"label":         snap.State.Label(),
			"authenticated": snap.Authenticated,
			"peerReady":     snap.PeerReady,
			"hasToken":      snap.HasToken,
			"queued":        snap.Queued,
			"transport":     cfg.Transport,
			"peerUrl":       cfg.Session.PeerURL,
			"checkedAt":     time.Now().UTC().Format(time.RFC3339),
		}
		if snap.LastFailure != "" {
			out["lastFailure"] = snap.LastFailure
		}
		if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
		return handshakeErr
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danmuck/framelink/internal/protocol"
	"github.com/spf13/cobra"
)

var (
	callPayload string
	callTimeout time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call <action>",
	Short: "Authenticate, send one api_call and print its api_result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		action := strings.TrimSpace(args[0])
		payload, err := parsePayload(callPayload)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if callTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, callTimeout)
			defer cancel()
		}

		r, err := startClient(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer r.stop()

		if err := r.awaitHandshake(ctx); err != nil {
			return err
		}
		requestID, err := r.client.CallAction(ctx, action, payload)
		if err != nil {
			return fmt.Errorf("call %s: %w", action, err)
		}
		logger.Debug().Str("action", action).Str("request_id", requestID).Msg("sdkctl api_call sent")

		result, err := r.awaitResult(ctx, action, requestID)
		if err != nil {
			return err
		}
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
		if result.String(protocol.FieldStatus) == protocol.ResultStatusError {
			return fmt.Errorf("%s failed: %s", action, result.String(protocol.FieldError))
		}
		return nil
	},
}

// parsePayload accepts a JSON object; an empty string is an empty payload.
func parsePayload(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	callCmd.Flags().StringVar(&callPayload, "payload", "", "api_call payload as a JSON object")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 30*time.Second, "overall deadline (0 disables)")
	rootCmd.AddCommand(callCmd)
}

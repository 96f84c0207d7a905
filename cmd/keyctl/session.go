package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// sessionCmd はセッション資格情報の発行・検証コマンド。
func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Sign and verify session credentials",
	}
	cmd.AddCommand(sessionSignCmd())
	cmd.AddCommand(sessionVerifyCmd())
	return cmd
}

func sessionSignCmd() *cobra.Command {
	var tenantID string
	var scopes []string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Issue a 24h session credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			body, err := client.post(cmd.Context(), "/v1/sessions", map[string]interface{}{
				"tenant_id": tenantID,
				"scopes":    scopes,
			}, http.StatusCreated)
			if err != nil {
				return err
			}
			return printField(cmd, body, "credential")
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Scope to grant (repeatable)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func sessionVerifyCmd() *cobra.Command {
	var credential string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a session credential and print its payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			body, err := client.post(cmd.Context(), "/v1/sessions/verify",
				map[string]string{"credential": credential}, http.StatusOK)
			if err != nil {
				return err
			}
			if output == "json" {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}

			var result struct {
				Payload map[string]interface{} `json:"payload"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			pretty, err := json.MarshalIndent(result.Payload, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting payload: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
			return nil
		},
	}
	cmd.Flags().StringVar(&credential, "credential", "", "Session credential (required)")
	_ = cmd.MarkFlagRequired("credential")
	return cmd
}

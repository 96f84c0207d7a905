package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

func tenantPath(tenantID, action string) string {
	return fmt.Sprintf("/v1/tenants/%s/%s", url.PathEscape(tenantID), action)
}

// tokenCmd はテナントトークンの払い出しコマンド。
func tokenCmd() *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Provision a token for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			body, err := client.post(cmd.Context(), tenantPath(tenantID, "token"), nil, http.StatusCreated)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}
			var result map[string]interface{}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Provisioned token for tenant %q (backend: %v)\n", tenantID, result["backend"])
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

// encryptCmd はテナントデータの暗号化コマンド。
func encryptCmd() *cobra.Command {
	var tenantID, plaintext string
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt data with a tenant's token",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			body, err := client.post(cmd.Context(), tenantPath(tenantID, "encrypt"),
				map[string]string{"plaintext": plaintext}, http.StatusOK)
			if err != nil {
				return err
			}
			return printField(cmd, body, "ciphertext")
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&plaintext, "plaintext", "", "Data to encrypt")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

// decryptCmd はテナントデータの復号コマンド。
func decryptCmd() *cobra.Command {
	var tenantID, ciphertext string
	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt data with a tenant's token",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			body, err := client.post(cmd.Context(), tenantPath(tenantID, "decrypt"),
				map[string]string{"ciphertext": ciphertext}, http.StatusOK)
			if err != nil {
				return err
			}
			return printField(cmd, body, "plaintext")
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&ciphertext, "ciphertext", "", "Data to decrypt (required)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("ciphertext")
	return cmd
}

// printField はtext出力時はfieldの値のみ、json出力時はレスポンス全体を表示する。
func printField(cmd *cobra.Command, body []byte, field string) error {
	if output == "json" {
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
		return nil
	}
	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result[field])
	return nil
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"feeportal/pkg/payment"

	"github.com/spf13/cobra"
)

func simulateWebhookCmd() *cobra.Command {
	var (
		status string
		code   int
		amount float64
		url    string
		secret string
	)
	cmd := &cobra.Command{
		Use:   "simulate-webhook [ref]",
		Short: "POST a signed gateway callback for an order to a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("WEBHOOK_SECRET")
			}
			if secret == "" {
				secret = os.Getenv("GATEWAY_PG_KEY")
			}
			if secret == "" {
				return fmt.Errorf("no signing secret: pass --secret or set WEBHOOK_SECRET")
			}
			body, err := buildWebhook(args[0], status, code, amount, time.Now())
			if err != nil {
				return err
			}
			return postWebhook(cmd.Context(), cmd.OutOrStdout(), url, secret, body)
		},
	}
	cmd.Flags().StringVar(&status, "status", "SUCCESS", "Gateway status (SUCCESS, FAILED, PENDING, ...)")
	cmd.Flags().IntVar(&code, "code", 200, "Top-level status code")
	cmd.Flags().Float64Var(&amount, "amount", 0, "Transaction amount")
	cmd.Flags().StringVar(&url, "url", "http://localhost:8080/api/payments/webhook", "Webhook endpoint")
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret (defaults to WEBHOOK_SECRET, then GATEWAY_PG_KEY)")
	return cmd
}

func buildWebhook(ref, status string, code int, amount float64, at time.Time) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"status": code,
		"order_info": map[string]interface{}{
			"order_id":           ref,
			"order_amount":       amount,
			"transaction_amount": amount,
			"gateway":            "simulator",
			"bank_reference":     fmt.Sprintf("SIM%d", at.Unix()),
			"status":             status,
			"payment_mode":       "upi",
			"payment_details":    "simulated@upi",
			"payment_message":    "simulated by feectl",
			"payment_time":       at.UTC().Format(time.RFC3339Nano),
			"error_message":      "NA",
		},
	})
}

func postWebhook(ctx context.Context, out io.Writer, url, secret string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(payment.SignatureHeader, payment.SignWebhook(secret, body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	fmt.Fprintf(out, "%s\n%s\n", resp.Status, bytes.TrimSpace(respBody))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected with %s", resp.Status)
	}
	return nil
}

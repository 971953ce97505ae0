package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func clearCmd() *cobra.Command {
	var (
		schoolID string
		all      bool
		yes      bool
	)
	cmd := &cobra.Command{
		Use:   "clear-test-data",
		Short: "Delete orders, statuses and webhook deliveries for a school (or all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if schoolID == "" && !all {
				return errors.New("pass --school-id or --all")
			}
			if schoolID != "" && all {
				return errors.New("--school-id and --all are mutually exclusive")
			}
			target := "school " + schoolID
			if all {
				target = "ALL schools"
			}
			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Delete every transaction for "+target+"?") {
				fmt.Fprintln(cmd.OutOrStdout(), "aborted")
				return nil
			}
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			return runClear(cmd.Context(), cmd.OutOrStdout(), s, schoolID)
		},
	}
	cmd.Flags().StringVar(&schoolID, "school-id", "", "School whose transactions are deleted")
	cmd.Flags().BoolVar(&all, "all", false, "Delete transactions of every school")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func runClear(ctx context.Context, out io.Writer, s *store, schoolID string) error {
	n, err := s.orders.ClearOrders(ctx, schoolID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted %d orders\n", n)
	return nil
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func lookupCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "lookup [id]",
		Short: "Show a transaction by order id, custom order id or collect request id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			return runLookup(cmd.Context(), cmd.OutOrStdout(), s, args[0], asJSON)
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func runLookup(ctx context.Context, out io.Writer, s *store, ref string, asJSON bool) error {
	v, err := s.orders.GetStatus(ctx, ref)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Fprintf(out, "Order:       %s\n", v.OrderID)
	fmt.Fprintf(out, "Custom ID:   %s\n", v.CustomOrderID)
	fmt.Fprintf(out, "Collect ID:  %s\n", valueOr(v.CollectRequestID, "(none)"))
	fmt.Fprintf(out, "School:      %s\n", v.SchoolID)
	fmt.Fprintf(out, "Student:     %s <%s>\n", v.StudentInfo.Name, v.StudentInfo.Email)
	fmt.Fprintf(out, "Status:      %s\n", v.Status)
	fmt.Fprintf(out, "Amount:      %.2f (paid %.2f)\n", v.OrderAmount, v.TransactionAmount)
	if v.PaymentTime != nil {
		fmt.Fprintf(out, "Paid at:     %s via %s\n", v.PaymentTime.Format(time.RFC3339), valueOr(v.PaymentMode, "unknown"))
	}
	if v.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:       %s\n", v.ErrorMessage)
	}
	return nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire pending orders older than PAYMENT_EXPIRY",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			n, err := s.reconcile.ExpireStale(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d orders\n", n)
			return nil
		},
	}
}

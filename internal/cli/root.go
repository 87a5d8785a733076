package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/smallbiznis/meterbill/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var version = "0.1.0"

// NewRootCommand assembles the meterbill command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "meterbill",
		Short: "Electricity billing: meter readings, bills, payments and billing periods",
		Long: `meterbill records meter readings, derives bills from the configured tariff,
applies payments and rolls unpaid balances into new billing periods.

Configuration is read from the environment (and a .env file); the tariff
defaults and rollover settings come from billing.yml.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("operator", defaultOperator(), "Name recorded as the operator of every change")

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newSeedCommand(),
		newPeriodCommand(),
		newReadingCommand(),
		newPaymentCommand(),
	)
	return root
}

func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(Core, server.Module)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func operatorFrom(cmd *cobra.Command) string {
	operator, _ := cmd.Flags().GetString("operator")
	return strings.TrimSpace(operator)
}

func defaultOperator() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return "cli:" + u.Username
	}
	return "cli"
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates (UTC).
func parseDate(flag, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: expected YYYY-MM-DD or RFC 3339, got %q", flag, raw)
	}
	return &t, nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	"github.com/smallbiznis/meterbill/internal/migration"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the relational schema up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, d deps) error {
				if d.DB == nil {
					return errors.New("migrate requires STORE_BACKEND=sql")
				}
				if err := migration.Migrate(d.DB); err != nil {
					return err
				}
				d.Log.Info("schema up to date", zap.String("dialect", d.DB.Dialector.Name()))
				return nil
			})
		},
	}
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo customers, a period, readings and payments into an empty store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, d deps) error {
				seeded, err := d.Seeder.EnsureDemoData(ctx)
				if err != nil {
					return err
				}
				if !seeded {
					fmt.Fprintln(cmd.OutOrStdout(), "store is not empty, nothing seeded")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "demo data seeded")
				return nil
			})
		},
	}
}

func newPeriodCommand() *cobra.Command {
	period := &cobra.Command{
		Use:   "period",
		Short: "Manage billing periods",
	}

	open := &cobra.Command{
		Use:   "open",
		Short: "Close the active period, open a new one and carry unpaid balances forward",
		Example: `  meterbill period open --name "February 2025" --start 2025-02-01 --end 2025-02-28
  meterbill period open --name "March 2025" --previous-end 2025-02-28T23:59:59Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			req := perioddomain.OpenPeriodRequest{Name: name}
			var err error
			if req.StartDate, err = dateFlag(cmd, "start"); err != nil {
				return err
			}
			if req.EndDate, err = dateFlag(cmd, "end"); err != nil {
				return err
			}
			if req.PreviousEndDate, err = dateFlag(cmd, "previous-end"); err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, d deps) error {
				res, err := d.Periods.OpenNewPeriod(ctx, req)
				if err != nil {
					return err
				}
				if err := printJSON(cmd, res); err != nil {
					return err
				}
				if len(res.Failures) > 0 {
					return fmt.Errorf("%d carry-forwards failed, retry them with the carry-forward endpoint", len(res.Failures))
				}
				return nil
			})
		},
	}
	open.Flags().String("name", "", "Period name (required)")
	open.Flags().String("start", "", "Start date, defaults to now")
	open.Flags().String("end", "", "Optional end date")
	open.Flags().String("previous-end", "", "End date for the period being closed")
	_ = open.MarkFlagRequired("name")

	period.AddCommand(open)
	return period
}

func newReadingCommand() *cobra.Command {
	reading := &cobra.Command{
		Use:   "reading",
		Short: "Meter readings",
	}

	record := &cobra.Command{
		Use:   "record",
		Short: "Record a meter reading and print the derived bill",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			customerID, _ := cmd.Flags().GetString("customer")
			periodID, _ := cmd.Flags().GetString("period")
			current, err := decimalFlag(cmd, "current")
			if err != nil {
				return err
			}
			if current == nil {
				return errors.New("--current is required")
			}
			previous, err := decimalFlag(cmd, "previous")
			if err != nil {
				return err
			}
			readingDate, err := dateFlag(cmd, "date")
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, d deps) error {
				res, err := d.Billing.RecordReading(ctx, billingdomain.RecordReadingRequest{
					CustomerID:      customerID,
					PeriodID:        periodID,
					PreviousReading: previous,
					CurrentReading:  *current,
					ReadingDate:     readingDate,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	record.Flags().String("customer", "", "Customer id (required)")
	record.Flags().String("period", "", "Period id, defaults to the active period")
	record.Flags().String("current", "", "Current meter index (required)")
	record.Flags().String("previous", "", "Previous meter index, defaults to the latest reading")
	record.Flags().String("date", "", "Reading date, defaults to now")
	_ = record.MarkFlagRequired("customer")
	_ = record.MarkFlagRequired("current")

	reading.AddCommand(record)
	return reading
}

func newPaymentCommand() *cobra.Command {
	payment := &cobra.Command{
		Use:   "payment",
		Short: "Payments",
	}

	record := &cobra.Command{
		Use:   "record",
		Short: "Apply a payment to a bill",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			billID, _ := cmd.Flags().GetString("bill")
			method, _ := cmd.Flags().GetString("method")
			notes, _ := cmd.Flags().GetString("notes")
			amount, err := decimalFlag(cmd, "amount")
			if err != nil {
				return err
			}
			if amount == nil {
				return errors.New("--amount is required")
			}
			paidAt, err := dateFlag(cmd, "date")
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, d deps) error {
				res, err := d.Payments.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
					BillID:        billID,
					Amount:        *amount,
					PaymentDate:   paidAt,
					PaymentMethod: method,
					Notes:         notes,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	record.Flags().String("bill", "", "Bill id (required)")
	record.Flags().String("amount", "", "Amount paid (required)")
	record.Flags().String("method", string(paymentdomain.MethodCash), "cash, card, bank or other")
	record.Flags().String("notes", "", "Free-form notes")
	record.Flags().String("date", "", "Payment date, defaults to now")
	_ = record.MarkFlagRequired("bill")
	_ = record.MarkFlagRequired("amount")

	payment.AddCommand(record)
	return payment
}

func dateFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	return parseDate(name, raw)
}

func decimalFlag(cmd *cobra.Command, name string) (*decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %q is not a number", name, raw)
	}
	return &d, nil
}

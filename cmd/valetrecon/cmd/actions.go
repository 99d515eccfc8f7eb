package cmd

import (
	"context"
	"fmt"
	"os"

	"valet-reconciliation-service/cmd/valetrecon/config"
	"valet-reconciliation-service/internal/ledger"
	"valet-reconciliation-service/internal/normalizer"
	"valet-reconciliation-service/internal/reconciler"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Each action command carries its own flag state so no command reads a
// value another command's flags set. Actions reopen the batch from the
// record store, so they need a durable --dsn.
var resolveFlags struct {
	batchID string
	plate   string
	action  string
	price   string
	brand   string
	notes   string
}

var validateFlags struct {
	batchID string
	plate   string
	method  string
	price   string
	notes   string
}

var closeFlags struct {
	batchID string
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve an inconsistent or missing record",
	Long: `Resolve applies an operator adjudication to one record of a stored
batch: use_sales or use_delivery to prefer one export's figures,
manual with an explicit price or brand, and ignore or create for
records present on only one side.

Examples:
  valetrecon resolve --batch-id 2026-08 --plate AA-11-AA --action use_sales --dsn "$DSN"
  valetrecon resolve --batch-id 2026-08 --plate BB22BB --action manual --price 55.00 --dsn "$DSN"`,
	RunE: runResolve,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Confirm or correct a pending receipt at delivery",
	Long: `Validate confirms that a receipt's payment method and price held up
at delivery, or corrects them. The corroboration rules re-run with the
confirmed method.

Examples:
  valetrecon validate --batch-id 2026-08 --plate AA-11-AA --method Dinheiro --price 20.00 --dsn "$DSN"`,
	RunE: runValidate,
}

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close a fully adjudicated batch",
	Long: `Close marks the batch immutable. It fails while any record is still
inconsistent or any missing record lacks a resolution.`,
	RunE: runClose,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(closeCmd)

	resolveCmd.Flags().StringVarP(&resolveFlags.batchID, "batch-id", "b", "", "batch identifier (required)")
	resolveCmd.Flags().StringVarP(&resolveFlags.plate, "plate", "p", "", "license plate of the record (required)")
	resolveCmd.Flags().StringVarP(&resolveFlags.action, "action", "a", "", "resolution: use_sales, use_delivery, manual, ignore, create (required)")
	resolveCmd.Flags().StringVar(&resolveFlags.price, "price", "", "booking price for a manual resolution")
	resolveCmd.Flags().StringVar(&resolveFlags.brand, "brand", "", "brand for a manual resolution")
	resolveCmd.Flags().StringVar(&resolveFlags.notes, "notes", "", "free-form note stored with the action")
	resolveCmd.MarkFlagRequired("batch-id")
	resolveCmd.MarkFlagRequired("plate")
	resolveCmd.MarkFlagRequired("action")

	validateCmd.Flags().StringVarP(&validateFlags.batchID, "batch-id", "b", "", "batch identifier (required)")
	validateCmd.Flags().StringVarP(&validateFlags.plate, "plate", "p", "", "license plate of the record (required)")
	validateCmd.Flags().StringVarP(&validateFlags.method, "method", "m", "", "payment method observed at delivery (required)")
	validateCmd.Flags().StringVar(&validateFlags.price, "price", "", "price collected at delivery (required)")
	validateCmd.Flags().StringVar(&validateFlags.notes, "notes", "", "free-form note stored with the action")
	validateCmd.MarkFlagRequired("batch-id")
	validateCmd.MarkFlagRequired("plate")
	validateCmd.MarkFlagRequired("method")
	validateCmd.MarkFlagRequired("price")

	closeCmd.Flags().StringVarP(&closeFlags.batchID, "batch-id", "b", "", "batch identifier (required)")
	closeCmd.MarkFlagRequired("batch-id")
}

// openStoredBatch builds the service and reopens the batch session.
func openStoredBatch(ctx context.Context, batchID string) (*reconciler.Service, error) {
	st, err := config.CreateStore(viper.GetString("dsn"))
	if err != nil {
		return nil, err
	}
	service := reconciler.NewService(st)
	if _, err := service.ReopenBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return service, nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	service, err := openStoredBatch(ctx, resolveFlags.batchID)
	if err != nil {
		return err
	}

	resolution := ledger.Resolution{
		Type:  ledger.ResolutionType(resolveFlags.action),
		Notes: resolveFlags.notes,
	}
	if resolveFlags.price != "" {
		price, err := decimal.NewFromString(resolveFlags.price)
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", resolveFlags.price, err)
		}
		resolution.Price = &price
	}
	if resolveFlags.brand != "" {
		resolution.Brand = &resolveFlags.brand
	}

	rec, err := service.Resolve(ctx, resolveFlags.batchID, normalizer.NormalizePlate(resolveFlags.plate), resolution)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s: %s (%s)\n", rec.Plate, rec.Status, rec.Resolution)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	service, err := openStoredBatch(ctx, validateFlags.batchID)
	if err != nil {
		return err
	}

	price, err := decimal.NewFromString(validateFlags.price)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", validateFlags.price, err)
	}

	rec, err := service.ValidateDelivery(ctx, validateFlags.batchID, normalizer.NormalizePlate(validateFlags.plate), validateFlags.method, price, validateFlags.notes)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s: %s\n", rec.Plate, rec.Status)
	return nil
}

func runClose(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	service, err := openStoredBatch(ctx, closeFlags.batchID)
	if err != nil {
		return err
	}

	if err := service.CloseBatch(ctx, closeFlags.batchID); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "batch %s closed\n", closeFlags.batchID)
	return nil
}

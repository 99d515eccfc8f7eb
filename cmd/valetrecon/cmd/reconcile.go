package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"valet-reconciliation-service/cmd/valetrecon/config"
	"valet-reconciliation-service/internal/ledger"
	"valet-reconciliation-service/internal/reconciler"
	"valet-reconciliation-service/internal/reporter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	salesFile    string
	deliveryFile string
	cashFile     string
	batchID      string
	outputFormat string
	outputFile   string
	autoResolve  string
	includeValid bool
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Import the exports of a batch and report its reconciliation",
	Long: `Reconcile imports the ERP sales export, the back-office delivery
export, and optionally the cash receipts, matches them by license
plate, and reports the result.

Examples:
  # Basic reconciliation to the console
  valetrecon reconcile --sales-file sales.csv --delivery-file delivery.csv --batch-id 2026-08

  # With receipts and a CSV report for accounting
  valetrecon reconcile --sales-file sales.csv --delivery-file delivery.xlsx \
    --cash-file cash.csv --batch-id 2026-08 \
    --output-format csv --output-file settlement.csv

  # Auto-resolve remaining field inconsistencies toward the delivery export
  valetrecon reconcile --sales-file sales.csv --delivery-file delivery.csv \
    --batch-id 2026-08 --auto-resolve use_delivery`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVarP(&salesFile, "sales-file", "s", "", "path to the ERP sales export (required)")
	reconcileCmd.Flags().StringVarP(&deliveryFile, "delivery-file", "d", "", "path to the back-office delivery export (required)")
	reconcileCmd.Flags().StringVarP(&cashFile, "cash-file", "c", "", "path to the cash receipts export")
	reconcileCmd.Flags().StringVarP(&batchID, "batch-id", "b", "", "batch identifier (required)")

	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().StringVar(&autoResolve, "auto-resolve", "", "auto-resolve field inconsistencies: use_sales, use_delivery")
	reconcileCmd.Flags().BoolVar(&includeValid, "include-valid", false, "include clean records in the report")

	reconcileCmd.MarkFlagRequired("sales-file")
	reconcileCmd.MarkFlagRequired("delivery-file")
	reconcileCmd.MarkFlagRequired("batch-id")

	viper.BindPFlag("sales-file", reconcileCmd.Flags().Lookup("sales-file"))
	viper.BindPFlag("delivery-file", reconcileCmd.Flags().Lookup("delivery-file"))
	viper.BindPFlag("cash-file", reconcileCmd.Flags().Lookup("cash-file"))
	viper.BindPFlag("batch-id", reconcileCmd.Flags().Lookup("batch-id"))
	viper.BindPFlag("output-format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", reconcileCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("auto-resolve", reconcileCmd.Flags().Lookup("auto-resolve"))
	viper.BindPFlag("include-valid", reconcileCmd.Flags().Lookup("include-valid"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	salesFile = viper.GetString("sales-file")
	deliveryFile = viper.GetString("delivery-file")
	cashFile = viper.GetString("cash-file")
	batchID = viper.GetString("batch-id")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	autoResolve = viper.GetString("auto-resolve")
	includeValid = viper.GetBool("include-valid")

	if batchID == "" {
		return fmt.Errorf("batch-id is required")
	}
	if err := validateFileExists(salesFile, "sales export"); err != nil {
		return err
	}
	if err := validateFileExists(deliveryFile, "delivery export"); err != nil {
		return err
	}
	if cashFile != "" {
		if err := validateFileExists(cashFile, "cash export"); err != nil {
			return err
		}
	}

	if !reporter.OutputFormat(outputFormat).IsValid() {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	switch autoResolve {
	case "", string(ledger.ResolutionUseSales), string(ledger.ResolutionUseDelivery):
	default:
		return fmt.Errorf("invalid auto-resolve '%s'. Valid values: use_sales, use_delivery", autoResolve)
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}
	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Starting reconciliation of batch %s...\n", batchID)
		fmt.Fprintf(os.Stderr, "Sales file: %s\n", salesFile)
		fmt.Fprintf(os.Stderr, "Delivery file: %s\n", deliveryFile)
		if cashFile != "" {
			fmt.Fprintf(os.Stderr, "Cash file: %s\n", cashFile)
		}
	}

	st, err := config.CreateStore(viper.GetString("dsn"))
	if err != nil {
		return err
	}
	service := reconciler.NewService(st)

	session, err := service.OpenBatch(ctx, batchID, reconciler.ImportFiles{
		Sales:    salesFile,
		Delivery: deliveryFile,
		Cash:     cashFile,
	})
	if err != nil {
		return err
	}

	if autoResolve != "" {
		resolution := ledger.Resolution{
			Type:  ledger.ResolutionType(autoResolve),
			Notes: "auto-resolved at import",
		}
		for _, rec := range session.Filtered(ledger.StatusInconsistent) {
			if _, err := service.Resolve(ctx, batchID, rec.MatchKey, resolution); err != nil {
				return err
			}
		}
	}

	reportConfig := config.CreateReportConfig(outputFormat, includeValid)
	reportGenerator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return fmt.Errorf("failed to create report generator: %w", err)
	}

	var output *os.File
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	} else {
		output = os.Stdout
	}

	report := reporter.NewReport(session.Batch(), session.All())
	if err := reportGenerator.GenerateReport(report, output); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if viper.GetBool("verbose") {
		counts := session.Counts()
		fmt.Fprintf(os.Stderr, "\nReconciliation completed.\n")
		fmt.Fprintf(os.Stderr, "Records: %d, inconsistent: %d, missing: %d, pending: %d, permanent: %d\n",
			len(session.All()),
			counts[ledger.StatusInconsistent],
			counts[ledger.StatusMissingInSales]+counts[ledger.StatusMissingInDelivery],
			counts[ledger.StatusPending],
			counts[ledger.StatusPermanentInconsistency])
		if session.CanClose() {
			fmt.Fprintf(os.Stderr, "The batch is ready to close.\n")
		}
	}
	return nil
}

package cmd

import (
	"fmt"
	"os"

	"valet-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "valetrecon",
	Short: "Valet settlement reconciliation tool",
	Long: `Valetrecon reconciles the three exports of a valet operation:
the ERP sales export, the back-office delivery export, and the cash
receipts. It matches records by license plate, classifies
inconsistencies, tracks operator resolutions, and produces the
settlement report.

Examples:
  valetrecon reconcile --sales-file sales.csv --delivery-file delivery.xlsx --cash-file cash.csv --batch-id 2026-08
  valetrecon resolve --batch-id 2026-08 --plate AA-11-AA --action use_sales
  valetrecon close --batch-id 2026-08`,
	Version: getVersionString(),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && viper.GetBool("verbose") {
		printErrorDetails(err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("dsn", "", "MySQL DSN for the record store (default: in-memory)")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}
		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	viper.SetEnvPrefix("VALETRECON")
	viper.AutomaticEnv()

	level := logger.WarnLevel
	if viper.GetBool("verbose") {
		level = logger.DebugLevel
	}
	log, err := logger.New(&logger.Config{
		Level:  level,
		Format: logger.TextFormat,
		Output: os.Stderr,
	})
	if err == nil {
		logger.SetGlobal(log)
	}
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}

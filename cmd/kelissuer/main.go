// Command kelissuer runs and drives a verifiable credential issuance
// controller: a KEL/TEL anchored dual log behind a bounded task
// Dispatcher. Grounded in the teacher's single-binary CLI shape, using
// cobra/pflag the way sigstore-policy-controller's cmd/localk8s does.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	dbDir         string
	queueCapacity int
	workerCount   int
	jsonLogs      bool
	logger        *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "kelissuer",
	Short: "Verifiable credential issuance controller over an anchored KEL/TEL dual log",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var z *zap.Logger
		var err error
		if jsonLogs {
			z, err = zap.NewProduction()
		} else {
			z, err = zap.NewDevelopment()
		}
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		logger = z.Sugar()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbDir, "db-dir", "./kelissuer-data", "base directory holding kel/ and tel/ stores")
	rootCmd.PersistentFlags().IntVar(&queueCapacity, "queue-capacity", 5, "bounded dispatcher queue capacity")
	rootCmd.PersistentFlags().IntVar(&workerCount, "workers", 3, "dispatcher worker pool size")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "use a production JSON log encoder instead of the development console encoder")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(rotateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(kelCmd)
	rootCmd.AddCommand(telCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

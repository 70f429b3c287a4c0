// Command depositd serves the deposit API and the payment provider webhooks.
//
// @title                      Deposit Backend API
// @version                    1.0
// @description                Deposit intake, provider checkout sessions and webhook reconciliation.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-deposit-backend/internal/sysutil"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:           "depositd",
		Short:         "Deposit backend: checkout sessions and provider webhooks",
		Version:       sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), Version),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return sysutil.LoadDotenv(envFiles...)
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")

	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

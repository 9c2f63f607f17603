package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "billdesk",
		Short: "Invoice and quotation service for a small services business",
		Long: `billdesk keeps the service catalog, tax rate and company profile of an operator,
composes invoices and quotations from them and stores saved documents in a
remote document store (postgres, redis or memory).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newTokenCmd())
	return root
}

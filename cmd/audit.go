package cmd

import (
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Administrative audit commands",
	Long:  `View audit logs and inspect active upload credentials on the server. Requires the admin key.`,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

package hlprovision

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   getCommandLineExecutable(),
		Short: "hlprovision",
		Long:  `Automated credential provisioning for web console tenants`,
	}

	rootCmd.AddCommand(newProvisionCommand())
	rootCmd.AddCommand(newRefreshCommand())
	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func Execute() {
	rootCmd := NewRootCmd()
	rootCmd.SetContext(context.Background())
	rootCmd.SetOutput(os.Stdout)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func getCommandLineExecutable() string {
	return os.Args[0]
}

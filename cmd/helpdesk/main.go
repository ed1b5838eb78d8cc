package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

type rootOptions struct {
	configPath string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "helpdesk",
		Short:         "AML helpdesk: скоринг транзакций, лента и сводная статистика",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "путь к config.yaml (по умолчанию ./config.yaml или ./configs/config.yaml)")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(predictCmd(opts))
	rootCmd.AddCommand(latestCmd(opts))
	rootCmd.AddCommand(summaryCmd(opts))
	rootCmd.AddCommand(setupStatsCmd(opts))
	rootCmd.AddCommand(dbCmd(opts))
	return rootCmd
}

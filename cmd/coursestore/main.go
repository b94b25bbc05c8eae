package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const service = "coursestore"

var configPath string

var rootCmd = &cobra.Command{
	Use:           service,
	Short:         "In-memory course store with indexed title search",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("COURSESTORE_CONFIG"), "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, searchCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

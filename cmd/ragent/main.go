package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/ragent/internal/cli"
	"github.com/cloo-solutions/ragent/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "ragent",
		Short: "Ragent CLI - chat with and feed a ragent server",
		Long: `Ragent CLI streams answers from a ragent server and uploads documents to its knowledge base.

Environment variables:
  RAGENT_API_URL   Server URL (default: http://localhost:8085)`,
		Version: version,
	}

	client.AddAPIURLFlag(rootCmd)
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.ChatCmd())
	rootCmd.AddCommand(client.IngestCmd())
	rootCmd.AddCommand(client.JobCmd())
	rootCmd.AddCommand(client.ConfigCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

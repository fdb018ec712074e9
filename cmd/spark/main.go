package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor      bool
	serverURL    string
	tokenFlag    string
	startWithMCP bool
)

var rootCmd = &cobra.Command{
	Use:           "spark",
	Short:         "Turn queries into knowledge tokens and publish them as pages",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "spark server URL (default: http://127.0.0.1:<server.port>)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "management API token (default: from the secret store)")

	startCmd.Flags().BoolVar(&startWithMCP, "mcp", false, "serve MCP over stdio alongside the HTTP API")

	rootCmd.AddCommand(
		startCmd,
		stopCmd,
		statusCmd,
		seedCmd,
		searchCmd,
		tokensCmd,
		promoteCmd,
		expandCmd,
		pagesCmd,
		publishCmd,
		verifyCmd,
		findCmd,
		filesCmd,
		exportCmd,
		leaderboardCmd,
		siteCmd,
		credentialCmd,
		configCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

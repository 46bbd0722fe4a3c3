// Package main provides the glance CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/prepwise/glance/cli"
)

var (
	// Global flags
	provider string
	verbose  bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "glance",
		Short: "Meeting-preparation assistant over an organizational graph",
		Long: `glance answers questions about your meetings, colleagues, and documents.

It plans a multi-step query strategy with an LLM, validates and optimizes it,
executes it against a Neo4j graph of your calendar data, and iterates with
follow-up queries until the answer is complete.`,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, gemini)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(toolsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Serve(signalContext(), cli.Options{Provider: provider, Verbose: verbose})
		},
	}
}

func askCmd() *cobra.Command {
	var sessionID string
	var userEmail string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question from the command line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Ask(signalContext(), args[0], sessionID, userEmail,
				cli.Options{Provider: provider, Verbose: verbose})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID for conversation persistence")
	cmd.Flags().StringVar(&userEmail, "user", "", "Email of the user asking")

	return cmd
}

func catalogCmd() *cobra.Command {
	var userEmail string
	var accessToken string
	var monthsBack int

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Ingest a user's calendar into the graph store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if accessToken == "" {
				accessToken = os.Getenv("GOOGLE_ACCESS_TOKEN")
			}
			return cli.Catalog(signalContext(), userEmail, accessToken, monthsBack,
				cli.Options{Provider: provider, Verbose: verbose})
		},
	}

	cmd.Flags().StringVar(&userEmail, "user", "", "Email of the user to catalog")
	cmd.Flags().StringVar(&accessToken, "token", "", "Calendar access token (defaults to GOOGLE_ACCESS_TOKEN)")
	cmd.Flags().IntVar(&monthsBack, "months-back", 6, "How many months of history to fetch")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the supported query types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Tools()
		},
	}
}

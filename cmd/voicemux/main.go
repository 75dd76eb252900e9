package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// Optional .env for local development; absence is fine.
	godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "voicemux",
		Short: "VoiceMux bridge receiver",
		Long: `voicemux runs the receiver side of the VoiceMux bridge: it keeps a
durable, end-to-end encrypted session to the relay and forwards
dictated text and remote commands from a paired sender device.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		runCmd(),
		pairCmd(),
		statusCmd(),
		resetCmd(),
		relayCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

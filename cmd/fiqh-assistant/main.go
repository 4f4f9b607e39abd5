package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var ensureTable bool

var rootCmd = &cobra.Command{
	Use:   "fiqh-assistant",
	Short: "Fiqh research assistant backed by Gemini",
	Long: `Answers Islamic jurisprudence questions from the published rulings of
Hanafi institutions, keeps the conversation history in a local cache and
mirrors it to an optional remote store.

Configuration is read from .env and FIQH_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&ensureTable, "ensure-table", false,
		"create the chat_sessions table on postgres/mysql before reconciling")

	rootCmd.AddCommand(serveCmd, askCmd, sessionsCmd, speakCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

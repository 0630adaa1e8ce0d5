package main

import (
	"os"

	"github.com/spf13/cobra"

	logx "github.com/gisa-chat/server/pkg/logger"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "gisa-chat",
	Short: "Control-plan assistant: intent routing, tool dispatch and follow-ups",
	Long: `gisa-chat answers questions about veterinary control plans, establishments
and risk, routing each message to one of a closed set of intents.

Environment Variables:
  GEMINI_API_KEY      - Gemini API key (required)
  DATA_SOURCE         - csv or postgres
  REDIS_URL           - turn log and pending details
  HTTP_ADDR, NATS_URL - transports used by serve`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logx.Init()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(indexCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Command playht synthesizes text to audio with the PlayHT client.
//
//	playht say -c playht.yaml --engine Play3.0-mini --voice s3://... -o hello.mp3 "Hello there."
//	some-llm | playht say --stdin-stream -o answer.mp3
//	playht validate playht.yaml
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/playht/playht-go-sdk/logger"
)

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "playht",
		Short:         "Text to speech with the PlayHT API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("verbose") {
				verbose, err := cmd.Flags().GetBool("verbose")
				if err != nil {
					return err
				}
				logger.SetVerbose(verbose)
			}
			if envFile == "" {
				return nil
			}
			// Variables already set in the environment win.
			return godotenv.Load(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "load PLAYHT_* variables from a dotenv file")
	root.PersistentFlags().BoolP("verbose", "v", false, "debug logging")

	root.AddCommand(newSayCmd(), newValidateCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "evloopctl",
	Short: "Drive the ev event loop through a handful of scripted scenarios",
	Long: `evloopctl exercises github.com/xtaci/evloop's Loop against small
scripted scenarios -- a channel rendezvous, sleep ordering, and a select
over several ready channels -- for manual inspection. It is not part of
the importable ev package; it only demonstrates the API against fibers
implemented with goroutines standing in for a real fiber VM.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "evloopctl: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.AddCommand(rendezvousCmd)
	rootCmd.AddCommand(sleepOrderCmd)
	rootCmd.AddCommand(selectFairnessCmd)
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
}

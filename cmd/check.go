package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/evcorridor/qa/scenarios"
)

var checkCmd = &cobra.Command{
	Use:   "check <scenario.yaml>...",
	Short: "Run YAML planning scenarios and report failed expectations",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed := 0
	w := cmd.OutOrStdout()
	for _, path := range args {
		sc, err := scenarios.Load(path)
		if err != nil {
			return err
		}
		rep, err := scenarios.Run(ctx, sc)
		if err != nil {
			return fmt.Errorf("%s: %w", sc.Name, err)
		}
		if rep.Passed() {
			fmt.Fprintf(w, "PASS %s\n", rep.Name)
			continue
		}
		failed++
		fmt.Fprintf(w, "FAIL %s\n", rep.Name)
		for _, f := range rep.Failures {
			fmt.Fprintf(w, "     %s\n", f)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(args))
	}
	return nil
}

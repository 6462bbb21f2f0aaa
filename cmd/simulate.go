package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/evcorridor/app"
	"github.com/kilianp07/evcorridor/infra/logger"
	"github.com/kilianp07/evcorridor/pkg/export"
)

var (
	simFlags  scenarioFlags
	simSeed   uint64
	traceFile string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Plan stations and simulate one day of traffic",
	RunE:  runSimulate,
}

func init() {
	simFlags.register(simulateCmd)
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 0, "random seed, overrides simulation.seed")
	simulateCmd.Flags().StringVar(&traceFile, "trace", "", "car trace file, overrides trace.path")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := simFlags.scenario()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		cfg.Simulation.Seed = simSeed
	}
	if traceFile != "" {
		cfg.Trace.Path = traceFile
	}
	p, err := app.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	log := logger.New("main")
	defer func() {
		if err := p.Close(); err != nil {
			log.Errorf("planner close: %v", err)
		}
	}()

	out, err := p.Simulate(ctx, sc)
	if err != nil {
		return err
	}
	log.Infof("seed %d: mean coverage %.2f over %d stations", out.Counters.Seed, out.Summary.MeanCoverage, out.Summary.Stations)
	w, closeOut, err := simFlags.output(cmd)
	if err != nil {
		return err
	}
	defer closeOut()
	res := export.Round(out.Results)
	if simFlags.format == "csv" {
		return export.WriteResultsCSV(w, res)
	}
	return export.WriteResultsJSON(w, res)
}

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

var planFlags scenarioFlags

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Select station sites within a budget",
	RunE:  runPlan,
}

func init() {
	planFlags.register(planCmd)
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := planFlags.scenario()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := app.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.New("main").Errorf("planner close: %v", err)
		}
	}()

	out, err := p.Optimize(ctx, sc)
	if err != nil {
		return err
	}
	w, closeOut, err := planFlags.output(cmd)
	if err != nil {
		return err
	}
	defer closeOut()
	rows := export.PlanRows(p.Segments(), out.Plan, out.Coverage)
	if planFlags.format == "csv" {
		return export.WritePlanCSV(w, rows)
	}
	return export.WritePlanJSON(w, rows)
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/adaptive_scheduler/internal/db"
	"github.com/friendsincode/adaptive_scheduler/internal/request"
	"github.com/friendsincode/adaptive_scheduler/internal/scheduler"
	"github.com/friendsincode/adaptive_scheduler/internal/store"
)

var (
	scheduleVariant   string
	scheduleTimeLimit string
	scheduleOutput    string
	schedulePersist   bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <request.yaml>",
	Short: "Run the scheduler once on a request file",
	Long: `Run one scheduling pass over a YAML or JSON request and print the result.

Examples:
  # Schedule with the configured default variant
  adaptivescheduler schedule night.yaml

  # Use the integer program with a two minute solver budget
  adaptivescheduler schedule night.yaml --variant ilp --time-limit 2m

  # Keep the run in the history database and print JSON
  adaptivescheduler schedule night.yaml --persist --output json
`,
	Args: cobra.ExactArgs(1),
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleVariant, "variant", "", "Scheduler variant (overrides the request and ADSCHED_VARIANT)")
	scheduleCmd.Flags().StringVar(&scheduleTimeLimit, "time-limit", "", "Solver time limit, a duration or seconds")
	scheduleCmd.Flags().StringVarP(&scheduleOutput, "output", "o", "yaml", "Output format: yaml or json")
	scheduleCmd.Flags().BoolVar(&schedulePersist, "persist", false, "Store the run in the history database")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if scheduleOutput != "yaml" && scheduleOutput != "json" {
		return fmt.Errorf("unknown output format %q", scheduleOutput)
	}

	doc, err := request.Load(args[0])
	if err != nil {
		return err
	}
	if scheduleVariant != "" {
		doc.Variant = scheduleVariant
	}
	if scheduleTimeLimit != "" {
		doc.TimeLimit = scheduleTimeLimit
	}

	settings, err := scheduler.SettingsFromConfig(cfg)
	if err != nil {
		return err
	}
	var opts []scheduler.Option
	if schedulePersist {
		database, err := initDatabase()
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close(database)
		opts = append(opts, scheduler.WithStore(store.NewRuns(database, logger)))
	}

	result, err := scheduler.New(settings, logger, opts...).Schedule(cmd.Context(), doc)
	if err != nil {
		return err
	}
	resp := request.FromResult(result.Result)
	resp.Validation = result.Report
	if err := writeResponse(cmd.OutOrStdout(), scheduleOutput, resp); err != nil {
		return err
	}
	if !result.Report.Valid {
		return fmt.Errorf("schedule failed validation with %d error(s)", len(result.Report.Errors))
	}
	return nil
}

func writeResponse(w io.Writer, format string, resp *request.Response) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(resp); err != nil {
		return err
	}
	return enc.Close()
}

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"turbinelens/config"
	"turbinelens/emissions"
	"turbinelens/etl"
)

func newMixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mix",
		Short: "Compute the carbon intensity of an energy mix",
		Long:  "Computes intensity, zone, breakdown and annual totals. Shares are percentages; sources left out are 0.",
		RunE:  runMix,
	}
	for _, s := range emissions.Sources() {
		cmd.Flags().Float64(s.String(), 0, fmt.Sprintf("%s share in percent", s))
	}
	cmd.Flags().Float64("consumption", 10000, "Annual consumption in MWh")
	cmd.Flags().Float64("price", 75, "Carbon price per tonne")
	cmd.Flags().Bool("default", false, "Use the built-in demo mix")
	return cmd
}

func runMix(cmd *cobra.Command, args []string) error {
	var mix emissions.Mix
	if useDefault, _ := cmd.Flags().GetBool("default"); useDefault {
		mix = emissions.DefaultMix()
	}
	for _, s := range emissions.Sources() {
		if !cmd.Flags().Changed(s.String()) {
			continue
		}
		pct, err := cmd.Flags().GetFloat64(s.String())
		if err != nil {
			return err
		}
		mix.Set(s, pct)
	}
	consumption, _ := cmd.Flags().GetFloat64("consumption")
	price, _ := cmd.Flags().GetFloat64("price")

	m := emissions.Compute(mix, consumption, price)
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Carbon intensity: %s gCO2/kWh (%s)\n", emissions.FormatIntensity(m.Intensity), m.Zone.Label())
	fmt.Fprintf(out, "Annual emissions: %s tCO2\n", emissions.FormatTonnes(m.TotalEmissions))
	fmt.Fprintf(out, "Carbon cost:      %s\n", emissions.FormatCost(m.CarbonCost))
	if w := mix.SumWarning(); w != "" {
		fmt.Fprintf(out, "Warning: %s\n", w)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%-10s %8s %8s %10s\n", "SOURCE", "SHARE", "FACTOR", "WEIGHTED")
	for _, c := range m.Breakdown {
		fmt.Fprintf(out, "%-10s %7s%% %8.0f %10.1f\n", c.Name, emissions.FormatPercent(c.Share), c.Factor, c.Weighted)
	}
	return nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.csv>",
		Short: "Check a telemetry file the way an upload is checked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if err := etl.CheckFileType(path); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return &etl.IOError{FileName: path, Err: err}
			}
			table, err := etl.ParseCSV(string(data))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records, %d columns\n", path, len(table.Rows), len(table.Headers))
			return nil
		},
	}
}

func newSampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Generate a synthetic turbine telemetry CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.SampleDataConfig{}
			cfg.Turbines, _ = cmd.Flags().GetInt("turbines")
			cfg.RowsPerTurbine, _ = cmd.Flags().GetInt("rows")
			cfg.FailureRate, _ = cmd.Flags().GetFloat64("failure-rate")
			cfg.IntervalMinutes, _ = cmd.Flags().GetInt("interval")
			seed, _ := cmd.Flags().GetInt64("seed")
			output, _ := cmd.Flags().GetString("output")

			out := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			gen := etl.NewSampleGenerator(cfg, seed)
			rows, err := gen.WriteCSV(out, time.Now().UTC().Truncate(24*time.Hour))
			if err != nil {
				return err
			}
			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows to %s\n", rows, output)
			}
			return nil
		},
	}
	cmd.Flags().Int("turbines", 12, "Number of turbines")
	cmd.Flags().Int("rows", 24, "Rows per turbine")
	cmd.Flags().Float64("failure-rate", 0.08, "Share of turbines that degrade")
	cmd.Flags().Int("interval", 60, "Minutes between readings")
	cmd.Flags().Int64("seed", 0, "Random seed, 0 uses the clock")
	cmd.Flags().StringP("output", "o", "", "Output file, stdout when empty")
	return cmd
}

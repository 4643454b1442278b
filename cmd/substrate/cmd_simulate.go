package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nvandessel/substrate/internal/engine"
	"github.com/nvandessel/substrate/internal/graph"
	"github.com/nvandessel/substrate/internal/logging"
	"github.com/nvandessel/substrate/internal/simulation"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a fixed number of ticks on a virtual clock",
		Long: `Run the engine for a fixed number of ticks as fast as possible, on a
virtual clock, and print the final tick summary.

The graph comes from --graph, or is generated with --random N nodes.

Examples:
  substrate simulate --graph seed.yaml --ticks 500 --inject a=1
  substrate simulate --random 200 --seed 7 --inject n0=0.5@10 --json
  substrate simulate --graph seed.yaml --every 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			ticks, _ := cmd.Flags().GetInt("ticks")
			every, _ := cmd.Flags().GetInt("every")
			eventsDir, _ := cmd.Flags().GetString("events-dir")
			specs, _ := cmd.Flags().GetStringArray("inject")
			if ticks < 1 {
				return fmt.Errorf("--ticks must be at least 1, got %d", ticks)
			}
			injections, err := parseInjections(specs)
			if err != nil {
				return err
			}
			seed, err := simulationSeed(cmd, cfg.GraphFile)
			if err != nil {
				return err
			}

			opts := []simulation.Option{simulation.WithLogger(newLogger(cmd, cfg.Logging.Level))}
			if eventsDir != "" {
				el, err := logging.NewEventLog(eventsDir)
				if err != nil {
					return fmt.Errorf("opening event log: %w", err)
				}
				defer el.Close()
				opts = append(opts, simulation.WithSink(el))
			}

			result, err := simulation.NewRunner(opts...).Run(cmd.Context(), simulation.Scenario{
				Name:   "cli",
				Seed:   seed,
				Ticks:  ticks,
				Params: &cfg.Engine,
				Stimuli: func(tick uint64) []engine.Stimulus {
					var out []engine.Stimulus
					for _, inj := range injections {
						if inj.due(tick) {
							out = append(out, engine.Stimulus{NodeID: inj.ID, Energy: inj.Energy})
						}
					}
					return out
				},
			})
			if err != nil {
				return err
			}
			return printSimulation(cmd.OutOrStdout(), result, every, jsonOut)
		},
	}

	cmd.Flags().String("graph", "", "Seed graph file (YAML)")
	cmd.Flags().Int("random", 0, "Generate a random graph with this many nodes instead of --graph")
	cmd.Flags().Uint64("seed", 1, "Random graph seed")
	cmd.Flags().Int("degree", 3, "Outgoing links per node of a random graph")
	cmd.Flags().Int("ticks", 100, "Number of ticks to run")
	cmd.Flags().Int("every", 0, "Also print every Nth tick summary")
	cmd.Flags().String("events-dir", "", "Append events to events.jsonl in this directory")
	cmd.Flags().StringArray("inject", nil, "Stimulus as id=energy (first tick) or id=energy@N (every N ticks)")

	return cmd
}

// simulationSeed resolves the seed graph from --random, --graph or the
// configured graph file, in that order.
func simulationSeed(cmd *cobra.Command, graphFile string) (graph.Seed, error) {
	if n, _ := cmd.Flags().GetInt("random"); n > 0 {
		seed, _ := cmd.Flags().GetUint64("seed")
		degree, _ := cmd.Flags().GetInt("degree")
		return simulation.Random(seed, n, degree), nil
	}
	if v, _ := cmd.Flags().GetString("graph"); v != "" {
		graphFile = v
	}
	if graphFile == "" {
		return graph.Seed{}, fmt.Errorf("no graph: set --graph, --random or graph_file in the config")
	}
	return graph.ReadSeedFile(graphFile)
}

func printSimulation(w io.Writer, result simulation.SimulationResult, every int, jsonOut bool) error {
	last := result.Last().Summary
	if jsonOut {
		out := map[string]any{
			"ticks":   len(result.Ticks),
			"summary": last,
			"status":  result.Engine.Status(),
		}
		if every > 0 {
			var sampled []engine.Summary
			for i, tr := range result.Ticks {
				if (i+1)%every == 0 {
					sampled = append(sampled, tr.Summary)
				}
			}
			out["history"] = sampled
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if every > 0 {
		fmt.Fprintf(w, "%6s  %6s  %10s  %7s  %7s  %9s\n", "tick", "active", "energy", "strides", "rho", "safe_mode")
		for i, tr := range result.Ticks {
			if (i+1)%every != 0 {
				continue
			}
			s := tr.Summary
			fmt.Fprintf(w, "%6d  %6d  %10.6f  %7d  %7.4f  %9t\n", s.Tick, s.Active, s.Energy, s.Strides, s.Rho, s.SafeMode)
		}
		fmt.Fprintln(w)
	}

	g := result.Graph()
	fmt.Fprintf(w, "Simulated %d ticks on %d nodes and %d links\n", len(result.Ticks), g.Len(), g.LinkCount())
	fmt.Fprintf(w, "  energy:       %.6f\n", last.Energy)
	fmt.Fprintf(w, "  active:       %d (frontier %.2f)\n", last.Active, last.Frontier)
	fmt.Fprintf(w, "  strides:      %d\n", last.Strides)
	fmt.Fprintf(w, "  delta, alpha: %.4f, %.4f\n", last.Knobs.Delta, last.Knobs.Alpha)
	if last.Sampled {
		fmt.Fprintf(w, "  rho:          %.4f (%s)\n", last.Rho, last.Safety)
	}
	status := result.Engine.Status()
	fmt.Fprintf(w, "  safe mode:    %s (%d entries, %d violations)\n", status.SafeMode.State, status.SafeMode.Entries, status.SafeMode.Total)
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"DecisionCore/internal/di"

	"github.com/spf13/cobra"
)

func replayCmd(load configLoader) *cobra.Command {
	var (
		input  string
		output string
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Feed a JSON-lines observation file through fresh engines",
		Long: `Replays recorded observations offline. Each line of the input is one
observation; decisions are written as JSON lines and a summary goes to stderr.

Examples:
  decisioncore replay --input observations.jsonl
  decisioncore replay --input - --output decisions.jsonl < observations.jsonl`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			var in io.Reader = os.Stdin
			if input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				in = f
			}

			var out io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}

			replayer, err := di.InitializeReplayer(cfg, out)
			if err != nil {
				return err
			}
			summary, err := replayer.Run(cmd.Context(), in)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.ErrOrStderr())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	cmd.Flags().StringVar(&input, "input", "-", "observation file, - for stdin")
	cmd.Flags().StringVar(&output, "output", "", "decision output file (default: stdout)")
	return cmd
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/018kpmanoj/ModelZoo/internal/orchestrator"
	"github.com/018kpmanoj/ModelZoo/internal/server"
)

// NewAnalyzeCmd scores a query locally and prints the selection breakdown.
func NewAnalyzeCmd(opts *Options) *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "analyze \"<query>\"",
		Short: "Score a query and show which model would be selected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			registry, err := server.BuildRegistry(cfg)
			if err != nil {
				return err
			}
			orch := orchestrator.New(registry, orchestrator.Lexicon{
				High:   cfg.Keywords.High,
				Medium: cfg.Keywords.Medium,
				Low:    cfg.Keywords.Low,
			})

			selected, analysis := orch.SelectModel(args[0], model)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Selected model:  %s\n", selected)
			fmt.Fprintf(out, "Reason:          %s\n", analysis.SelectionReason)
			fmt.Fprintf(out, "Auto selected:   %v\n\n", analysis.WasAutoSelected)
			fmt.Fprintf(out, "Length score:    %d\n", analysis.LengthScore)
			fmt.Fprintf(out, "Keyword score:   %d\n", analysis.KeywordScore)
			fmt.Fprintf(out, "Structure score: %d\n", analysis.StructureScore)
			fmt.Fprintf(out, "Total score:     %d\n", analysis.TotalScore)

			if len(analysis.Factors) > 0 {
				fmt.Fprintln(out, "\nFactors:")
				for _, f := range analysis.Factors {
					fmt.Fprintf(out, "  - %s\n", f)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Force a specific model id instead of auto selection")
	return cmd
}

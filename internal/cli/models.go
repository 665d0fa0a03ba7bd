package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/018kpmanoj/ModelZoo/internal/server"
)

// NewModelsCmd lists the configured model registry.
func NewModelsCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the configured models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			registry, err := server.BuildRegistry(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, m := range registry.List() {
				fmt.Fprintf(out, "%s (%s, %s tier)\n", m.ID, m.DisplayName, m.Tier)
				if m.Description != "" {
					fmt.Fprintf(out, "  %s\n", m.Description)
				}
				fmt.Fprintf(out, "  provider=%s deployment=%s max_tokens=%d cost=$%.3f/1k\n",
					m.Provider, m.Deployment, m.MaxTokens, m.CostPer1KTokens)
				if len(m.Capabilities) > 0 {
					fmt.Fprintf(out, "  capabilities: %s\n", strings.Join(m.Capabilities, ", "))
				}
			}
			return nil
		},
	}
}

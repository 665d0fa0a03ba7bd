package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/018kpmanoj/ModelZoo/internal/llm/configbuilder"
	"github.com/018kpmanoj/ModelZoo/internal/server"
	"github.com/018kpmanoj/ModelZoo/internal/store"
)

// NewDoctorCmd validates config, database and provider wiring.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration, database and providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d\n", len(cfg.Providers), len(cfg.Models))

			if _, err := server.BuildRegistry(cfg); err != nil {
				return fmt.Errorf("model registry: %w", err)
			}
			fmt.Fprintln(out, "Registry OK.")

			st, err := store.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			if err := st.Ping(cmd.Context()); err != nil {
				st.Close()
				return fmt.Errorf("database ping: %w", err)
			}
			st.Close()
			fmt.Fprintf(out, "Database OK (%s).\n", cfg.Database.Path)

			providers, err := configbuilder.Build(cfg)
			if err != nil {
				return fmt.Errorf("providers: %w", err)
			}
			if providers.MockMode {
				fmt.Fprintln(out, "Providers: MOCK MODE (credentials missing, responses will be canned).")
			} else {
				fmt.Fprintln(out, "Providers OK.")
			}

			client := &http.Client{Timeout: 2 * time.Second}
			resp, err := client.Get(daemonURL(cfg.Server.Addr) + "/health")
			if err != nil {
				fmt.Fprintf(out, "Daemon: not reachable at %s (run 'modelzoo serve').\n", cfg.Server.Addr)
				return nil
			}
			resp.Body.Close()
			fmt.Fprintf(out, "Daemon: reachable at %s (status %d).\n", cfg.Server.Addr, resp.StatusCode)
			return nil
		},
	}
}

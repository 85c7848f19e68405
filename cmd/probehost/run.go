package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/probehost/internal/shared/paths"
)

func newRunCmd() *cobra.Command {
	var (
		asJSON  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run [plugin-id...]",
		Short: "Run probes once and print their output",
		Long: `Run probes once and print their output.

Without arguments every enabled plugin runs in settings order. Named
plugins run in the given order whether enabled or not. Exits 1 when any
probe fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := paths.ValidatePluginID(id); err != nil {
					return usageExit(err.Error())
				}
			}

			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			if timeout > 0 {
				cfg.Runtime.TimeoutMS = int(timeout / time.Millisecond)
			}
			a, err := openApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var ids []string
			if len(args) > 0 {
				for _, id := range args {
					if _, ok := a.Registry.Get(id); !ok {
						fmt.Fprintln(cmd.ErrOrStderr(), Styles.Warning.Render("unknown plugin: "+id))
					}
				}
				ids = args
			}

			_, outputs := a.Batches.Run(cmd.Context(), "", ids)
			if asJSON {
				if err := writeJSON(cmd, outputs); err != nil {
					return err
				}
			} else {
				for i, out := range outputs {
					if i > 0 {
						fmt.Fprintln(cmd.OutOrStdout())
					}
					fmt.Fprint(cmd.OutOrStdout(), renderOutput(out))
				}
			}

			failed := 0
			for _, out := range outputs {
				if out.Failed() {
					failed++
				}
			}
			if failed > 0 {
				return failExit(fmt.Sprintf("%d of %d probes failed", failed, len(outputs)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-probe deadline (default: PROBE_TIMEOUT_MS)")
	return cmd
}

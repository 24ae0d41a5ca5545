package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/averros/ecoscen/internal/config"
)

func newParamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "List the resolvable parameter names of a model",
		Long: `Print every parameter name a scenario table may reference for the
given model: environmental parameters plus one name per group-parameter
prefix and functional group. Vulnerability cells follow the pattern
vuln_<prey index>_<prey>_<pred index>_<pred> and are not enumerated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			modelPath, _ := cmd.Flags().GetString("model")
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			factory, err := hostFactory(cmd, cfg.EngineCmd)
			if err != nil {
				return err
			}
			factory.Logger = config.NewLogger(os.Stderr, cfg.LogLevel)

			reg, err := probeRegistry(context.Background(), factory, modelPath)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(map[string]any{
					"groups":         reg.Groups(),
					"group_prefixes": reg.GroupPrefixes(),
					"env_params":     reg.EnvParamNames(),
					"names":          reg.AllNames(),
				})
			}
			for _, name := range reg.AllNames() {
				fmt.Println(name)
			}
			return nil
		},
	}

	cmd.Flags().String("model", "", "Model database file (required)")
	cmd.MarkFlagRequired("model")

	return cmd
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/averros/ecoscen/internal/config"
	"github.com/averros/ecoscen/internal/scenario"
)

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Emit an empty scenario table for a model",
		Long: `Write a zero-filled scenario CSV with one column per requested
parameter, ready to fill in and feed to "ecoscen run".

Examples:
  ecoscen template --model baltic.ewemdb --scenarios 10 > batch.csv
  ecoscen template --model baltic.ewemdb --env env_init_c --prefixes init_c
  ecoscen template --model baltic.ewemdb --long`,
		RunE: func(cmd *cobra.Command, args []string) error {
			modelPath, _ := cmd.Flags().GetString("model")
			n, _ := cmd.Flags().GetInt("scenarios")
			envNames, _ := cmd.Flags().GetStringSlice("env")
			prefixes, _ := cmd.Flags().GetStringSlice("prefixes")
			long, _ := cmd.Flags().GetBool("long")
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

			if long {
				rows := scenario.LongForm(reg)
				if jsonOut {
					return json.NewEncoder(os.Stdout).Encode(rows)
				}
				for _, row := range rows {
					fmt.Printf("%s,%s,%s\n", row.Scenario, row.Group, row.Parameter)
				}
				return nil
			}

			if len(prefixes) == 0 {
				prefixes = []string{"all"}
			}
			batch, err := scenario.EmptyTemplate(reg, envNames, prefixes, n)
			if err != nil {
				return err
			}
			return writeScenarioCSV(os.Stdout, batch)
		},
	}

	cmd.Flags().String("model", "", "Model database file (required)")
	cmd.Flags().Int("scenarios", 1, "Number of template rows")
	cmd.Flags().StringSlice("env", nil, "Environmental parameters to include")
	cmd.Flags().StringSlice("prefixes", nil, "Group-parameter prefixes to include (default all)")
	cmd.Flags().Bool("long", false, "Emit the long-form (scenario, group, parameter) listing")
	cmd.MarkFlagRequired("model")

	return cmd
}

// Command ecoscen runs ecological scenario batches against an EwE
// engine host and serves the resulting run journal.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/averros/ecoscen/internal/engine"
	"github.com/averros/ecoscen/internal/engine/host"
	"github.com/averros/ecoscen/internal/params"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "ecoscen",
		Short: "Scenario batch execution for EwE ecosystem models",
		Long: `ecoscen drives batches of parameter scenarios through an Ecopath
with Ecosim model, one engine host process per worker, and collects
the extracted outputs into dense per-variable arrays.`,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("engine-cmd", "", "Engine host executable (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newTemplateCmd(),
		newParamsCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ecoscen version %s\n", version)
		},
	}
}

// probeRegistry opens one engine handle to read the model's functional
// groups and builds the parameter registry from them.
func probeRegistry(ctx context.Context, factory engine.Factory, modelPath string) (*params.Registry, error) {
	eng, err := factory.Open(ctx, modelPath)
	if err != nil {
		return nil, fmt.Errorf("probe model %s: %w", modelPath, err)
	}
	defer eng.Close()
	return params.NewRegistry(eng.Groups(), params.DefaultFamilies()...)
}

// hostFactory builds the subprocess engine factory for the given
// executable, falling back to the configured one.
func hostFactory(cmd *cobra.Command, configured string) (*host.Factory, error) {
	engineCmd, _ := cmd.Flags().GetString("engine-cmd")
	if engineCmd == "" {
		engineCmd = configured
	}
	if engineCmd == "" {
		return nil, fmt.Errorf("no engine host executable: set --engine-cmd or ECOSCEN_ENGINE_CMD")
	}
	return &host.Factory{Cmd: engineCmd}, nil
}

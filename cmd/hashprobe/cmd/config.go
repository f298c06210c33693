package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/hashprobe/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the configuration after defaults, file, environment and flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("format")
			var (
				out []byte
				err error
			)
			switch format {
			case "yaml":
				out, err = yaml.Marshal(a.cfg)
			case "json":
				out, err = json.MarshalIndent(a.cfg, "", "  ")
				out = append(out, '\n')
			default:
				return fmt.Errorf("unsupported format: %s (must be yaml or json)", format)
			}
			if err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	showCmd.Flags().String("format", "yaml", "output format (yaml, json)")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "configuration is valid")
			if used := a.loader.GetConfigFileUsed(); used != "" {
				_, _ = fmt.Fprintf(out, "file: %s\n", used)
			}
			_, _ = fmt.Fprintf(out, "models: %d, modes: %v, topk: %s\n",
				len(a.cfg.Models), a.cfg.Eval.Modes, humanize.Comma(int64(a.cfg.Eval.TopK)))
			gpu, err := a.cfg.ToGPUConfig()
			if err != nil {
				return err
			}
			if gpu.GPUMemLimit > 0 {
				_, _ = fmt.Fprintf(out, "gpu memory limit: %s\n", humanize.Bytes(gpu.GPUMemLimit))
			}
			return nil
		},
	}

	pathsCmd := &cobra.Command{
		Use:   "paths",
		Short: "List the directories searched for " + config.ConfigFileName + ".yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, p := range config.GetConfigSearchPaths() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), p); err != nil {
					return err
				}
			}
			return nil
		},
	}

	configCmd.AddCommand(showCmd, validateCmd, pathsCmd)
	return configCmd
}

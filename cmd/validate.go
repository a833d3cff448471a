package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newValidateCommand(v *viper.Viper, configFile *string, multiple *int) *cobra.Command {
	var printSettings bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the options without opening any input or output",
		Long: `Validate merges flags, the optional config file and MERCURY_* environment
variables, checks them, and reports VALID or the first problem found.
With --print the effective configuration is written as YAML.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v, *configFile, *multiple)
			if err != nil {
				return usageError(cmd, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "VALID (threads: %d, record kind: %s)\n", cfg.ThreadCount, cfg.Kind())
			if !printSettings {
				return nil
			}
			b, err := yaml.Marshal(v.AllSettings())
			if err != nil {
				return fmt.Errorf("encode settings: %w", err)
			}
			_, err = out.Write(b)
			return err
		},
	}
	cmd.Flags().BoolVar(&printSettings, "print", false, "print the effective configuration as YAML")
	return cmd
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const redacted = "<redacted>"

func (p *program) newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective settings and where they are read from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shown := p.settings
			if shown.OpenAIAPIKey != "" {
				shown.OpenAIAPIKey = redacted
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Settings file: %s\n", p.settingsPath)

			enc := json.NewEncoder(w)
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			return enc.Encode(shown)
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective settings to the settings file",
		Long:  "Write the effective settings, including environment overrides, to the settings file.\n" +
			"An API key from the environment is not written; one already in the file is kept.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(p.settingsPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", p.settingsPath)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			onDisk, err := p.store.Load()
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			settings := p.settings
			settings.OpenAIAPIKey = onDisk.OpenAIAPIKey

			if err := p.store.Save(settings); err != nil {
				return fmt.Errorf("save settings: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Settings written to %s\n", p.settingsPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing settings file")

	cmd.AddCommand(initCmd)
	return cmd
}

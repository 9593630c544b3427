package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/mirrorpair/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configPathCmd())
	cmd.AddCommand(configValidateCmd())
	cmd.AddCommand(configInitCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration (secrets redacted)",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
				os.Exit(1)
			}

			data, _ := json.MarshalIndent(redactConfig(cfg), "", "  ")
			fmt.Println(string(data))
		},
	}
}

func configPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Run: func(cmd *cobra.Command, args []string) {
			cfgPath := resolveConfigPath()
			if _, err := config.Load(cfgPath); err != nil {
				fmt.Fprintf(os.Stderr, "Invalid config: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Config at %s is valid.\n", cfgPath)
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Run: func(cmd *cobra.Command, args []string) {
			path := config.ExpandHome(resolveConfigPath())
			if _, err := os.Stat(path); err == nil && !force {
				if !isInteractive() {
					exitErr(fmt.Errorf("%s already exists (use --force to overwrite)", path))
				}
				ok, err := promptConfirm(fmt.Sprintf("%s exists. Overwrite?", path), false)
				if err != nil || !ok {
					fmt.Println("Cancelled.")
					return
				}
			}
			if err := config.Save(path, config.Default()); err != nil {
				exitErr(err)
			}
			fmt.Printf("Wrote %s\n", path)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// redactConfig returns a JSON-safe copy with secrets masked.
func redactConfig(cfg *config.Config) map[string]any {
	data, _ := json.Marshal(cfg)
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	redactMap(raw)
	return raw
}

var secretKeys = map[string]bool{
	"csrfToken":     true,
	"redisPassword": true,
	"dsn":           true,
	"encryptionKey": true,
	"token":         true,
}

func redactMap(m map[string]any) {
	for k, v := range m {
		switch {
		case k == "headers":
			// OTLP headers usually carry auth; mask every value.
			if sub, ok := v.(map[string]any); ok {
				for hk, hv := range sub {
					if s, ok := hv.(string); ok {
						sub[hk] = maskSecret(s)
					}
				}
			}
		case secretKeys[k]:
			if s, ok := v.(string); ok {
				m[k] = maskSecret(s)
			}
		default:
			if sub, ok := v.(map[string]any); ok {
				redactMap(sub)
			}
		}
	}
}

// maskSecret keeps the first and last four characters of long values.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) > 8:
		return s[:4] + "****" + s[len(s)-4:]
	default:
		return "****"
	}
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the ionscreen CLI.
// Implements: prd001-bvse-field, prd002-pathway-search, prd004-active-learning,
//             prd005-candidate-pool (CLI surface).
// See docs/ARCHITECTURE § Pipeline Interface, § Project Structure.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/ionscreen/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns the secret value for key if it exists, or fallback otherwise.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the ionscreen CLI.
var rootCmd = &cobra.Command{
	Use:   "ionscreen",
	Short: "Bond-valence screening of solid-state ionic conductors",
	Long: `ionscreen screens candidate crystal structures for fast ionic
conduction. The pipeline estimates migration barriers from bond-valence
site energies, trains surrogate models over the accumulating results, and
drives an active-learning loop that decides which candidates earn a
ground-truth evaluation.

Each pipeline stage is a subcommand: analyze (one structure), screen
(a batch), run (the active-learning loop), and pool (candidate-pool
inspection and export).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./ionscreen.yaml or ~/.config/ionscreen/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ionscreen")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "ionscreen"))
		}
	}

	viper.SetEnvPrefix("IONSCREEN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

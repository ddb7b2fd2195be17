package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/ntars/tars/internal/config"
)

func onboardCmd() *cobra.Command {
	var managed bool
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Interactively build a first config.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard(resolveConfigPath(), managed)
		},
	}
	cmd.Flags().BoolVar(&managed, "managed", false, "configure for managed (Postgres-backed) mode instead of standalone")
	return cmd
}

// runOnboard walks the owner through the minimum config needed to start
// TARS: brain/agent provider+model, the owner's message source, and safety
// kill words (spec.md §6's configuration document). If TARS_BRAIN_API_KEY
// is already present in the environment, auto-detection skips the form and
// keeps the defaults instead of prompting for each field.
func runOnboard(cfgPath string, managed bool) error {
	cfg := config.Default()

	if apiKey := os.Getenv("TARS_BRAIN_API_KEY"); apiKey != "" {
		fmt.Println("Detected TARS_BRAIN_API_KEY in the environment; keeping the configured provider/model and skipping the interactive form.")
		cfg.Brain.APIKey = apiKey
		if agentKey := os.Getenv("TARS_AGENT_API_KEY"); agentKey != "" {
			cfg.Agent.APIKey = agentKey
		} else {
			cfg.Agent.APIKey = apiKey
		}
	} else if err := runInteractiveForm(cfg); err != nil {
		return fmt.Errorf("onboarding form: %w", err)
	}

	if managed {
		cfg.Database.Mode = "managed"
		if cfg.Database.PostgresDSN == "" {
			cfg.Database.PostgresDSN = os.Getenv("TARS_POSTGRES_DSN")
		}
		if cfg.Database.PostgresDSN == "" {
			fmt.Println("Warning: --managed was set but TARS_POSTGRES_DSN is empty; set it before running `tarsd migrate up`.")
		}
	}

	if err := saveConfig(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Config written to %s\n", cfgPath)
	return nil
}

func runInteractiveForm(cfg *config.Config) error {
	var (
		provider   = cfg.Brain.Provider
		brainModel = cfg.Brain.Model
		agentModel = cfg.Agent.Model
		apiKey     string
		owner      = cfg.Messaging.OwnerAddress
		killWords  = strings.Join(cfg.Safety.KillWords, ", ")
		relayURL   = cfg.Relay.URL
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("LLM provider").
				Options(
					huh.NewOption("Anthropic", "anthropic"),
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("OpenRouter", "openrouter"),
				).
				Value(&provider),
			huh.NewInput().Title("Brain model").Value(&brainModel),
			huh.NewInput().Title("Specialist agent model").Value(&agentModel),
			huh.NewInput().Title("API key").EchoMode(huh.EchoModePassword).Value(&apiKey),
		),
		huh.NewGroup(
			huh.NewInput().Title("Owner address (e.g. a phone number or handle.id)").Value(&owner),
			huh.NewInput().Title("Kill words (comma-separated)").Value(&killWords),
			huh.NewInput().Title("Relay URL (leave blank to disable the tunnel)").Value(&relayURL),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Brain.Provider = provider
	cfg.Brain.Model = brainModel
	cfg.Brain.APIKey = apiKey
	cfg.Agent.Provider = provider
	cfg.Agent.Model = agentModel
	cfg.Agent.APIKey = apiKey
	cfg.Messaging.OwnerAddress = owner
	cfg.Relay.URL = relayURL
	if killWords != "" {
		var words []string
		for _, w := range strings.Split(killWords, ",") {
			if w = strings.TrimSpace(w); w != "" {
				words = append(words, w)
			}
		}
		cfg.Safety.KillWords = words
	}
	return nil
}

// saveConfig writes cfg as indented JSON, omitting fields tagged "-" (API
// keys, the relay token, the Postgres DSN) so no secret ever lands on disk.
func saveConfig(path string, cfg *config.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}

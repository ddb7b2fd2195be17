package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/ntars/tars/internal/config"
	"github.com/ntars/tars/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("tarsd doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  LLM providers:")
	checkProvider("Brain", cfg.Brain.Provider, cfg.Brain.Model, cfg.Brain.APIKey)
	checkProvider("Agent", cfg.Agent.Provider, cfg.Agent.Model, cfg.Agent.APIKey)

	fmt.Println()
	fmt.Println("  Database:")
	if cfg.IsManagedMode() {
		fmt.Println("    Mode:        managed")
		fmt.Printf("    DSN:         %s\n", maskDSN(cfg.Database.PostgresDSN))
	} else {
		fmt.Println("    Mode:        file (standalone)")
	}

	fmt.Println()
	fmt.Println("  Messaging:")
	fmt.Printf("    %s %s\n", pad("Owner:", 14), orNotSet(cfg.Messaging.OwnerAddress))
	fmt.Printf("    %s %s\n", pad("Database path:", 14), orNotSet(cfg.Messaging.DatabasePath))
	checkFile("    Database path exists", cfg.Messaging.DatabasePath)

	fmt.Println()
	fmt.Println("  Relay (tunnel):")
	if cfg.Relay.URL != "" {
		fmt.Printf("    %s %s\n", pad("URL:", 14), cfg.Relay.URL)
		fmt.Printf("    %s %s\n", pad("Token:", 14), presence(cfg.Relay.Token))
	} else {
		fmt.Println("    (not configured — tunnel disabled)")
	}

	fmt.Println()
	fmt.Println("  Safety:")
	fmt.Printf("    %s %d configured\n", pad("Kill words:", 14), len(cfg.Safety.KillWords))
	fmt.Printf("    %s %d configured\n", pad("Allowed paths:", 14), len(cfg.Safety.AllowedPaths))

	fmt.Println()
	fmt.Println("  External tools:")
	checkBinary("docker")
	checkBinary("curl")
	checkBinary("git")
	if cfg.Messaging.ScriptBinary != "" {
		checkBinary(cfg.Messaging.ScriptBinary)
	}
	if cfg.Messaging.CLIFallbackBinary != "" {
		checkBinary(cfg.Messaging.CLIFallbackBinary)
	}

	fmt.Println()
	ws := config.ExpandHome(cfg.Engine.WorkingDir)
	fmt.Printf("  Working dir: %s", ws)
	if _, err := os.Stat(ws); err != nil {
		fmt.Println(" (NOT FOUND)")
	} else {
		fmt.Println(" (OK)")
	}

	memDir := config.ExpandHome(cfg.Memory.BaseDir)
	fmt.Printf("  Memory dir:  %s", memDir)
	if _, err := os.Stat(memDir); err != nil {
		fmt.Println(" (will be created on first run)")
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkProvider(label, provider, model, apiKey string) {
	status := presence(apiKey)
	fmt.Printf("    %s %s %s %s\n", pad(label+":", 10), pad(provider, 16), pad(model, 20), status)
}

// pad right-pads s to width display columns, using go-runewidth's CJK/emoji
// aware measurement instead of fmt's byte-count-based %-Ns so model names
// and owner addresses in other scripts still line up in a monospace table.
func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}

func presence(secret string) string {
	if secret == "" {
		return "(no API key configured)"
	}
	if len(secret) <= 8 {
		return "(configured)"
	}
	return "(configured: " + secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:] + ")"
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at == -1 {
		return "(configured)"
	}
	return "***" + dsn[at:]
}

func checkFile(label, path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(config.ExpandHome(path)); err != nil {
		fmt.Printf("    %s NOT FOUND\n", pad(label+":", 24))
	} else {
		fmt.Printf("    %s OK\n", pad(label+":", 24))
	}
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %s NOT FOUND\n", pad(name+":", 12))
	} else {
		fmt.Printf("    %s %s\n", pad(name+":", 12), path)
	}
}

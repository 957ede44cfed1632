package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/feynwatch/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println(styleBold.Render("feynwatch setup"))
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Backend.BaseURL = prompt(scanner, "ADK backend URL", cfg.Backend.BaseURL)
		cfg.Backend.AppName = prompt(scanner, "ADK app name", cfg.Backend.AppName)
		cfg.Backend.EventsURL = prompt(scanner, "Event stream URL (empty disables push)", cfg.Backend.EventsURL)
		cfg.Backend.MCPHealthURL = prompt(scanner, "MCP health URL", cfg.Backend.MCPHealthURL)
		if cfg.Backend.EventsURL == "" {
			cfg.Transport.StreamEnabled = false
		}
		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)
		if answer := prompt(scanner, "Enable local HTTP API (y/n)", yesNo(cfg.HTTP.Enabled)); answer != "" {
			cfg.HTTP.Enabled = strings.HasPrefix(strings.ToLower(answer), "y")
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}

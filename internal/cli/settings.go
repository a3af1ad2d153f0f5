package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgeline-io/forgeline/internal/config"
	"github.com/forgeline-io/forgeline/internal/models"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect global settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active settings",
	RunE:  runSettingsShow,
}

var settingsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default settings file",
	RunE:  runSettingsInit,
}

func init() {
	settingsCmd.AddCommand(settingsInitCmd)
	settingsCmd.AddCommand(settingsShowCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	path, err := config.GlobalSettingsFile()
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", styleLabel.Render("Settings file:"), styleValue.Render(path))
	fmt.Printf("%s %s\n", styleLabel.Render("Default provider:"), styleValue.Render(settings.DefaultProvider))
	if settings.Scheduler.MaxParallelPerLayer == 0 {
		fmt.Printf("%s unlimited\n", styleLabel.Render("Max parallel per layer:"))
	} else {
		fmt.Printf("%s %d\n", styleLabel.Render("Max parallel per layer:"), settings.Scheduler.MaxParallelPerLayer)
	}

	fmt.Println(styleLabel.Render("Providers:"))
	for name, p := range settings.Providers {
		location := p.Path
		if location == "" {
			location = "(lookup in PATH)"
		}
		fmt.Printf("  %s  %s\n", styleValue.Render(name), styleHint.Render(location))
	}
	return nil
}

func runSettingsInit(cmd *cobra.Command, args []string) error {
	path, err := config.GlobalSettingsFile()
	if err != nil {
		return err
	}
	if config.FileExists(path) {
		fmt.Printf("Settings file already exists at %s\n", path)
		return nil
	}

	if err := config.SaveSettings(models.NewSettings()); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	fmt.Println(styleSuccess.Render("Wrote default settings to " + path))
	return nil
}

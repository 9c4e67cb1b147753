package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "prontafon-desktopd",
	Short: "Phone-to-desktop voice and text bridge over Bluetooth Low Energy",
	Long: `prontafon-desktopd runs a BLE GATT peripheral that a paired phone
connects to and streams recognized speech (words, full utterances, or
resolved commands) into. Recognized commands are executed as keystrokes;
everything else is typed into whatever application has focus.`,
}

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ~/.config/prontafon-desktopd/config.yaml)")
}

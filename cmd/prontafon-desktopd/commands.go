package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pelidan/prontafon/internal/dispatch"
	"github.com/pelidan/prontafon/internal/store"
)

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "Manage voice-command phrase bindings",
}

var commandsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in commands and their bound phrases",
	RunE:  runCommandsList,
}

var commandsSetCmd = &cobra.Command{
	Use:   "set <code> <phrase>",
	Short: "Bind a spoken phrase to a built-in command",
	Long: `Binds phrase to one of the built-in command codes: copy, paste, cut,
select_all, enter. Once set, saying the phrase executes the command
instead of being typed as text.

A running "serve" session does not enter phrase-recording mode on a
request from the phone; this command is how phrases are bound.`,
	Args: cobra.ExactArgs(2),
	RunE: runCommandsSet,
}

func init() {
	commandsCmd.AddCommand(commandsListCmd, commandsSetCmd)
	rootCmd.AddCommand(commandsCmd)
}

func openCommandStore() (*store.CommandStore, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return store.NewCommandStore(cfg.Storage.DataDir)
}

var builtinCommands = []dispatch.VoiceCommand{
	dispatch.CommandCopy,
	dispatch.CommandPaste,
	dispatch.CommandCut,
	dispatch.CommandSelectAll,
	dispatch.CommandEnter,
}

func runCommandsList(cmd *cobra.Command, args []string) error {
	commands, err := openCommandStore()
	if err != nil {
		return err
	}
	for _, code := range builtinCommands {
		phrase, ok := commands.GetPhrase(string(code))
		if !ok {
			fmt.Printf("%s\t(unbound)\n", code)
			continue
		}
		fmt.Printf("%s\t%q\n", code, phrase)
	}
	return nil
}

func runCommandsSet(cmd *cobra.Command, args []string) error {
	code, phrase := args[0], args[1]
	if _, ok := dispatch.ParseVoiceCommand(code); !ok {
		return fmt.Errorf("commands: unknown command code %q", code)
	}
	commands, err := openCommandStore()
	if err != nil {
		return err
	}
	if err := commands.SetPhrase(code, phrase); err != nil {
		return fmt.Errorf("commands: %w", err)
	}
	fmt.Printf("bound %q to %s\n", phrase, code)
	return nil
}

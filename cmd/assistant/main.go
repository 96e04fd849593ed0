package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/settings"
	"github.com/ZanzyTHEbar/simple-ai-assistant/pkg/common"
)

const version = "0.1.0"

const configTemplate = `# ~/.config/simple-ai-assistant/assistant.toml
api-provider = "openai" # openai|gemini|claude
openai-api-key = ""
openai-model = ""       # empty selects gpt-4o-mini
gemini-api-key = ""
gemini-model = ""       # empty selects gemini-2.5-flash
claude-api-key = ""
claude-model = ""       # empty selects claude-sonnet-4-20250514
history-limit = 20
send-device-info = false
command-timeout = 60
log-level = "info"
`

// errReported marks errors that were already shown to the user.
var errReported = errors.New("reported")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "assistant",
		Short:         "Chat with an LLM that can propose shell commands and run them on confirmation",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			viper.SetEnvPrefix(settings.EnvPrefix)
			viper.AutomaticEnv()
			if dir := viper.GetString("config_dir"); dir != "" {
				common.SetExplicitDir(dir)
			}
		},
	}
	rootCmd.PersistentFlags().String("config-dir", "", "read assistant.toml and .env from this directory only")
	_ = viper.BindPFlag("config_dir", rootCmd.PersistentFlags().Lookup("config-dir"))

	rootCmd.AddCommand(
		newChatCmd(),
		newAskCmd(),
		newHistoryCmd(),
		&cobra.Command{
			Use:   "device-info",
			Short: "Print the device info shared with the assistant",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp()
				if err != nil {
					return err
				}
				defer a.Close()
				fmt.Fprint(cmd.OutOrStdout(), a.device.Collect(cmd.Context()))
				return nil
			},
		},
		newPrintConfigCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)

	return rootCmd
}

func newPrintConfigCmd() *cobra.Command {
	var effective bool
	cmd := &cobra.Command{
		Use:   "print-config",
		Short: "Print a sample assistant.toml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if effective {
				a, err := newApp()
				if err != nil {
					return err
				}
				defer a.Close()

				out, err := toml.Marshal(a.settings.Snapshot().Redacted())
				if err != nil {
					return err
				}
				if path := a.settings.ConfigFile(); path != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", path)
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}

			header := viper.GetString("CONFIG_HEADER")
			if header != "" {
				fmt.Fprintln(cmd.OutOrStdout(), header)
			}
			fmt.Fprint(cmd.OutOrStdout(), configTemplate)
			return nil
		},
	}
	cmd.Flags().BoolVar(&effective, "effective", false, "print the merged settings with API keys masked")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear the saved conversation",
	}

	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the saved conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			t := a.store.Load()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(t)
			}
			view := newTermView(cmd.OutOrStdout())
			for _, msg := range t.ChatMessages() {
				view.Message(msg)
			}
			return nil
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "print the raw transcript")

	historyCmd.AddCommand(
		showCmd,
		&cobra.Command{
			Use:   "clear",
			Short: "Delete the saved conversation",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp()
				if err != nil {
					return err
				}
				defer a.Close()
				a.store.Clear()
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print where the conversation is saved",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp()
				if err != nil {
					return err
				}
				defer a.Close()
				fmt.Fprintln(cmd.OutOrStdout(), a.store.Path())
				return nil
			},
		},
	)

	return historyCmd
}

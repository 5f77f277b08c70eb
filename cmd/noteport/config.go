package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noteport/noteport/internal/config"
	"github.com/noteport/noteport/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a setting to the project config file",
	Long: `Write <key> to .noteport/config.yaml in the working directory,
creating it if needed. The file is readable by its owner only since it may
hold the ETAPI token.

Example:
  noteport config set server.url http://localhost:8080
  noteport config set import.exclude "*.tmp"`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fatalf("%v", err)
		}
		path, err := config.SetProjectValue(cwd, args[0], args[1])
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s %s = %s %s\n", ui.RenderPass("✓"), args[0], args[1], ui.RenderMuted("("+path+")"))
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a setting and where it came from",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]
		if !config.IsKnownKey(key) {
			fatalf("unknown config key %q", key)
		}
		value := config.Get(key)
		if jsonOutput {
			printJSON(map[string]any{"key": key, "value": value, "source": config.GetValueSource(key)})
			return
		}
		fmt.Printf("%v %s\n", value, ui.RenderMuted("("+string(config.GetValueSource(key))+")"))
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every setting",
	Run: func(cmd *cobra.Command, args []string) {
		keys := config.Keys()
		if jsonOutput {
			out := make(map[string]any, len(keys))
			for _, k := range keys {
				out[k] = masked(k)
			}
			printJSON(out)
			return
		}
		if f := config.ConfigFileUsed(); f != "" {
			fmt.Printf("%s %s\n\n", ui.RenderAccent("Config file"), f)
		}
		for _, k := range keys {
			fmt.Printf("%-28s %v %s\n", k, masked(k), ui.RenderMuted(string(config.GetValueSource(k))))
		}
	},
}

// masked hides the token in listings.
func masked(key string) any {
	v := config.Get(key)
	if key == "server.token" && v != "" {
		return "********"
	}
	return v
}

func init() {
	configCmd.AddCommand(configSetCmd, configGetCmd, configListCmd)
	rootCmd.AddCommand(configCmd)
}

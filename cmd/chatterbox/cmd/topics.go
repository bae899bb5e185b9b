package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/nfrund/chatterbox/internal/topicmgr"
	"github.com/spf13/cobra"

	// Topic definitions register themselves when their packages load.
	_ "github.com/nfrund/chatterbox/internal/presence"
	_ "github.com/nfrund/chatterbox/internal/websocket"
)

var (
	topicsFormat string
	topicsModule string
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Explore event-bus topics",
	Long: `The topics command lists the topics published on the internal event bus.

Examples:
  # List all topics
  chatterbox topics list

  # List the presence topics as JSON
  chatterbox topics list --module presence --format json

  # Show one topic
  chatterbox topics get presence.user.changed`,
}

var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered topics",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := topicmgr.Default()
		list := manager.List()
		if topicsModule != "" {
			list = manager.ListByModule(topicsModule)
		}
		if len(list) == 0 {
			fmt.Println("No topics found")
			return nil
		}

		switch topicsFormat {
		case "json":
			return writeJSON(list)
		case "table":
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "NAME\tMODULE\tPAYLOAD\tDESCRIPTION")
			fmt.Fprintln(w, "----\t------\t-------\t-----------")
			for _, t := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Name, t.Module, t.PayloadType, t.Description)
			}
			return nil
		default:
			return fmt.Errorf("unsupported output format %q, use table or json", topicsFormat)
		}
	},
}

var topicsGetCmd = &cobra.Command{
	Use:   "get <topic-name>",
	Short: "Show one topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, ok := topicmgr.Default().Get(args[0])
		if !ok {
			return fmt.Errorf("topic %q not found, see 'chatterbox topics list'", args[0])
		}
		if topicsFormat == "json" {
			return writeJSON(t)
		}
		fmt.Printf("Name:        %s\n", t.Name)
		fmt.Printf("Module:      %s\n", t.Module)
		fmt.Printf("Description: %s\n", t.Description)
		fmt.Printf("Payload:     %s {%s}\n", t.PayloadType, strings.Join(t.PayloadFields, ", "))
		return nil
	},
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(topicsCmd)
	topicsCmd.AddCommand(topicsListCmd, topicsGetCmd)

	topicsCmd.PersistentFlags().StringVarP(&topicsFormat, "format", "f", "table", "Output format (table, json)")
	topicsListCmd.Flags().StringVarP(&topicsModule, "module", "m", "", "Filter topics by module name")
}

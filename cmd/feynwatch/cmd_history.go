package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/user/feynwatch/internal/reconcile"
	"github.com/user/feynwatch/internal/state"
	"github.com/user/feynwatch/internal/types"
)

var (
	historyLimit  int
	historyFormat string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyExportCmd)
	historyShowCmd.Flags().IntVar(&historyLimit, "limit", 0, "show only the last N events")
	historyExportCmd.Flags().StringVar(&historyFormat, "format", "json", "export format: json or yaml")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect journaled workflows",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journaled workflows, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		journal := state.OpenJournal(cfg.DataDir)

		ctx := context.Background()
		list, err := journal.Sessions.List(ctx)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No workflows recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tSTATUS\tTRANSPORT\tEVENTS\tFINISHED\tPROMPT")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				s.SessionID,
				s.Status,
				s.Transport,
				s.EventCount,
				s.UpdatedAt.Format("2006-01-02 15:04:05"),
				truncate(s.Prompt, 48),
			)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the reconciled events of a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		rec, events, err := loadHistory(state.OpenJournal(cfg.DataDir), args[0], historyLimit)
		if err != nil {
			return err
		}

		fmt.Println(styleBold.Render(rec.Prompt))
		line := fmt.Sprintf("%s · %s · %s", rec.SessionID, rec.Status, rec.UpdatedAt.Format("2006-01-02 15:04:05"))
		fmt.Println(styleGray.Render(line))
		if rec.Error != "" {
			fmt.Println(styleError.Render(rec.Error))
		}
		fmt.Println()
		renderView(os.Stdout, reconcile.Reconcile(events))
		return nil
	},
}

type historyExport struct {
	Session *types.SessionRecord   `json:"session"`
	Events  []types.ProcessedEvent `json:"events"`
}

var historyExportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a workflow record and its events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		rec, events, err := loadHistory(state.OpenJournal(cfg.DataDir), args[0], 0)
		if err != nil {
			return err
		}
		return writeExport(os.Stdout, historyExport{Session: rec, Events: events}, historyFormat)
	},
}

func loadHistory(journal *state.Journal, sessionID string, limit int) (*types.SessionRecord, []types.ProcessedEvent, error) {
	ctx := context.Background()
	rec, err := journal.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load session: %w", err)
	}
	events, err := journal.Events.Tail(ctx, sessionID, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("load events: %w", err)
	}
	return rec, events, nil
}

// writeExport encodes v as JSON or YAML. YAML goes through the JSON form so
// both formats share the same field names.
func writeExport(w io.Writer, v any, format string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	switch format {
	case "json":
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("convert export: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

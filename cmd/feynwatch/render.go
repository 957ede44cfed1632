package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/user/feynwatch/internal/reconcile"
	"github.com/user/feynwatch/internal/types"
)

var (
	styleGray     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleGreen    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleYellow   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleBold     = lipgloss.NewStyle().Bold(true)
	styleBoldCyan = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	styleError    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleAnswer   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("10")).
			Padding(0, 1)
)

const maxDataWidth = 160

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}

func statusMark(s types.EventStatus) string {
	switch s {
	case types.StatusError:
		return styleError.Render("✗")
	case types.StatusPending:
		return styleYellow.Render("…")
	default:
		return styleGreen.Render("✓")
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// renderEvent formats one event as a single timeline line.
func renderEvent(ev types.ProcessedEvent) string {
	ts := time.UnixMilli(ev.Timestamp).Format("15:04:05")
	line := fmt.Sprintf("%s %s %s %s",
		styleGray.Render(ts),
		statusMark(ev.Status),
		styleBold.Render(ev.Title),
		styleGray.Render(ev.Author),
	)
	if d := ev.Duration(); d > 0 {
		line += " " + styleGray.Render("("+formatMillis(d)+")")
	}
	if ev.Data != "" {
		line += "\n    " + truncate(ev.Data, maxDataWidth)
	}
	if ev.Details != "" {
		line += "\n    " + styleError.Render(truncate(ev.Details, maxDataWidth))
	}
	return line
}

// renderView writes the stage groups and the tool table of a view.
func renderView(w io.Writer, view reconcile.View) {
	for _, g := range view.Groups {
		header := fmt.Sprintf("%s  %d events", g.Stage, len(g.Events))
		if g.Stats.Count > 0 {
			header += fmt.Sprintf("  avg %s  p95 %s", formatMillis(g.Stats.Avg), formatMillis(g.Stats.P95))
		}
		fmt.Fprintln(w, styleBoldCyan.Render(header))
		for _, ev := range g.Events {
			fmt.Fprintln(w, "  "+strings.ReplaceAll(renderEvent(ev), "\n", "\n  "))
		}
	}

	if len(view.Tools) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, styleBoldCyan.Render("Tools"))
		for _, m := range view.Tools {
			fmt.Fprintf(w, "  %-28s %-12s calls %-3d avg %-7s p95 %-7s ok %3.0f%%\n",
				m.Name, m.Category, m.Calls,
				formatMillis(m.AvgDuration), formatMillis(m.P95Duration), m.SuccessRate*100)
		}
	}
	if view.Duplicates > 0 {
		fmt.Fprintln(w, styleGray.Render(fmt.Sprintf("%d duplicate events collapsed", view.Duplicates)))
	}
}

func renderAnswer(msg *types.ADKMessage) string {
	return styleAnswer.Render(msg.Content)
}

func renderStatus(w io.Writer, st types.ConnectionStatus) {
	if st.IsConnected {
		fmt.Fprintln(w, styleGreen.Render("● backend connected"))
	} else {
		fmt.Fprintln(w, styleError.Render("● "+st.Error))
	}
	if st.Stream != "" {
		fmt.Fprintf(w, "  stream:  %s\n", st.Stream)
	}
	if info := st.ServerInfo; info != nil {
		fmt.Fprintf(w, "  edition: %s\n", info.Edition)
		fmt.Fprintf(w, "  uptime:  %s\n", time.Duration(info.Uptime*float64(time.Second)).Round(time.Second).String())
		fmt.Fprintf(w, "  tools:   %d\n", info.ToolsCount)
		fmt.Fprintf(w, "  cors:    %s\n", info.CORSStatus)
	}
	if st.LastChecked > 0 {
		fmt.Fprintf(w, "  checked: %s\n", time.UnixMilli(st.LastChecked).Format(time.RFC3339))
	}
}

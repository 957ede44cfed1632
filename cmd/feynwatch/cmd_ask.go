package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/feynwatch/internal/reconcile"
	"github.com/user/feynwatch/internal/tokens"
	"github.com/user/feynwatch/internal/types"
	"github.com/user/feynwatch/internal/workflow"
)

var (
	askNoStream bool
	askFormat   string
	askTimeout  time.Duration
	askQuiet    bool
)

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "poll the session only, never open the event stream")
	askCmd.Flags().StringVar(&askFormat, "format", "text", "output format: text or json")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 15*time.Minute, "give up waiting after this long")
	askCmd.Flags().BoolVarP(&askQuiet, "quiet", "q", false, "print only the final answer")
}

var askCmd = &cobra.Command{
	Use:   "ask <prompt...>",
	Short: "Submit a prompt and follow the workflow until it finishes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

type askOutput struct {
	SessionID string            `json:"sessionId"`
	Message   *types.ADKMessage `json:"message,omitempty"`
	Error     string            `json:"error,omitempty"`
	Tokens    int               `json:"tokens"`
	View      reconcile.View    `json:"view"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	if askFormat != "text" && askFormat != "json" {
		return fmt.Errorf("unsupported format %q", askFormat)
	}
	cfg := loadConfig()
	setupLogging(cfg)

	eng := buildEngine(cfg, !askNoStream)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	live := askFormat == "text" && !askQuiet
	printer := &livePrinter{}
	var opts []workflow.RunOption
	if live {
		opts = append(opts, workflow.WithOnUpdate(printer.update))
	}

	run, err := eng.controller.Submit(context.Background(), strings.Join(args, " "), opts...)
	if err != nil {
		return errors.New(workflow.UserMessage(err))
	}

	waitCtx, cancel := context.WithTimeout(ctx, askTimeout)
	defer cancel()
	msg, err := run.Wait(waitCtx)
	if waitCtx.Err() != nil {
		eng.controller.Stop()
		msg, err = run.Wait(context.Background())
	}

	view := eng.controller.View()
	counter := tokens.NewCounter("")
	out := askOutput{SessionID: run.SessionID, View: view}
	if msg != nil {
		out.Message = msg
		out.Tokens = counter.Count(msg.Content)
	}
	if err != nil {
		out.Error = workflow.UserMessage(err)
	}

	if askFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(out); encErr != nil {
			return encErr
		}
		if err != nil {
			return errors.New(out.Error)
		}
		return nil
	}

	if !askQuiet {
		fmt.Println()
		renderView(os.Stdout, view)
		fmt.Println()
	}
	if err != nil {
		return errors.New(out.Error)
	}
	fmt.Println(renderAnswer(msg))
	if !askQuiet {
		fmt.Println(styleGray.Render(fmt.Sprintf("session %s · %d tokens", run.SessionID, out.Tokens)))
	}
	return nil
}

// livePrinter prints events as they are reconciled. Views are recomputed
// from scratch, so it tracks what it has printed by identity.
type livePrinter struct {
	mu      sync.Mutex
	printed map[string]bool
}

func (p *livePrinter) update(view reconcile.View) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed == nil {
		p.printed = make(map[string]bool)
	}
	for _, ev := range view.Events {
		key := fmt.Sprintf("%s|%s|%d|%s", reconcile.IdentityKey(ev, -1), ev.Title, ev.Timestamp, ev.Status)
		if p.printed[key] {
			continue
		}
		p.printed[key] = true
		fmt.Println(renderEvent(ev))
	}
}

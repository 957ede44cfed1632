package main

import (
	"github.com/user/feynwatch/internal/config"
	"github.com/user/feynwatch/internal/health"
	"github.com/user/feynwatch/internal/state"
	"github.com/user/feynwatch/internal/transport"
	"github.com/user/feynwatch/internal/workflow"
	"github.com/user/feynwatch/pkg/adk"
)

// engine bundles the collaborators every workflow-driving command needs.
type engine struct {
	client     *adk.Client
	monitor    *health.Monitor
	journal    *state.Journal
	controller *workflow.Controller
}

func newClient(cfg *config.Config) *adk.Client {
	return adk.New(&adk.Config{
		BaseURL:      cfg.Backend.BaseURL,
		AppName:      cfg.Backend.AppName,
		UserID:       cfg.Backend.UserID,
		EventsURL:    cfg.Backend.EventsURL,
		MCPHealthURL: cfg.Backend.MCPHealthURL,
	})
}

func newMonitor(cfg *config.Config, client *adk.Client) *health.Monitor {
	return health.New(client, config.Millis(cfg.Health.TimeoutMS))
}

func workflowOptions(cfg *config.Config, streamEnabled bool) workflow.Options {
	t := cfg.Transport
	opts := workflow.DefaultOptions()
	opts.Poller = transport.PollerOptions{
		Interval:    config.Millis(t.PollIntervalMS),
		StartDelay:  config.Millis(t.PollStartDelayMS),
		MaxInterval: config.Millis(t.PollMaxIntervalMS),
		Backoff:     t.PollBackoff,
	}
	opts.Stream = transport.StreamOptions{
		ReconnectDelay: config.Millis(t.StreamReconnectDelayMS),
		MaxReconnects:  t.StreamMaxReconnects,
	}
	opts.IdleWindow = config.Millis(cfg.Completion.IdleWindowMS)
	opts.IdleMinEvents = cfg.Completion.IdleMinEvents
	opts.Flags = workflow.NewFlags(streamEnabled && t.StreamEnabled)
	return opts
}

// buildEngine wires client, health monitor, journal and controller from cfg.
func buildEngine(cfg *config.Config, streamEnabled bool) *engine {
	client := newClient(cfg)
	monitor := newMonitor(cfg, client)
	journal := state.OpenJournal(cfg.DataDir)

	opts := workflowOptions(cfg, streamEnabled)
	opts.Health = monitor
	opts.Journal = journal
	if !opts.Flags.StreamEnabled() {
		monitor.SetStreamStatus(health.StreamDisabled, nil)
	}

	return &engine{
		client:     client,
		monitor:    monitor,
		journal:    journal,
		controller: workflow.New(client, opts),
	}
}

package poller

import (
	"context"
	"log/slog"

	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/dispatch"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/game"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/source"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/storage"
)

// Fetcher retrieves the current code lists from the source
type Fetcher interface {
	FetchAll(ctx context.Context) map[game.ID]source.Result
}

// Differ classifies fetch results against the ledger
type Differ interface {
	Run(results map[game.ID]source.Result) map[game.ID][]source.Candidate
}

// Registry loads tenant state, once per cycle
type Registry interface {
	GetAllGuildConfigs() ([]*storage.GuildConfig, error)
	GetAllGuildSettings() (map[string]*storage.GuildSettings, error)
}

// Dispatcher fans new codes out to guilds
type Dispatcher interface {
	Dispatch(ctx context.Context, targets []dispatch.Target, newByGame map[game.ID][]source.Candidate) []dispatch.Failure
}

// Resilience handles dispatch failures
type Resilience interface {
	Handle(failures []dispatch.Failure, configs map[string]*storage.GuildConfig)
}

// Cycle is one complete fetch → diff → dispatch → resilience pass
type Cycle struct {
	fetcher    Fetcher
	differ     Differ
	registry   Registry
	dispatcher Dispatcher
	resilience Resilience
}

// NewCycle wires the four phases together
func NewCycle(fetcher Fetcher, differ Differ, registry Registry, dispatcher Dispatcher, resilience Resilience) *Cycle {
	return &Cycle{
		fetcher:    fetcher,
		differ:     differ,
		registry:   registry,
		dispatcher: dispatcher,
		resilience: resilience,
	}
}

// Run executes one cycle. It never panics or returns an error: every
// phase failure is logged and contained so the next trigger always
// gets scheduled.
func (c *Cycle) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Cycle panicked", "panic", r)
		}
	}()

	slog.Debug("Starting code check cycle")

	results := c.fetcher.FetchAll(ctx)
	newByGame := c.differ.Run(results)
	if len(newByGame) == 0 {
		slog.Debug("No new codes this cycle")
		return
	}

	configs, err := c.registry.GetAllGuildConfigs()
	if err != nil {
		slog.Error("Failed to load guild configs", "error", err)
		return
	}
	settings, err := c.registry.GetAllGuildSettings()
	if err != nil {
		slog.Error("Failed to load guild settings", "error", err)
		return
	}

	targets := make([]dispatch.Target, 0, len(configs))
	configsByID := make(map[string]*storage.GuildConfig, len(configs))
	for _, cfg := range configs {
		configsByID[cfg.GuildID] = cfg
		targets = append(targets, dispatch.Target{
			Config:   cfg,
			Settings: settings[cfg.GuildID],
		})
	}

	failures := c.dispatcher.Dispatch(ctx, targets, newByGame)
	if len(failures) > 0 {
		c.resilience.Handle(failures, configsByID)
	}

	slog.Info("Code check cycle complete", "newGames", len(newByGame), "guilds", len(targets), "failures", len(failures))
}

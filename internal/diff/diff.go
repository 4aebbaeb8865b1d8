package diff

import (
	"log/slog"

	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/game"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/source"
	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/storage"
)

// Ledger is the persisted set of every code ever observed
type Ledger interface {
	GetAllCodes() ([]*storage.Code, error)
	InsertCodes(codes []*storage.Code) error
	SetCodesExpired(g game.ID, codes []string, expired bool) error
}

// Engine classifies fetched candidates against the ledger and persists
// the resulting transitions. It never touches tenant state.
type Engine struct {
	ledger Ledger
}

// NewEngine creates a diff engine over the given ledger
func NewEngine(ledger Ledger) *Engine {
	return &Engine{ledger: ledger}
}

// gameDiff is the classified outcome for a single game
type gameDiff struct {
	newCodes    []source.Candidate
	expired     []string
	reactivated []string
}

// classify compares one game's fetch result against the ledger records
// for that game. When the fetch failed, expiry and reactivation are
// suppressed entirely: a source outage must never read as mass expiry.
func classify(known []*storage.Code, res source.Result) gameDiff {
	var d gameDiff
	if res.Failed() {
		return d
	}

	knownByCode := make(map[string]*storage.Code, len(known))
	for _, c := range known {
		knownByCode[c.Code] = c
	}

	active := make(map[string]bool, len(res.Codes))
	for _, cand := range res.Codes {
		if !cand.Active() || active[cand.Code] {
			continue
		}
		active[cand.Code] = true
		if _, exists := knownByCode[cand.Code]; !exists {
			d.newCodes = append(d.newCodes, cand)
		}
	}

	for _, c := range known {
		switch {
		case !c.IsExpired && !active[c.Code]:
			d.expired = append(d.expired, c.Code)
		case c.IsExpired && active[c.Code]:
			d.reactivated = append(d.reactivated, c.Code)
		}
	}

	return d
}

// Run diffs every game's fetch result against a single ledger snapshot
// and applies the transitions as per-game batch writes. Only new codes
// are returned for dispatch; expiry and reactivation are persisted
// silently. A write failure for one game never blocks the others.
func (e *Engine) Run(results map[game.ID]source.Result) map[game.ID][]source.Candidate {
	snapshot, err := e.ledger.GetAllCodes()
	if err != nil {
		slog.Error("Failed to load code ledger", "error", err)
		return nil
	}

	byGame := make(map[game.ID][]*storage.Code)
	for _, c := range snapshot {
		byGame[c.Game] = append(byGame[c.Game], c)
	}

	newByGame := make(map[game.ID][]source.Candidate)
	for g, res := range results {
		if res.Failed() {
			slog.Warn("Source fetch failed, skipping expiry check", "game", g, "error", res.Err)
			continue
		}

		d := classify(byGame[g], res)

		if len(d.newCodes) > 0 {
			records := make([]*storage.Code, len(d.newCodes))
			for i, cand := range d.newCodes {
				records[i] = &storage.Code{
					Game:   g,
					Code:   cand.Code,
					Reward: cand.Rewards,
				}
			}
			// Dispatch proceeds even when the batch write fails; dedup
			// by ledger identity makes a re-notify next cycle harmless
			if err := e.ledger.InsertCodes(records); err != nil {
				slog.Error("Failed to persist new codes", "game", g, "count", len(records), "error", err)
			}
			newByGame[g] = d.newCodes
		}

		if len(d.expired) > 0 {
			if err := e.ledger.SetCodesExpired(g, d.expired, true); err != nil {
				slog.Error("Failed to mark codes expired", "game", g, "count", len(d.expired), "error", err)
			} else {
				slog.Info("Codes expired", "game", g, "count", len(d.expired))
			}
		}

		if len(d.reactivated) > 0 {
			if err := e.ledger.SetCodesExpired(g, d.reactivated, false); err != nil {
				slog.Error("Failed to reactivate codes", "game", g, "count", len(d.reactivated), "error", err)
			} else {
				slog.Info("Codes reactivated", "game", g, "count", len(d.reactivated))
			}
		}
	}

	return newByGame
}

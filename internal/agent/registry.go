// ABOUTME: Registry maps bot names to the responders that answer them
// ABOUTME: Workers look up the responder for each invocation they claim

package agent

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ErrResponderExists indicates a responder is already registered for the bot.
var ErrResponderExists = errors.New("responder already registered")

// ErrNoResponder indicates no responder is registered for the bot and there is no fallback.
var ErrNoResponder = errors.New("no responder for bot")

// Registry tracks which responder answers which bot.
type Registry struct {
	responders map[string]Responder
	fallback   Responder
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		responders: make(map[string]Responder),
		logger:     logger.With("component", "responders"),
	}
}

// Register binds bot to r. Bot names are matched case-insensitively.
// Returns ErrResponderExists if bot already has a responder.
func (reg *Registry) Register(bot string, r Responder) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	key := strings.ToLower(bot)
	if _, exists := reg.responders[key]; exists {
		return ErrResponderExists
	}
	reg.responders[key] = r
	reg.logger.Info("responder registered", "bot", bot, "total_bots", len(reg.responders))
	return nil
}

// Unregister removes the responder for bot.
func (reg *Registry) Unregister(bot string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	key := strings.ToLower(bot)
	if _, exists := reg.responders[key]; exists {
		delete(reg.responders, key)
		reg.logger.Info("responder unregistered", "bot", bot, "total_bots", len(reg.responders))
	}
}

// SetFallback sets the responder used for bots without their own. nil removes it.
func (reg *Registry) SetFallback(r Responder) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.fallback = r
}

// Lookup returns the responder for bot, or the fallback.
func (reg *Registry) Lookup(bot string) (Responder, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	if r, ok := reg.responders[strings.ToLower(bot)]; ok {
		return r, nil
	}
	if reg.fallback != nil {
		return reg.fallback, nil
	}
	return nil, ErrNoResponder
}

// Bots returns the bots with a registered responder, sorted.
func (reg *Registry) Bots() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]string, 0, len(reg.responders))
	for bot := range reg.responders {
		out = append(out, bot)
	}
	sort.Strings(out)
	return out
}

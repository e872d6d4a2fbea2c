// internal/games/registry.go
package games

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Flags are the externally managed availability switches for a game type.
type Flags struct {
	Enabled    bool
	ComingSoon bool
}

// MetadataSource fetches game-type flags from an external system (Postgres
// in production). A failing source degrades to the built-in defaults.
type MetadataSource interface {
	FetchGameFlags(ctx context.Context) (map[string]Flags, error)
}

// DefaultFlagsTTL is how long fetched flags stay fresh before the next
// listing triggers a re-fetch.
const DefaultFlagsTTL = 60 * time.Second

// Registry maps game-type identifiers to their rule engines and metadata.
// Modules are registered once at startup; the flags cache is the only
// mutable state and is refreshed wholesale, never partially.
type Registry struct {
	logger *logrus.Logger
	source MetadataSource
	ttl    time.Duration

	mu      sync.Mutex
	modules map[string]Module
	order   []string // registration order, used for stable listings

	cachedFlags map[string]Flags
	fetchedAt   time.Time
}

// NewRegistry builds an empty registry. source may be nil, in which case the
// built-in flags of each module's metadata are authoritative.
func NewRegistry(logger *logrus.Logger, source MetadataSource) *Registry {
	return &Registry{
		logger:  logger,
		source:  source,
		ttl:     DefaultFlagsTTL,
		modules: make(map[string]Module),
	}
}

// Register adds a module under its metadata type. Later registrations for
// the same type are ignored.
func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	typ := m.Meta().Type
	if _, exists := r.modules[typ]; exists {
		r.logger.WithField("game_type", typ).Warn("duplicate module registration ignored")
		return
	}
	r.modules[typ] = m
	r.order = append(r.order, typ)
}

// GetModule returns the module for a game type, or nil if unknown.
func (r *Registry) GetModule(gameType string) Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modules[gameType]
}

// GetSettingsSchema returns the settings schema and defaults for a game
// type, or ok=false when the type is unknown.
func (r *Registry) GetSettingsSchema(gameType string) (schema, defaults map[string]interface{}, ok bool) {
	m := r.GetModule(gameType)
	if m == nil {
		return nil, nil, false
	}
	schema, defaults = m.SettingsSchema()
	return schema, defaults, true
}

// ListGames returns the metadata of every registered module in registration
// order, with enabled/coming-soon flags overlaid from the external source
// when it is reachable.
func (r *Registry) ListGames(ctx context.Context) []Metadata {
	flags := r.currentFlags(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Metadata, 0, len(r.order))
	for _, typ := range r.order {
		meta := r.modules[typ].Meta()
		if f, ok := flags[typ]; ok {
			meta.Enabled = f.Enabled
			meta.ComingSoon = f.ComingSoon
		}
		out = append(out, meta)
	}
	return out
}

// ListEnabled returns only the enabled game types, ordered by type id.
func (r *Registry) ListEnabled(ctx context.Context) []Metadata {
	all := r.ListGames(ctx)
	out := all[:0]
	for _, meta := range all {
		if meta.Enabled {
			out = append(out, meta)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Refresh discards the cached flags so the next listing re-fetches.
func (r *Registry) Refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cachedFlags = nil
	r.fetchedAt = time.Time{}
}

// currentFlags returns cached flags if fresh, otherwise fetches from the
// source. Fetch failures fall back to whatever the modules declare built-in.
func (r *Registry) currentFlags(ctx context.Context) map[string]Flags {
	r.mu.Lock()
	if !r.fetchedAt.IsZero() && time.Since(r.fetchedAt) < r.ttl {
		flags := r.cachedFlags
		r.mu.Unlock()
		return flags
	}
	source := r.source
	r.mu.Unlock()

	if source == nil {
		return nil
	}

	// Fetch outside the lock; a slow source must not block module lookups.
	fetched, err := source.FetchGameFlags(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("game flags fetch failed, using built-in registry")
		fetched = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cachedFlags = fetched
	r.fetchedAt = time.Now()
	return fetched
}

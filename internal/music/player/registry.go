package player

import (
	"sort"
	"sync"
)

// Registry maps guild IDs to players and hands out one lock per guild.
// Mutations for one guild are serialized through Exec; different guilds
// never contend beyond the short map lookups.
type Registry struct {
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	players map[string]*Player
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		locks:   make(map[string]*sync.Mutex),
		players: make(map[string]*Player),
	}
}

func (r *Registry) lockFor(guildID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[guildID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[guildID] = l
	}
	return l
}

// Exec runs fn while holding the guild lock. fn must not call Exec for the
// same guild.
func (r *Registry) Exec(guildID string, fn func() error) error {
	l := r.lockFor(guildID)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// TryGet returns the committed player for a guild.
func (r *Registry) TryGet(guildID string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[guildID]
	return p, ok
}

// GetOrCreate returns the existing player or commits the one built by create.
// When create fails nothing is committed. Callers must hold the guild lock.
func (r *Registry) GetOrCreate(guildID string, create func() (*Player, error)) (*Player, bool, error) {
	if p, ok := r.TryGet(guildID); ok {
		return p, false, nil
	}
	p, err := create()
	if err != nil {
		return nil, false, err
	}
	r.mu.Lock()
	r.players[guildID] = p
	r.mu.Unlock()
	return p, true, nil
}

// Remove drops the guild's player and returns it. Callers must hold the guild lock.
func (r *Registry) Remove(guildID string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[guildID]
	if ok {
		delete(r.players, guildID)
	}
	return p, ok
}

// GuildIDs returns a sorted snapshot of guilds with a player.
func (r *Registry) GuildIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.players))
	for id := range r.players {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of committed players.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

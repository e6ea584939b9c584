package site

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"

	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
)

// EventKind describes a registry mutation.
type EventKind int

const (
	EventAdded EventKind = iota
	EventRemoved
)

// Event is delivered to subscribers after the registry changes.
type Event struct {
	Kind EventKind
	Key  string
}

// Registry is the in-memory table of known wikis. Entries are keyed by host
// (with port); aliases map additional hosts onto an entry. The current key is
// the session selection and always names an existing entry.
type Registry struct {
	mu         sync.RWMutex
	wikis      map[string]Descriptor
	aliases    map[string]string
	defaultKey string
	currentKey string

	subsMu      sync.Mutex
	subscribers []func(Event)
}

// NewRegistry builds a registry. defaultKey must name one of wikis.
func NewRegistry(defaultKey string, wikis map[string]Descriptor) (*Registry, error) {
	if _, ok := wikis[defaultKey]; !ok {
		return nil, fmt.Errorf("default wiki %q not found in configuration", defaultKey)
	}
	r := &Registry{
		wikis:      make(map[string]Descriptor, len(wikis)),
		aliases:    make(map[string]string),
		defaultKey: defaultKey,
		currentKey: defaultKey,
	}
	for k, d := range wikis {
		r.wikis[k] = d.Normalize()
	}
	return r, nil
}

// Subscribe registers fn to be called after every Add or Remove.
func (r *Registry) Subscribe(fn func(Event)) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

func (r *Registry) notify(ev Event) {
	r.subsMu.Lock()
	subs := append([]func(Event){}, r.subscribers...)
	r.subsMu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Lookup resolves a key or alias to the canonical key.
func (r *Registry) Lookup(hostOrKey string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(hostOrKey)
}

func (r *Registry) lookupLocked(hostOrKey string) (string, bool) {
	if _, ok := r.wikis[hostOrKey]; ok {
		return hostOrKey, true
	}
	if key, ok := r.aliases[hostOrKey]; ok {
		return key, true
	}
	return "", false
}

// Get returns a snapshot of the entry for key (or alias).
func (r *Registry) Get(key string) (*Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	canonical, ok := r.lookupLocked(key)
	if !ok {
		return nil, r.notFoundLocked(key)
	}
	return &Site{Key: canonical, Descriptor: r.wikis[canonical]}, nil
}

func (r *Registry) notFoundLocked(key string) error {
	nf := apierrors.NewNotFoundError("wiki", key)
	candidates := make([]string, 0, len(r.wikis))
	for k := range r.wikis {
		candidates = append(candidates, k)
	}
	for _, rank := range fuzzy.RankFindNormalizedFold(key, candidates) {
		nf.Suggestions = append(nf.Suggestions, rank.Target)
	}
	if len(nf.Suggestions) == 0 {
		// Fall back to loose matching in the other direction for typos.
		for _, k := range candidates {
			if fuzzy.MatchNormalizedFold(k, key) {
				nf.Suggestions = append(nf.Suggestions, k)
			}
		}
	}
	sort.Strings(nf.Suggestions)
	return nf
}

// Add registers d under key. An existing entry wins; added reports whether d was stored.
func (r *Registry) Add(key string, d Descriptor) (added bool) {
	r.mu.Lock()
	if _, exists := r.wikis[key]; exists {
		r.mu.Unlock()
		return false
	}
	r.wikis[key] = d.Normalize()
	delete(r.aliases, key)
	r.mu.Unlock()

	r.notify(Event{Kind: EventAdded, Key: key})
	return true
}

// AddAlias maps alias onto an existing key. Aliases never shadow real keys.
func (r *Registry) AddAlias(alias, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.wikis[key]; !ok {
		return apierrors.NewNotFoundError("wiki", key)
	}
	if alias == key {
		return nil
	}
	if _, ok := r.wikis[alias]; ok {
		return nil
	}
	r.aliases[alias] = key
	return nil
}

// Remove deletes key and its aliases. Removing the current wiki is refused.
func (r *Registry) Remove(key string) error {
	r.mu.Lock()
	canonical, ok := r.lookupLocked(key)
	if !ok {
		err := r.notFoundLocked(key)
		r.mu.Unlock()
		return err
	}
	if canonical == r.currentKey {
		r.mu.Unlock()
		return apierrors.NewValidationError("wiki", canonical, "cannot remove the currently active wiki; switch to another wiki first")
	}
	delete(r.wikis, canonical)
	for alias, target := range r.aliases {
		if target == canonical {
			delete(r.aliases, alias)
		}
	}
	r.mu.Unlock()

	r.notify(Event{Kind: EventRemoved, Key: canonical})
	return nil
}

// SetCurrent selects key (or alias) as the session's current wiki.
func (r *Registry) SetCurrent(key string) (*Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	canonical, ok := r.lookupLocked(key)
	if !ok {
		return nil, r.notFoundLocked(key)
	}
	r.currentKey = canonical
	return &Site{Key: canonical, Descriptor: r.wikis[canonical]}, nil
}

// Current returns a snapshot of the session's current wiki.
func (r *Registry) Current() *Site {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Site{Key: r.currentKey, Descriptor: r.wikis[r.currentKey]}
}

// CurrentKey returns the session's current key.
func (r *Registry) CurrentKey() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentKey
}

// DefaultKey returns the key the registry was loaded with.
func (r *Registry) DefaultKey() string {
	return r.defaultKey
}

// SetCredentials replaces the credential of an existing entry.
func (r *Registry) SetCredentials(key string, cred Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	canonical, ok := r.lookupLocked(key)
	if !ok {
		return r.notFoundLocked(key)
	}
	d := r.wikis[canonical]
	d.Credential = cred
	r.wikis[canonical] = d
	return nil
}

// Keys returns all canonical keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.wikis))
	for k := range r.wikis {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sanitized returns the entry for key with credentials stripped.
func (r *Registry) Sanitized(key string) (Descriptor, error) {
	s, err := r.Get(key)
	if err != nil {
		return Descriptor{}, err
	}
	return s.Descriptor.Sanitized(), nil
}

package channels

import "sync"

// OptionSchema describes a single configurable option of a channel.
type OptionSchema struct {
	Label string
	Type  string
}

// Descriptor holds the display metadata for a content channel.
type Descriptor struct {
	Name    string
	Options map[string]OptionSchema
}

// Registry maps channel keys to descriptors. Lookups of unregistered keys
// report an explicit miss; callers are expected to skip those channels.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Descriptor)}
}

// Register binds key to descriptor, replacing any previous binding.
func (r *Registry) Register(key string, descriptor Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[key] = descriptor
}

// Lookup returns the descriptor registered for key.
func (r *Registry) Lookup(key string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	descriptor, ok := r.byKey[key]
	return descriptor, ok
}

// Default returns a registry seeded with the stock content channels.
func Default() *Registry {
	registry := NewRegistry()
	registry.Register("rss", Descriptor{
		Name: "RSS",
		Options: map[string]OptionSchema{
			"url": {Label: "Feed URL", Type: "url"},
		},
	})
	registry.Register("twitter", Descriptor{
		Name: "Twitter",
		Options: map[string]OptionSchema{
			"keyword": {Label: "Keyword", Type: "text"},
			"user":    {Label: "User", Type: "text"},
		},
	})
	registry.Register("facebook", Descriptor{
		Name: "Facebook",
		Options: map[string]OptionSchema{
			"page": {Label: "Page", Type: "text"},
		},
	})
	registry.Register("sms", Descriptor{
		Name: "SMS",
		Options: map[string]OptionSchema{
			"keyword": {Label: "Keyword", Type: "text"},
		},
	})
	return registry
}

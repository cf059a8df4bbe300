package engine

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]*Profile)
	registryMu sync.RWMutex
)

// Register adds an import profile to the registry.
// Panics if a profile with the same key is already registered or if the
// profile's persist map does not cover its tables.
func Register(prof *Profile) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[prof.Key]; exists {
		panic(fmt.Sprintf("profile already registered: %s", prof.Key))
	}

	for _, kind := range prof.Order {
		if prof.Persist[kind] == nil {
			panic(fmt.Sprintf("profile %s: no persist func for %s", prof.Key, kind))
		}
	}

	registry[prof.Key] = prof
}

// Get returns a profile by key.
// Returns false if not found.
func Get(key string) (*Profile, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	prof, ok := registry[key]
	return prof, ok
}

// All returns all registered profiles.
// Sorted by key for consistent ordering.
func All() []*Profile {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]*Profile, 0, len(registry))
	for _, prof := range registry {
		result = append(result, prof)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result
}

// Keys returns the keys of all registered profiles, sorted.
func Keys() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}

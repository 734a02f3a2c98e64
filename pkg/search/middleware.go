package search

import "sync"

// Middleware transforms the search computed for a navigation. next is the
// search about to be written, prev is the search of the current location.
// Middlewares must not modify their inputs.
type Middleware func(next, prev Values) Values

// Chain composes middlewares in declaration order.
func Chain(mws ...Middleware) Middleware {
	return func(next, prev Values) Values {
		out := next
		for _, mw := range mws {
			if mw == nil {
				continue
			}
			out = mw(out, prev)
		}
		return out
	}
}

// Retain carries the listed keys over from the previous search when the
// next search does not set them.
func Retain(keys ...string) Middleware {
	return func(next, prev Values) Values {
		out := next.Clone()
		for _, k := range keys {
			if _, ok := out[k]; ok {
				continue
			}
			if v, ok := prev[k]; ok {
				out[k] = v
			}
		}
		return out
	}
}

// RetainAll carries every key over from the previous search unless the next
// search overrides it.
func RetainAll() Middleware {
	return func(next, prev Values) Values {
		return Merge(prev, next)
	}
}

// Strip removes the listed keys.
func Strip(keys ...string) Middleware {
	return func(next, _ Values) Values {
		out := next.Clone()
		for _, k := range keys {
			delete(out, k)
		}
		return out
	}
}

// StripValues removes keys whose value equals the given default.
func StripValues(defaults Values) Middleware {
	return func(next, _ Values) Values {
		return StripDefaults(next, defaults)
	}
}

// PersistenceStore keeps search values per route across navigations.
type PersistenceStore interface {
	Load(routeKey string) (Values, bool)
	Save(routeKey string, v Values)
}

// MemoryStore is an in-memory PersistenceStore safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Values
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Values)}
}

// Load implements PersistenceStore.
func (s *MemoryStore) Load(routeKey string) (Values, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[routeKey]
	return v.Clone(), ok
}

// Save implements PersistenceStore.
func (s *MemoryStore) Save(routeKey string, v Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[routeKey] = v.Clone()
}

// Clear drops everything saved for routeKey.
func (s *MemoryStore) Clear(routeKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, routeKey)
}

// Persist restores the listed keys (all keys when none are listed) from
// store when the next search is empty of them, then saves the result back.
// A next search that explicitly contains a key always wins.
func Persist(store PersistenceStore, routeKey string, keys ...string) Middleware {
	return func(next, _ Values) Values {
		out := next.Clone()
		if saved, ok := store.Load(routeKey); ok {
			if len(keys) == 0 {
				if len(out) == 0 {
					out = saved
				}
			} else {
				for _, k := range keys {
					if _, set := out[k]; set {
						continue
					}
					if v, ok := saved[k]; ok {
						out[k] = v
					}
				}
			}
		}

		toSave := out
		if len(keys) > 0 {
			toSave = make(Values, len(keys))
			for _, k := range keys {
				if v, ok := out[k]; ok {
					toSave[k] = v
				}
			}
		}
		store.Save(routeKey, toSave)
		return out
	}
}

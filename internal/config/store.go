package config

import "sync"

// Store holds the single live validated configuration behind a reader/writer
// lock. Request handlers read snapshots; the reload trigger swaps in
// candidates. It is the only cross-request mutable shared state in the
// process.
type Store struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewStore wraps an initially loaded configuration and remembers the
// document path it came from.
func NewStore(cfg *Config, path string) *Store {
	return &Store{cfg: cfg, path: path}
}

// Snapshot returns the live configuration. Snapshots are read-only by
// contract: callers must not mutate the returned value. A reload installs a
// fresh *Config, so a handler holding an older snapshot keeps a fully
// consistent view for the rest of its request.
func (s *Store) Snapshot() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Path returns the configuration document path.
func (s *Store) Path() string {
	return s.path
}

// TryReload parses and validates a candidate document and swaps it in on
// success. Parsing and validation run outside the lock; the exclusive
// section covers only the pointer swap, so in-flight snapshot reads are
// never blocked behind validation. On failure the live configuration stays
// untouched and the error describes the rejected candidate.
func (s *Store) TryReload(data []byte, format Format) error {
	cfg, err := Parse(data, format)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

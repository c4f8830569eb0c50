package management

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"clinical-deid/internal/deid"
	"clinical-deid/internal/logger"
)

// KeywordRegistry holds the mutable clinical keyword whitelist. It is
// shared between the masker (as a deid.KeywordSet) and the management
// server. Changes are persisted to disk via atomic file writes so they
// survive restarts.
type KeywordRegistry struct {
	mu          sync.RWMutex
	keywords    map[string]bool
	persistPath string // empty = no persistence
	log         *logger.Logger
}

// NewKeywordRegistry creates a registry seeded from defaults. If
// persistPath is non-empty and the file exists, its contents take
// precedence over defaults (it represents runtime overrides).
func NewKeywordRegistry(defaults []string, persistPath string, log *logger.Logger) *KeywordRegistry {
	if log == nil {
		log = logger.Nop()
	}
	r := &KeywordRegistry{
		keywords:    make(map[string]bool, len(defaults)),
		persistPath: persistPath,
		log:         log,
	}

	if persistPath != "" {
		keywords, err := r.loadFromDisk()
		switch {
		case err == nil:
			for _, k := range keywords {
				if k = normalizeKeyword(k); k != "" {
					r.keywords[k] = true
				}
			}
			log.Infof("keywords_load", "loaded %d keywords from %s", len(r.keywords), persistPath)
			return r
		case !os.IsNotExist(err):
			log.Warnf("keywords_load", "failed to load %s: %v (using config defaults)", persistPath, err)
		}
	}

	for _, k := range defaults {
		if k = normalizeKeyword(k); k != "" {
			r.keywords[k] = true
		}
	}
	return r
}

// Contains implements deid.KeywordSet. term must already be lower-case.
func (r *KeywordRegistry) Contains(term string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keywords[term]
}

// Add adds a keyword and persists the registry. It reports whether the
// keyword was new.
func (r *KeywordRegistry) Add(keyword string) bool {
	keyword = normalizeKeyword(keyword)
	r.mu.Lock()
	if r.keywords[keyword] {
		r.mu.Unlock()
		return false
	}
	r.keywords[keyword] = true
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(snapshot)
	return true
}

// Remove removes a keyword and persists the registry. It reports whether
// the keyword was present.
func (r *KeywordRegistry) Remove(keyword string) bool {
	keyword = normalizeKeyword(keyword)
	r.mu.Lock()
	if !r.keywords[keyword] {
		r.mu.Unlock()
		return false
	}
	delete(r.keywords, keyword)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(snapshot)
	return true
}

// All returns the keywords sorted.
func (r *KeywordRegistry) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *KeywordRegistry) loadFromDisk() ([]string, error) {
	data, err := os.ReadFile(r.persistPath)
	if err != nil {
		return nil, err
	}
	var keywords []string
	if err := json.Unmarshal(data, &keywords); err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.persistPath, err)
	}
	return keywords, nil
}

// snapshotLocked returns a sorted copy. Caller must hold r.mu.
func (r *KeywordRegistry) snapshotLocked() []string {
	out := make([]string, 0, len(r.keywords))
	for k := range r.keywords {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// persist writes the snapshot atomically (temp file, then rename). It does
// not hold r.mu, so masking is never blocked on disk I/O.
func (r *KeywordRegistry) persist(keywords []string) {
	if r.persistPath == "" {
		return
	}

	data, err := json.MarshalIndent(keywords, "", "  ")
	if err != nil {
		r.log.Errorf("keywords_persist", "marshal: %v", err)
		return
	}

	dir := filepath.Dir(r.persistPath)
	tmp, err := os.CreateTemp(dir, ".keywords-*.tmp")
	if err != nil {
		r.log.Errorf("keywords_persist", "create temp: %v", err)
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()        //nolint:errcheck // best-effort cleanup
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp
		r.log.Errorf("keywords_persist", "write: %v", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp
		r.log.Errorf("keywords_persist", "close: %v", err)
		return
	}
	if err := os.Rename(tmpName, r.persistPath); err != nil { // #nosec G703 -- paths from trusted config
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp
		r.log.Errorf("keywords_persist", "rename: %v", err)
	}
}

// keywordRegexp accepts letters and digits with inner spaces, hyphens and
// apostrophes, e.g. "chest pain", "covid-19", "alzheimer's".
var keywordRegexp = regexp.MustCompile(`^[\p{L}\p{N}](?:[\p{L}\p{N}' -]{0,62}[\p{L}\p{N}])?$`)

// normalizeKeyword lower-cases k and collapses inner whitespace.
func normalizeKeyword(k string) string {
	return deid.Lower(strings.Join(strings.Fields(k), " "))
}

func validKeyword(k string) bool {
	return keywordRegexp.MatchString(k)
}

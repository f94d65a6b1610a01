package pattern

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/kestrelfi/patternrunner/capability"
	"github.com/kestrelfi/patternrunner/core"
)

// index is the atomically-swapped snapshot: a successful reload swaps
// indexes atomically; an unsuccessful
// reload leaves the previous snapshot intact."
type index struct {
	byID    map[string]*Pattern
	tagToID map[string][]string // inverted index: tag/category/intent token -> pattern ids
}

// Loader owns the process-wide Pattern index. Reads through an atomically-swapped pointer so
// concurrent requests never observe a half-loaded index.
type Loader struct {
	dir        string
	registry   *capability.Registry
	logger     core.Logger
	current    atomic.Pointer[index]
}

// NewLoader creates a Loader rooted at dir, validating every pattern
// against registry.
func NewLoader(dir string, registry *capability.Registry, logger core.Logger) *Loader {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	l := &Loader{dir: dir, registry: registry, logger: logger}
	l.current.Store(&index{byID: map[string]*Pattern{}, tagToID: map[string][]string{}})
	return l
}

// Load enumerates dir, parses every .json/.yaml/.yml file, validates it,
// and swaps in a new index atomically on success.
func (l *Loader) Load() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("pattern.Load: reading %s: %w", l.dir, err)
	}

	byID := make(map[string]*Pattern)
	tagToID := make(map[string][]string)

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	for _, name := range files {
		p, err := l.parseFile(filepath.Join(l.dir, name))
		if err != nil {
			return fmt.Errorf("pattern.Load: %s: %w", name, err)
		}
		if err := Validate(p, l.registry); err != nil {
			return err
		}
		if _, dup := byID[p.ID]; dup {
			return core.NewEngineError(core.KindInvalidInput, "pattern.Load",
				fmt.Sprintf("duplicate pattern id %q (file %s)", p.ID, name), core.ErrInvalidInput).WithPattern(p.ID)
		}
		byID[p.ID] = p

		for _, tok := range indexTokens(p) {
			tagToID[tok] = append(tagToID[tok], p.ID)
		}
	}

	l.current.Store(&index{byID: byID, tagToID: tagToID})
	l.logger.Info("patterns loaded", map[string]interface{}{"count": len(byID), "dir": l.dir})
	return nil
}

func (l *Loader) parseFile(path string) (*Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Pattern
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parsing json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	}

	h := sha256.Sum256(data)
	p.ContentHash = hex.EncodeToString(h[:])
	return &p, nil
}

func indexTokens(p *Pattern) []string {
	tokens := map[string]bool{}
	if p.Category != "" {
		tokens[strings.ToLower(p.Category)] = true
	}
	for _, t := range p.Tags {
		tokens[strings.ToLower(t)] = true
	}
	for _, w := range strings.Fields(strings.ToLower(p.Description)) {
		tokens[strings.Trim(w, ".,;:!?")] = true
	}
	out := make([]string, 0, len(tokens))
	for t := range tokens {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Get returns the pattern with the given id.
func (l *Loader) Get(id string) (*Pattern, error) {
	idx := l.current.Load()
	p, ok := idx.byID[id]
	if !ok {
		return nil, core.NewEngineError(core.KindUnknownPattern, "pattern.Get",
			fmt.Sprintf("pattern %q not loaded", id), core.ErrUnknownPattern)
	}
	return p, nil
}

// List returns every loaded pattern, sorted by id, for the discovery
// endpoint.
func (l *Loader) List() []*Pattern {
	idx := l.current.Load()
	out := make([]*Pattern, 0, len(idx.byID))
	for _, p := range idx.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MatchTokens returns candidate pattern ids whose tag/category/description
// token index intersects tokens, used by the keyword router.
func (l *Loader) MatchTokens(tokens []string) map[string]int {
	idx := l.current.Load()
	scores := make(map[string]int)
	for _, tok := range tokens {
		for _, id := range idx.tagToID[tok] {
			scores[id]++
		}
	}
	return scores
}

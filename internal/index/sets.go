package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// setsFileName is the registry file persisted at the store root, alongside
// each repository's own per-repo directory.
const setsFileName = "sets.json"

// maxSetNameLength bounds a set name the same way the reference's session
// names are bounded.
const maxSetNameLength = 64

var validSetNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateSetName rejects empty, overlong, or non-alphanumeric set names.
func ValidateSetName(name string) error {
	if name == "" {
		return fmt.Errorf("set name cannot be empty")
	}
	if len(name) > maxSetNameLength {
		return fmt.Errorf("set name too long (max %d chars)", maxSetNameLength)
	}
	if !validSetNamePattern.MatchString(name) {
		return fmt.Errorf("set name can only contain letters, numbers, hyphens, and underscores")
	}
	return nil
}

// setMember is one repository entry within a named set, as persisted.
type setMember struct {
	RepoPath string `json:"repoPath"`
	Alias    string `json:"alias"`
}

// setsFile is the on-disk shape of sets.json.
type setsFile struct {
	Sets map[string][]setMember `json:"sets"`
}

// SetRegistry is a small named-group registry over indexed repositories,
// backing QueryManager's set:<name> and all scopes. One registry file lives
// at the store root and is shared across every repository store under it.
type SetRegistry struct {
	path string
	mu   sync.Mutex
	data setsFile
}

// OpenSetRegistry loads (or initializes) the registry persisted at
// <storeRoot>/sets.json.
func OpenSetRegistry(storeRoot string) (*SetRegistry, error) {
	reg := &SetRegistry{path: filepath.Join(storeRoot, setsFileName), data: setsFile{Sets: map[string][]setMember{}}}
	raw, err := os.ReadFile(reg.path)
	if os.IsNotExist(err) {
		return reg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sets registry: %w", err)
	}
	if err := json.Unmarshal(raw, &reg.data); err != nil {
		return nil, fmt.Errorf("parse sets registry: %w", err)
	}
	if reg.data.Sets == nil {
		reg.data.Sets = map[string][]setMember{}
	}
	return reg, nil
}

// Create registers a new empty set. Returns an error if name already exists.
func (r *SetRegistry) Create(name string) error {
	if err := ValidateSetName(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data.Sets[name]; exists {
		return fmt.Errorf("set %q already exists", name)
	}
	r.data.Sets[name] = []setMember{}
	return r.persistLocked()
}

// Add appends a repository to a set, creating the set if it does not exist.
func (r *SetRegistry) Add(name, repoPath, alias string) error {
	if err := ValidateSetName(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.data.Sets[name]
	for _, m := range members {
		if m.RepoPath == repoPath {
			return nil
		}
	}
	r.data.Sets[name] = append(members, setMember{RepoPath: repoPath, Alias: alias})
	return r.persistLocked()
}

// Remove drops a repository from a set. A no-op if the set or repo is absent.
func (r *SetRegistry) Remove(name, repoPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.data.Sets[name]
	if !ok {
		return nil
	}
	kept := members[:0]
	for _, m := range members {
		if m.RepoPath != repoPath {
			kept = append(kept, m)
		}
	}
	r.data.Sets[name] = kept
	return r.persistLocked()
}

// Delete removes an entire named set.
func (r *SetRegistry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data.Sets, name)
	return r.persistLocked()
}

// Get resolves a named set to its repository targets.
func (r *SetRegistry) Get(name string) ([]repoTarget, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.data.Sets[name]
	if !ok {
		return nil, false
	}
	targets := make([]repoTarget, len(members))
	for i, m := range members {
		targets[i] = repoTarget{RepoPath: m.RepoPath, Alias: m.Alias}
	}
	return targets, true
}

// All returns the union of every repository registered in any set, deduped
// by repo path, for the "all" query scope.
func (r *SetRegistry) All() []repoTarget {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var targets []repoTarget
	for _, members := range r.data.Sets {
		for _, m := range members {
			if seen[m.RepoPath] {
				continue
			}
			seen[m.RepoPath] = true
			targets = append(targets, repoTarget{RepoPath: m.RepoPath, Alias: m.Alias})
		}
	}
	return targets
}

// Names lists the registered set names.
func (r *SetRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.data.Sets))
	for name := range r.data.Sets {
		names = append(names, name)
	}
	return names
}

// persistLocked writes the registry atomically; callers must hold r.mu.
func (r *SetRegistry) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("create store root: %w", err)
	}
	raw, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sets registry: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("write sets registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save sets registry: %w", err)
	}
	return nil
}

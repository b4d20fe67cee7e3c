package animation

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

// Library is the in-memory set of animations, keyed by ID.
type Library struct {
	mu    sync.RWMutex
	items map[string]*Animation
}

// NewLibrary creates an empty Library.
func NewLibrary() *Library {
	return &Library{items: make(map[string]*Animation)}
}

// Put validates and stores a copy of a, assigning an ID when it has none.
// Replacing a locked animation keeps the stored track set.
func (l *Library) Put(a *Animation) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	c := a.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.items[c.ID]; ok && prev.Locked {
		c.Locked = true
		c.TrackIDs = append([]string(nil), prev.TrackIDs...)
	}
	l.items[c.ID] = c
	return c.ID, nil
}

// Get returns a copy of the animation with id.
func (l *Library) Get(id string) (*Animation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a.Clone(), nil
}

// Lock locks the stored animation to trackIDs.
func (l *Library) Lock(id string, trackIDs []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a.Lock(trackIDs)
}

// Remove deletes id and reports whether it existed.
func (l *Library) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.items[id]
	delete(l.items, id)
	return ok
}

// List returns copies of every animation ordered by name then ID.
func (l *Library) List() []*Animation {
	l.mu.RLock()
	out := make([]*Animation, 0, len(l.items))
	for _, a := range l.items {
		out = append(out, a.Clone())
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of animations.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

type libraryFile struct {
	Animations []*Animation `yaml:"animations"`
}

// Decode adds every animation in a YAML document.
func (l *Library) Decode(r io.Reader) (int, error) {
	var f libraryFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return 0, fmt.Errorf("decode animation library: %w", err)
	}
	for i, a := range f.Animations {
		if _, err := l.Put(a); err != nil {
			return i, fmt.Errorf("animation %d (%s): %w", i, a.ID, err)
		}
	}
	return len(f.Animations), nil
}

// Encode writes every animation as a YAML document.
func (l *Library) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(libraryFile{Animations: l.List()})
}

// Load reads a YAML library file. A missing file is not an error.
func (l *Library) Load(path string) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return l.Decode(f)
}

// Save writes the library to path.
func (l *Library) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := l.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/arnavsurve/sheetflow/pkg/core"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// MaxEntries caps the number of saved definitions. Saving past the cap evicts the least recently updated.
const MaxEntries = 10

var ErrNotFound = errors.New("workflow not found")

type document struct {
	Workflows []core.Definition `yaml:"workflows"`
}

// FileStore keeps saved workflow definitions in a single YAML file.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

func (s *FileStore) Path() string {
	return s.path
}

// List returns every saved definition, most recently updated first.
func (s *FileStore) List() ([]core.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	sortNewestFirst(doc.Workflows)
	return doc.Workflows, nil
}

func (s *FileStore) Get(id string) (*core.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, def := range doc.Workflows {
		if def.ID == id {
			out := def.Clone()
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
}

// Save inserts def or replaces the entry with the same id. A missing id is generated. UpdatedAt is always
// stamped and CreatedAt is kept from the existing entry when there is one.
func (s *FileStore) Save(def core.Definition) (core.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := core.ValidateDefinitionStructure(&def); err != nil {
		return core.Definition{}, fmt.Errorf("refusing to save workflow: %w", err)
	}

	doc, err := s.load()
	if err != nil {
		return core.Definition{}, err
	}

	saved := def.Clone()
	if saved.ID == "" {
		saved.ID = uuid.New().String()
	}
	now := s.now().UTC()
	saved.UpdatedAt = now

	existing := -1
	for i, def := range doc.Workflows {
		if def.ID == saved.ID {
			existing = i
			if !def.CreatedAt.IsZero() {
				saved.CreatedAt = def.CreatedAt
			}
			break
		}
	}
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = now
	}
	if existing >= 0 {
		doc.Workflows[existing] = saved
	} else {
		doc.Workflows = append(doc.Workflows, saved)
	}

	sortNewestFirst(doc.Workflows)
	if len(doc.Workflows) > MaxEntries {
		doc.Workflows = doc.Workflows[:MaxEntries]
	}

	if err := s.write(doc); err != nil {
		return core.Definition{}, err
	}
	return saved, nil
}

// Import reads a workflow YAML file and saves it.
func (s *FileStore) Import(path string) (core.Definition, error) {
	def, err := core.LoadDefinitionFromFile(path)
	if err != nil {
		return core.Definition{}, err
	}
	return s.Save(*def)
}

func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	kept := doc.Workflows[:0]
	found := false
	for _, def := range doc.Workflows {
		if def.ID == id {
			found = true
			continue
		}
		kept = append(kept, def)
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	doc.Workflows = kept
	return s.write(doc)
}

func (s *FileStore) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading store %q: %w", s.path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing store %q: %w", s.path, err)
	}
	return &doc, nil
}

// write replaces the store file atomically.
func (s *FileStore) write(doc *document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating store directory %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".workflows-*.yml")
	if err != nil {
		return fmt.Errorf("creating temp store file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing store %q: %w", s.path, err)
	}
	return nil
}

func sortNewestFirst(defs []core.Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		return defs[i].UpdatedAt.After(defs[j].UpdatedAt)
	})
}

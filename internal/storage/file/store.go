// Package file reads rule records from a directory of YAML files, one file per
// context, and watches the directory so edited contexts can be reloaded.
//
// A context file looks like:
//
//	context: web
//	rules:
//	  - id: 5d0c...
//	    name: old blog
//	    enabled: true
//	    pattern: ^/blog/(.+)$
//	    action: {type: rewrite, target: "/articles/{1}"}
//	simple_redirects:
//	  - path: /sale
//	    target_url: /offers
//	    enabled: true
//	folders:
//	  - name: Shop
//	    site_restriction: shop
//	    rules: [...]
//	items:
//	  - id: item-1
//	    url: /products/1
//
// Records without an id get one derived from the context and their position,
// so ids stay stable across reloads of an unchanged file.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"url-rewrite/internal/common/logging"
	"url-rewrite/internal/rules"
	"url-rewrite/internal/storage"
)

type folderDoc struct {
	ID              string                 `yaml:"id"`
	Name            string                 `yaml:"name"`
	SiteRestriction string                 `yaml:"site_restriction"`
	Rules           []rules.RuleDefinition `yaml:"rules"`
	SimpleRedirects []rules.SimpleRedirect `yaml:"simple_redirects"`
}

type contextDoc struct {
	Context         string                 `yaml:"context"`
	Rules           []rules.RuleDefinition `yaml:"rules"`
	SimpleRedirects []rules.SimpleRedirect `yaml:"simple_redirects"`
	Folders         []folderDoc            `yaml:"folders"`
	Items           []storage.Item         `yaml:"items"`
}

// loaded is the parsed content of one context file
type loaded struct {
	defs  []rules.RuleDefinition
	items map[string]storage.Item
}

var idNamespace = uuid.MustParse("8c4d3c2e-7f0b-4b59-9a52-2f4a7e1c6d90")

// Store is a read-only storage.Backend over a directory of YAML files
type Store struct {
	dir    string
	logger logging.Logger

	mu       sync.RWMutex
	contexts map[string]*loaded
	files    map[string]string
}

var _ storage.Backend = (*Store)(nil)

// NewStore parses every *.yaml and *.yml file in dir
func NewStore(dir string, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Store{
		dir:      dir,
		logger:   logger.WithFields(logging.Component("file_store")),
		contexts: make(map[string]*loaded),
		files:    make(map[string]string),
	}
	if err := s.loadDir(); err != nil {
		return nil, err
	}
	return s, nil
}

func isRuleFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func (s *Store) loadDir() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read rules directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isRuleFile(e.Name()) {
			continue
		}
		if _, err := s.ReloadFile(filepath.Join(s.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// ReloadFile parses path and replaces the context it defines. A file that no
// longer exists drops the context it used to define. It returns that context.
func (s *Store) ReloadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.mu.Lock()
		defer s.mu.Unlock()
		name, ok := s.files[path]
		if !ok {
			return "", nil
		}
		delete(s.files, path)
		delete(s.contexts, name)
		return name, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc contextDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if doc.Context == "" {
		doc.Context = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	l := build(doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if previous, ok := s.files[path]; ok && previous != doc.Context {
		delete(s.contexts, previous)
	}
	s.files[path] = doc.Context
	s.contexts[doc.Context] = l

	s.logger.Debug("Loaded rule file",
		logging.Field{"path", path},
		logging.RuleContext(doc.Context),
		logging.Field{"rules", len(l.defs)},
	)
	return doc.Context, nil
}

func stableID(contextName, kind string, index ...int) string {
	parts := []string{contextName, kind}
	for _, i := range index {
		parts = append(parts, fmt.Sprint(i))
	}
	return uuid.NewSHA1(idNamespace, []byte(strings.Join(parts, "/"))).String()
}

func build(doc contextDoc) *loaded {
	l := &loaded{items: make(map[string]storage.Item, len(doc.Items))}

	add := func(folder *storage.Folder, defs []rules.RuleDefinition, simple []rules.SimpleRedirect, scope int) {
		for i, d := range defs {
			if d.ID == "" {
				d.ID = stableID(doc.Context, "rule", scope, i)
			}
			rec := storage.RuleRecord{Context: doc.Context, Rule: &d}
			l.defs = append(l.defs, rec.Definition(folder))
		}
		for i, r := range simple {
			if r.ID == "" {
				r.ID = stableID(doc.Context, "simple", scope, i)
			}
			rec := storage.RuleRecord{Context: doc.Context, Simple: &r}
			l.defs = append(l.defs, rec.Definition(folder))
		}
	}

	add(nil, doc.Rules, doc.SimpleRedirects, -1)
	for i, f := range doc.Folders {
		folder := &storage.Folder{ID: f.ID, Context: doc.Context, Name: f.Name, SiteRestriction: f.SiteRestriction}
		add(folder, f.Rules, f.SimpleRedirects, i)
	}

	for _, item := range doc.Items {
		l.items[item.ID] = item
	}
	return l
}

func (s *Store) LoadAll(ctx context.Context, contextName string, direction rules.Direction) ([]rules.RuleDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.contexts[contextName]
	if !ok {
		return nil, nil
	}
	var out []rules.RuleDefinition
	for _, d := range l.defs {
		if d.Direction == direction {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) LoadOne(ctx context.Context, contextName, id string) (*rules.RuleDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.contexts[contextName]; ok {
		for _, d := range l.defs {
			if d.ID == id {
				def := d
				return &def, nil
			}
		}
	}
	return nil, storage.ErrNotFound
}

// Resolve looks the item up in every context file
func (s *Store) Resolve(ctx context.Context, itemID string) (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.contexts {
		if item, ok := l.items[itemID]; ok {
			return item.URL, item.Anchor, nil
		}
	}
	return "", "", storage.ErrNotFound
}

func (s *Store) Contexts(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.contexts))
	for name := range s.contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Health(ctx context.Context) error {
	_, err := os.Stat(s.dir)
	return err
}

func (s *Store) Close() error {
	return nil
}

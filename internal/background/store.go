package background

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"icpquery/internal/services"
)

// Template is one reference background and its precomputed features.
type Template struct {
	Name     string
	Image    gocv.Mat
	Features []float64
}

// Store is an immutable set of reference backgrounds. It is safe for
// concurrent readers once loaded.
type Store struct {
	canvas    Canvas
	templates []Template
	closeOnce sync.Once
}

// LoadTemplates reads every *.png under dir in lexical order. Files whose
// dimensions differ from canvas are rejected. A directory with no templates
// yields ErrTemplateStoreEmpty.
func LoadTemplates(dir string, canvas Canvas) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrTemplateStoreEmpty, "background", "read template dir", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".png") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	store := &Store{canvas: canvas}
	for _, name := range names {
		img := gocv.IMRead(filepath.Join(dir, name), gocv.IMReadColor)
		if img.Empty() {
			_ = img.Close()
			_ = store.Close()
			return nil, services.Wrap(services.ErrConfiguration, "background", "decode template", name, nil)
		}
		if err := store.Add(name, img); err != nil {
			_ = img.Close()
			_ = store.Close()
			return nil, err
		}
	}
	if store.Len() == 0 {
		return nil, services.Wrap(services.ErrTemplateStoreEmpty, "background", "load templates",
			fmt.Sprintf("no png files in %s", dir), nil)
	}
	return store, nil
}

// NewStore returns an empty store for the given canvas. Templates are added
// with Add; LoadTemplates is the usual constructor.
func NewStore(canvas Canvas) *Store {
	return &Store{canvas: canvas}
}

// Add takes ownership of img and appends it as a template.
func (s *Store) Add(name string, img gocv.Mat) error {
	features, err := ExtractFeatures(img, s.canvas)
	if err != nil {
		return fmt.Errorf("template %s: %w", name, err)
	}
	s.templates = append(s.templates, Template{Name: name, Image: img, Features: features})
	return nil
}

// Canvas returns the image size every template shares.
func (s *Store) Canvas() Canvas {
	return s.canvas
}

// Len returns the number of loaded templates.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.templates)
}

// Names returns template file names in load order.
func (s *Store) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.templates))
	for i, tpl := range s.templates {
		names[i] = tpl.Name
	}
	return names
}

// Template returns the template at index i.
func (s *Store) Template(i int) Template {
	return s.templates[i]
}

// Close releases the native image memory held by every template.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		for i := range s.templates {
			_ = s.templates[i].Image.Close()
		}
	})
	return nil
}

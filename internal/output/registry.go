package output

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// SerializeFunc renders a summary in one format.
type SerializeFunc func(Summary) ([]byte, error)

// Registry maps format names to serializers.
type Registry struct {
	mu     sync.RWMutex
	format map[string]SerializeFunc
}

// NewRegistry creates an empty serializer registry.
func NewRegistry() *Registry {
	return &Registry{
		format: make(map[string]SerializeFunc),
	}
}

// Register adds a serializer under the given format name.
// Existing entries for the same name are overwritten.
func (r *Registry) Register(name string, fn SerializeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.format[name] = fn
}

// Serializer returns the serializer for the given format, or an error if not found.
func (r *Registry) Serializer(name string) (SerializeFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.format[name]
	if !ok {
		return nil, fmt.Errorf("unknown summary format %q (available: %s)", name, r.AvailableFormats())
	}

	return fn, nil
}

// Formats returns the sorted list of registered format names.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.format))
	for name := range r.format {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// AvailableFormats returns a comma-separated string of registered format names.
func (r *Registry) AvailableFormats() string {
	formats := r.Formats()
	if len(formats) == 0 {
		return "none"
	}

	return strings.Join(formats, ", ")
}

// DefaultRegistry returns a registry with the yaml and json formats.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("yaml", SerializeYAML)
	r.Register("json", SerializeJSON)

	return r
}

// FormatFor infers a summary format from a file name: ".json" selects json,
// anything else yaml.
func FormatFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "json"
	}

	return "yaml"
}

// WriteSummary serializes s in the named format (inferred from path when
// empty) and writes it to path.
func WriteSummary(path, format string, s Summary, opts ...FileWriterOption) error {
	if format == "" {
		format = FormatFor(path)
	}

	fn, err := DefaultRegistry().Serializer(format)
	if err != nil {
		return err
	}

	data, err := fn(s)
	if err != nil {
		return err
	}

	return NewFileWriter(path, opts...).Write(data)
}

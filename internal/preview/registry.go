package preview

import (
	"context"
	"strings"

	"github.com/cocdeshijie/MikaniroBytes/internal/storage"
	"github.com/cocdeshijie/MikaniroBytes/model"
)

// ImageExtensions are the extensions classified as IMAGE.
var ImageExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"bmp":  {},
	"webp": {},
}

// Classify derives the file type tag from a file name.
func Classify(filename string) model.FileType {
	if _, ok := ImageExtensions[strings.ToLower(storage.ExtNoDot(filename))]; ok {
		return model.FileTypeImage
	}
	return model.FileTypeBase
}

// Result describes a generated preview file.
type Result struct {
	Kind    string
	RelPath string
	Width   int
	Height  int
}

// Generator renders a derivative of a stored file.
type Generator interface {
	Generate(ctx context.Context, srcAbs, srcRel string) (*Result, error)
}

// Registry maps each file type to its preview generator.
type Registry struct {
	generators map[model.FileType]Generator
}

// NewRegistry builds a registry from an explicit table.
func NewRegistry(table map[model.FileType]Generator) *Registry {
	generators := make(map[model.FileType]Generator, len(table))
	for ft, gen := range table {
		if gen != nil {
			generators[ft] = gen
		}
	}
	return &Registry{generators: generators}
}

// DefaultRegistry wires the built-in generators.
func DefaultRegistry(previews storage.Store, size int) *Registry {
	return NewRegistry(map[model.FileType]Generator{
		model.FileTypeImage: NewImageGenerator(previews, size),
	})
}

// Lookup returns the generator for a file type.
func (r *Registry) Lookup(ft model.FileType) (Generator, bool) {
	if r == nil {
		return nil, false
	}
	gen, ok := r.generators[ft]
	return gen, ok
}

// Supports reports whether a file type has a generator.
func (r *Registry) Supports(ft model.FileType) bool {
	_, ok := r.Lookup(ft)
	return ok
}

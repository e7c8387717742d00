package prompt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/goccy/go-yaml"
)

// LoadDir registers every .json, .yaml or .yml file in dir, overriding
// built-ins with the same name and version. A missing directory is not an
// error.
func (r *Registry) LoadDir(dir string) (int, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return 0, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return r.LoadFS(os.DirFS(dir))
}

// LoadFS registers the prompt files at the top level of fsys. A YAML file
// may hold a single spec or a list of specs.
func (r *Registry) LoadFS(fsys fs.FS) (int, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, entry := range entries {
		ext := strings.ToLower(path.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".json" && ext != ".yaml" && ext != ".yml") {
			continue
		}
		specs, err := decodeFile(fsys, entry.Name())
		if err != nil {
			return loaded, err
		}
		for _, spec := range specs {
			if err := r.Register(spec); err != nil {
				return loaded, fmt.Errorf("%s: %w", entry.Name(), err)
			}
			loaded++
		}
	}
	return loaded, nil
}

func decodeFile(fsys fs.FS, name string) ([]Spec, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %q: %w", name, err)
	}
	trimmed := bytes.TrimSpace(content)
	list := bytes.HasPrefix(trimmed, []byte("-")) || bytes.HasPrefix(trimmed, []byte("["))

	var specs []Spec
	switch {
	case strings.EqualFold(path.Ext(name), ".json") && list:
		err = json.Unmarshal(content, &specs)
	case strings.EqualFold(path.Ext(name), ".json"):
		specs = make([]Spec, 1)
		err = json.Unmarshal(content, &specs[0])
	case list:
		err = yaml.Unmarshal(content, &specs)
	default:
		specs = make([]Spec, 1)
		err = yaml.Unmarshal(content, &specs[0])
	}
	if err != nil {
		return nil, fmt.Errorf("decode prompt file %q: %w", name, err)
	}
	// A lone spec without a name takes the file's base name.
	if len(specs) == 1 && strings.TrimSpace(specs[0].Name) == "" {
		specs[0].Name = strings.TrimSuffix(name, path.Ext(name))
	}
	return specs, nil
}

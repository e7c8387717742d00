// Package prompt keeps the versioned synthesis prompts. A Spec pairs a
// system text with a user template rendered through {{var}} substitution.
package prompt

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
)

type Spec struct {
	Name        string   `json:"name" yaml:"name"`
	Version     string   `json:"version,omitempty" yaml:"version,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	System      string   `json:"system" yaml:"system"`
	Template    string   `json:"template" yaml:"template"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Registry holds every registered version of each prompt, ordered oldest
// first.
type Registry struct {
	mu    sync.RWMutex
	specs map[string][]Spec
}

func NewRegistry() *Registry {
	return &Registry{specs: map[string][]Spec{}}
}

// Default returns a registry holding the built-in catalog.
func Default() *Registry {
	r := NewRegistry()
	for _, spec := range builtins {
		if err := r.Register(spec); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds spec, replacing an existing spec with the same name and
// version.
func (r *Registry) Register(spec Spec) error {
	spec, err := normalize(spec)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	versions := slices.DeleteFunc(r.specs[spec.Name], func(s Spec) bool { return s.Version == spec.Version })
	versions = append(versions, spec)
	slices.SortFunc(versions, func(a, b Spec) int { return compareVersions(a.Version, b.Version) })
	r.specs[spec.Name] = versions
	return nil
}

// Resolve accepts "name" or "name@version". A bare name picks the highest
// version, comparing numeric runs as numbers so v10 beats v9.
func (r *Registry) Resolve(ref string) (Spec, bool) {
	name, version, pinned := strings.Cut(strings.ToLower(strings.TrimSpace(ref)), "@")
	name, version = strings.TrimSpace(name), strings.TrimSpace(version)
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.specs[name]
	if len(versions) == 0 {
		return Spec{}, false
	}
	if !pinned {
		return versions[len(versions)-1], true
	}
	i := slices.IndexFunc(versions, func(s Spec) bool { return s.Version == version })
	if i < 0 {
		return Spec{}, false
	}
	return versions[i], true
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.specs))
	for name := range r.specs {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Render resolves ref and fills its template.
func (r *Registry) Render(ref string, vars map[string]string) (system string, user string, err error) {
	spec, ok := r.Resolve(ref)
	if !ok {
		return "", "", fmt.Errorf("prompt %q not found", ref)
	}
	user, err = Render(spec.Template, vars)
	if err != nil {
		return "", "", fmt.Errorf("failed to render prompt %q: %w", spec.Name, err)
	}
	return spec.System, user, nil
}

var identPattern = regexp.MustCompile(`^[a-z0-9._-]+$`)

func normalize(spec Spec) (Spec, error) {
	spec.Name = strings.ToLower(strings.TrimSpace(spec.Name))
	spec.Version = strings.ToLower(strings.TrimSpace(spec.Version))
	if spec.Version == "" {
		spec.Version = "v1"
	}
	spec.Description = strings.TrimSpace(spec.Description)
	spec.System = strings.TrimSpace(spec.System)
	spec.Template = strings.TrimSpace(spec.Template)

	switch {
	case spec.Name == "":
		return Spec{}, fmt.Errorf("prompt name is required")
	case !identPattern.MatchString(spec.Name):
		return Spec{}, fmt.Errorf("prompt name %q must match [a-z0-9._-]", spec.Name)
	case !identPattern.MatchString(spec.Version):
		return Spec{}, fmt.Errorf("prompt %s: version %q must match [a-z0-9._-]", spec.Name, spec.Version)
	case spec.System == "" || spec.Template == "":
		return Spec{}, fmt.Errorf("prompt %s@%s needs both system text and a template", spec.Name, spec.Version)
	}
	return spec, nil
}

var versionRun = regexp.MustCompile(`\d+|\D+`)

// compareVersions orders version labels run by run, numerically where both
// runs are digits.
func compareVersions(a, b string) int {
	ra, rb := versionRun.FindAllString(a, -1), versionRun.FindAllString(b, -1)
	for i := 0; i < len(ra) && i < len(rb); i++ {
		na, errA := strconv.Atoi(ra[i])
		nb, errB := strconv.Atoi(rb[i])
		if errA == nil && errB == nil {
			if na != nb {
				return na - nb
			}
			continue
		}
		if c := strings.Compare(ra[i], rb[i]); c != 0 {
			return c
		}
	}
	return len(ra) - len(rb)
}

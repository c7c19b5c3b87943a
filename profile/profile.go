// Package profile holds the chat profiles. A profile selects the vector collections to
// search and the system prompt given to the generative model.
package profile

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

const (
	CILogs        = "CI Logs"
	Documentation = "Documentation"
	RCAFull       = "RCA Full"
)

//go:embed profiles.yaml
var defaultProfiles embed.FS

var ErrUnknown = errors.New("profile: unknown profile")

type Starter struct {
	Label   string `yaml:"label" json:"label"`
	Message string `yaml:"message" json:"message"`
}

type Profile struct {
	Name         string    `yaml:"name" json:"name"`
	Description  string    `yaml:"description" json:"description"`
	Collections  []string  `yaml:"collections" json:"collections"`
	SystemPrompt string    `yaml:"system_prompt" json:"-"`
	Starters     []Starter `yaml:"starters" json:"starters"`
}

// Registry is an immutable, ordered set of profiles.
type Registry struct {
	profiles []Profile
	byName   map[string]int
}

// Load reads the profiles from filename, or the built-in ones when filename is empty.
func Load(filename string) (*Registry, error) {
	var b []byte
	var err error
	if filename != "" {
		b, err = os.ReadFile(filename)
	} else {
		b, err = defaultProfiles.ReadFile("profiles.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}

	var profiles []Profile
	if err := yaml.Unmarshal(b, &profiles); err != nil {
		return nil, fmt.Errorf("profile unmarshal: %w", err)
	}
	return New(profiles...)
}

func New(profiles ...Profile) (*Registry, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("profile: no profiles defined")
	}

	r := &Registry{byName: map[string]int{}}
	var errs error
	for _, p := range profiles {
		if p.Name == "" {
			errs = errors.Join(errs, fmt.Errorf("profile: empty name"))
			continue
		}
		if len(p.Collections) == 0 {
			errs = errors.Join(errs, fmt.Errorf("profile %q: no collections", p.Name))
			continue
		}
		if _, ok := r.byName[p.Name]; ok {
			errs = errors.Join(errs, fmt.Errorf("profile %q: defined twice", p.Name))
			continue
		}
		r.byName[p.Name] = len(r.profiles)
		r.profiles = append(r.profiles, p)
	}
	if errs != nil {
		return nil, errs
	}
	return r, nil
}

func (r *Registry) Get(name string) (Profile, error) {
	i, ok := r.byName[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return r.profiles[i], nil
}

// Names in definition order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for _, p := range r.profiles {
		names = append(names, p.Name)
	}
	return names
}

// Default is CI Logs when defined, otherwise the first profile.
func (r *Registry) Default() Profile {
	if p, err := r.Get(CILogs); err == nil {
		return p
	}
	return r.profiles[0]
}

func (r *Registry) All() []Profile {
	return slices.Clone(r.profiles)
}

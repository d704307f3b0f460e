package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/dshills/arbor/internal/plugin"
)

// ManifestFile is the manifest name looked up in plugin directories.
const ManifestFile = "plugin.yaml"

// Manifest describes a script plugin.
type Manifest struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`

	// Main is the entry file relative to the plugin directory.
	Main string `yaml:"main"`

	// Requires lists plugins loaded before the script runs.
	Requires []string `yaml:"requires"`

	// Settings are defaults merged under the settings the plugin is
	// requested with.
	Settings plugin.Settings `yaml:"settings"`

	// Capabilities limits the tree module functions the script may call.
	// When absent every function is available; tree.log always is.
	Capabilities []Capability `yaml:"capabilities"`

	dir string
}

// Manifest validation errors.
var (
	ErrMissingName    = errors.New("manifest: name is required")
	ErrInvalidName    = errors.New("manifest: name must be lowercase alphanumeric with hyphens")
	ErrInvalidVersion = errors.New("manifest: version must be valid semver")
	ErrInvalidMain    = errors.New("manifest: main must be a .lua file inside the plugin directory")
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$|^[a-z]$`)

var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// newMinimalManifest describes a plugin that has no manifest file.
func newMinimalManifest(name, dir, main string) *Manifest {
	return &Manifest{
		Name:    name,
		Version: "0.0.0",
		Main:    main,
		dir:     dir,
	}
}

func (m *Manifest) applyDefaults() {
	if m.Main == "" {
		m.Main = "init.lua"
	}
	if m.Version == "" {
		m.Version = "0.0.0"
	}
}

// Validate checks the manifest fields.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return ErrMissingName
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("%w: %s", ErrInvalidName, m.Name)
	}
	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("%w: %s", ErrInvalidVersion, m.Version)
	}
	if filepath.Ext(m.Main) != ".lua" || !filepath.IsLocal(m.Main) {
		return fmt.Errorf("%w: %s", ErrInvalidMain, m.Main)
	}
	for _, c := range m.Capabilities {
		if !IsValidCapability(c) {
			return fmt.Errorf("%w: %s", ErrUnknownCapability, c)
		}
	}
	if slices.Contains(m.Requires, m.Name) {
		return fmt.Errorf("manifest: %s requires itself", m.Name)
	}
	return nil
}

// Dir returns the plugin directory.
func (m *Manifest) Dir() string {
	return m.dir
}

// MainPath returns the path of the entry file.
func (m *Manifest) MainPath() string {
	return filepath.Join(m.dir, m.Main)
}

func (m *Manifest) String() string {
	return fmt.Sprintf("%s v%s", m.Name, m.Version)
}

// Package profile persists the named mapping/config profile set to disk as
// TOML by default, reading and writing JSON or YAML instead when the store
// path carries that extension, mirroring the multi-format posture
// internal/config's scaffolding command uses for CLI config templates.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"

	"github.com/hidbridge/padlink/internal/configpaths"
	"github.com/hidbridge/padlink/internal/engine"
	"github.com/hidbridge/padlink/internal/engineerr"
)

// CurrentSchemaVersion is bumped whenever the on-disk Document shape
// changes in an incompatible way.
const CurrentSchemaVersion = 1

// DefaultProfileName is immutable: it cannot be saved over or deleted.
const DefaultProfileName = "Default"

// Profile is one named mapping set plus its engine configuration, stored
// with the mapping table keyed by source name so every supported format
// (TOML tables, JSON/YAML maps) round-trips it without relying on a
// library-specific non-string-map-key extension.
type Profile struct {
	Mappings map[string]engine.Mapping `json:"mappings" yaml:"mappings" toml:"mappings"`
	Config   engine.EngineConfig       `json:"config" yaml:"config" toml:"config"`
}

func fromMappingSet(ms engine.MappingSet) map[string]engine.Mapping {
	out := make(map[string]engine.Mapping, len(ms))
	for src, m := range ms {
		out[src.String()] = m
	}
	return out
}

func (p Profile) toMappingSet() (engine.MappingSet, error) {
	out := make(engine.MappingSet, len(p.Mappings))
	for name, m := range p.Mappings {
		var src engine.Source
		if err := src.UnmarshalText([]byte(name)); err != nil {
			return nil, fmt.Errorf("profile: %w", err)
		}
		m.Source = src
		out[src] = m
	}
	for _, src := range engine.AllSources {
		if _, ok := out[src]; !ok {
			out[src] = engine.Mapping{Source: src}
		}
	}
	return out, nil
}

// Document is the whole persisted configuration document: the set of
// profiles, the current profile name, and global preferences.
type Document struct {
	SchemaVersion  int                `json:"schema_version" yaml:"schema_version" toml:"schema_version"`
	CurrentProfile string             `json:"current_profile" yaml:"current_profile" toml:"current_profile"`
	StartMinimized bool               `json:"start_minimized" yaml:"start_minimized" toml:"start_minimized"`
	Profiles       map[string]Profile `json:"profiles" yaml:"profiles" toml:"profiles"`
}

func newDocument() Document {
	return Document{
		SchemaVersion:  CurrentSchemaVersion,
		CurrentProfile: DefaultProfileName,
		Profiles: map[string]Profile{
			DefaultProfileName: {
				Mappings: fromMappingSet(engine.DefaultMapping()),
				Config:   engine.DefaultEngineConfig(),
			},
		},
	}
}

// Store owns the on-disk document and guards it against concurrent
// UI-command and engine access.
type Store struct {
	mu   sync.Mutex
	path string
	doc  Document

	// Migrated is set when Open falls back to a fresh Default-only document
	// because the on-disk schema version is newer than CurrentSchemaVersion
	// or the document has no profiles table, so the caller can surface a
	// non-fatal migration notice.
	Migrated bool
}

// Open loads the document at path (or the default configpaths location, if
// path is empty), initializing a fresh Default-only document if no file
// exists yet.
func Open(path string) (*Store, error) {
	if path == "" {
		p, err := configpaths.DefaultNamedConfigPath("profiles", "toml")
		if err != nil {
			return nil, err
		}
		path = p
	}

	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.doc = newDocument()
			return s, nil
		}
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}

	doc, err := unmarshalDocument(path, data)
	if err != nil {
		return nil, fmt.Errorf("profile: parse %s: %w", path, err)
	}

	if doc.SchemaVersion > CurrentSchemaVersion || doc.Profiles == nil {
		s.doc = newDocument()
		s.Migrated = true
		return s, nil
	}
	if _, ok := doc.Profiles[DefaultProfileName]; !ok {
		doc.Profiles[DefaultProfileName] = Profile{
			Mappings: fromMappingSet(engine.DefaultMapping()),
			Config:   engine.DefaultEngineConfig(),
		}
	}
	s.doc = doc
	return s, nil
}

func unmarshalDocument(path string, data []byte) (Document, error) {
	var doc Document
	switch filepath.Ext(path) {
	case ".json":
		return doc, json.Unmarshal(data, &doc)
	case ".yaml", ".yml":
		return doc, yaml.Unmarshal(data, &doc)
	default:
		return doc, toml.Unmarshal(data, &doc)
	}
}

// marshalDocument serializes doc in the format implied by path's extension,
// mirroring unmarshalDocument so a store opened against a .json/.yaml path
// keeps reading back what it last wrote.
func marshalDocument(path string, doc Document) ([]byte, error) {
	switch filepath.Ext(path) {
	case ".json":
		return json.MarshalIndent(doc, "", "  ")
	case ".yaml", ".yml":
		return yaml.Marshal(doc)
	default:
		return toml.Marshal(doc)
	}
}

// Save writes the document back to its path in the format implied by its
// extension (TOML by default), creating parent directories as needed.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if err := configpaths.EnsureDir(s.path); err != nil {
		return err
	}
	data, err := marshalDocument(s.path, s.doc)
	if err != nil {
		return fmt.Errorf("profile: marshal: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Current returns the active profile name, mapping set, and config.
func (s *Store) Current() (string, engine.MappingSet, engine.EngineConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := s.doc.CurrentProfile
	p := s.doc.Profiles[name]
	ms, err := p.toMappingSet()
	if err != nil {
		return name, nil, engine.EngineConfig{}, err
	}
	return name, ms, p.Config, nil
}

// List returns every saved profile name.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.doc.Profiles))
	for n := range s.doc.Profiles {
		names = append(names, n)
	}
	return names
}

// SaveProfile writes mappings/config under name and atomically swaps it in
// as the current profile.
func (s *Store) SaveProfile(name string, mappings engine.MappingSet, cfg engine.EngineConfig) error {
	if name == "" {
		return engineerr.New(engineerr.ProfileNameInvalid, "profile name must not be empty")
	}
	if name == DefaultProfileName {
		return engineerr.New(engineerr.ProfileNameInvalid, "the Default profile cannot be overwritten")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Profiles[name] = Profile{Mappings: fromMappingSet(mappings), Config: cfg}
	s.doc.CurrentProfile = name
	return s.saveLocked()
}

// LoadProfile returns the named profile's mappings/config and makes it
// current, persisting the new current-profile pointer.
func (s *Store) LoadProfile(name string) (engine.MappingSet, engine.EngineConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.doc.Profiles[name]
	if !ok {
		return nil, engine.EngineConfig{}, engineerr.New(engineerr.ProfileNotFound, name)
	}
	ms, err := p.toMappingSet()
	if err != nil {
		return nil, engine.EngineConfig{}, err
	}
	s.doc.CurrentProfile = name
	if err := s.saveLocked(); err != nil {
		return nil, engine.EngineConfig{}, err
	}
	return ms, p.Config, nil
}

// DeleteProfile removes a saved profile. The Default profile is immutable
// and cannot be deleted.
func (s *Store) DeleteProfile(name string) error {
	if name == DefaultProfileName {
		return engineerr.New(engineerr.ProfileNameInvalid, "the Default profile cannot be deleted")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Profiles[name]; !ok {
		return engineerr.New(engineerr.ProfileNotFound, name)
	}
	delete(s.doc.Profiles, name)
	if s.doc.CurrentProfile == name {
		s.doc.CurrentProfile = DefaultProfileName
	}
	return s.saveLocked()
}

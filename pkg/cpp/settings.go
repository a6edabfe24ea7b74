// settings.go implements the Settings collaborator: the shared read/write
// surface for -D/-U defines, include paths, and which diagnostic IDs are
// enabled. It is also loadable from a YAML project file, giving callers a
// suppressions/config file in addition to flags.
package cpp

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings holds the configuration for one preprocessing run; the Reader
// and GetCode take it, the Enumerator and Selector do not.
type Settings struct {
	Defines            map[string]string `yaml:"defines"`
	Undefines          []string          `yaml:"undefines"`
	IncludePaths       []string          `yaml:"includePaths"`
	SystemPaths        []string          `yaml:"systemPaths"`
	EnabledIDs         []string          `yaml:"enabledDiagnostics"`
	Suppressions       []string          `yaml:"suppressions"`
	InlineSuppressions bool              `yaml:"inlineSuppressions"`
	Debugwarnings      bool              `yaml:"debugwarnings"`

	recorded []SuppressionMark
}

// SuppressionMark is one "// cppcheck-suppress <id>" comment the Reader
// found and registered while normalizing source text.
type SuppressionMark struct {
	ID   string
	File string
	Line int
}

// NewSettings returns an empty Settings.
func NewSettings() *Settings {
	return &Settings{Defines: make(map[string]string)}
}

// AddSuppression records an inline suppression comment found at file:line.
// It fails only for an empty id; the error return mirrors the
// nomsg.addSuppression interface this models, which can report a
// malformed id.
func (s *Settings) AddSuppression(id, file string, line int) error {
	if id == "" {
		return fmt.Errorf("empty suppression id at %s:%d", file, line)
	}
	s.recorded = append(s.recorded, SuppressionMark{ID: id, File: file, Line: line})
	return nil
}

// RecordedSuppressions returns every suppression AddSuppression has
// accumulated so far, in the order they were found.
func (s *Settings) RecordedSuppressions() []SuppressionMark {
	return s.recorded
}

// LoadSettingsFile reads a YAML settings file.
func LoadSettingsFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	return LoadSettingsYAML(data)
}

// LoadSettingsYAML parses YAML settings content.
func LoadSettingsYAML(data []byte) (*Settings, error) {
	s := NewSettings()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings yaml: %w", err)
	}
	if s.Defines == nil {
		s.Defines = make(map[string]string)
	}
	return s, nil
}

// IsSuppressed reports whether diagnostic id id has been suppressed by the
// project's suppressions list.
func (s *Settings) IsSuppressed(id string) bool {
	for _, sup := range s.Suppressions {
		if sup == id {
			return true
		}
	}
	return false
}

// NewMacroTableFromDefines seeds a MacroTable from Settings.Defines and
// applies Settings.Undefines on top, in the order a command line applies
// -D and -U flags.
func (s *Settings) NewMacroTableFromDefines() (*MacroTable, error) {
	mt := NewMacroTable()
	for name, value := range s.Defines {
		if err := mt.DefineSimple(name, value, SourceLoc{File: "<command-line>"}); err != nil {
			return nil, err
		}
	}
	for _, name := range s.Undefines {
		mt.Undef(name)
	}
	return mt, nil
}

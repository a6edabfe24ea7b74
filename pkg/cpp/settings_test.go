package cpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsYAML(t *testing.T) {
	data := []byte(`
defines:
  FOO: "1"
  BAR: ""
undefines:
  - BAZ
includePaths:
  - /usr/local/include
suppressions:
  - nullPointer
`)
	s, err := LoadSettingsYAML(data)
	require.NoError(t, err)
	assert.Equal(t, "1", s.Defines["FOO"])
	assert.Equal(t, []string{"BAZ"}, s.Undefines)
	assert.Equal(t, []string{"/usr/local/include"}, s.IncludePaths)
	assert.True(t, s.IsSuppressed("nullPointer"))
	assert.False(t, s.IsSuppressed("other"))
}

func TestLoadSettingsYAML_Empty(t *testing.T) {
	s, err := LoadSettingsYAML([]byte(""))
	require.NoError(t, err)
	assert.NotNil(t, s.Defines)
	assert.Empty(t, s.Defines)
}

func TestSettings_NewMacroTableFromDefines(t *testing.T) {
	s := NewSettings()
	s.Defines["FOO"] = "42"
	s.Defines["BAR"] = ""
	s.Undefines = []string{"BAR"}

	mt, err := s.NewMacroTableFromDefines()
	require.NoError(t, err)
	assert.True(t, mt.IsDefined("FOO"))
	assert.False(t, mt.IsDefined("BAR"))
}

func TestLoadSettingsFile_MissingFile(t *testing.T) {
	_, err := LoadSettingsFile("/nonexistent/settings.yaml")
	require.Error(t, err)
}

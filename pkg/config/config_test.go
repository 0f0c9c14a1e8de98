package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("IDMLKIT_TEST_NAME", "library")
	p := writeConfig(t, "name: ${IDMLKIT_TEST_NAME}\nport: 9000\n")

	var s sample
	require.NoError(t, Load(p, &s))
	assert.Equal(t, "library", s.Name)
	assert.Equal(t, 9000, s.Port)
}

func TestLoad_Validates(t *testing.T) {
	p := writeConfig(t, "name: x\nport: 0\n")

	var s sample
	err := Load(p, &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoad_MissingFile(t *testing.T) {
	var s sample
	require.Error(t, Load(filepath.Join(t.TempDir(), "nope.yaml"), &s))
}

func TestLoadOrDefault_MissingFileKeepsDefaults(t *testing.T) {
	s := sample{Name: "default", Port: 8080}
	require.NoError(t, LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"), &s))
	assert.Equal(t, sample{Name: "default", Port: 8080}, s)
}

func TestLoadOrDefault_MissingFileInvalidDefaults(t *testing.T) {
	var s sample
	require.Error(t, LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"), &s))
}

func TestLoadOrDefault_OverridesDefaults(t *testing.T) {
	p := writeConfig(t, "port: 7000\n")
	s := sample{Name: "default", Port: 8080}
	require.NoError(t, LoadOrDefault(p, &s))
	assert.Equal(t, "default", s.Name)
	assert.Equal(t, 7000, s.Port)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	p := writeConfig(t, "name: x\nport: 1\nprot: 2\n")

	var s sample
	err := Load(p, &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prot")
}

func TestLoad_EmptyFileValidatesDefaults(t *testing.T) {
	p := writeConfig(t, "")
	s := sample{Port: 8080}
	require.NoError(t, Load(p, &s))
	assert.Equal(t, 8080, s.Port)
}

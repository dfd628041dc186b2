package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Point at a path that does not exist so only defaults apply.
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "json", c.OutputFormat)
	assert.Equal(t, 5, c.Retention)
	assert.Equal(t, 30*time.Second, c.VerifyTimeout())
	assert.Equal(t, 10*time.Minute, c.ScanTimeout())
	assert.Equal(t, "cloudfox", c.ScanBinary)
	assert.Equal(t, []string{"aws", "all-checks"}, c.ScanArgs)
	assert.Contains(t, c.ExpiredMarkers, "ExpiredToken")
	assert.Contains(t, c.Regions, "us-east-1")
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
region: eu-west-1
retention: 3
scan_timeout_seconds: 120
expired_markers:
  - CustomExpiry
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", c.Region)
	assert.Equal(t, 3, c.Retention)
	assert.Equal(t, 2*time.Minute, c.ScanTimeout())
	assert.Equal(t, []string{"CustomExpiry"}, c.ExpiredMarkers)

	// Untouched keys keep their defaults.
	assert.Equal(t, "json", c.OutputFormat)
	assert.Equal(t, "cloudfox", c.ScanBinary)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("region: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

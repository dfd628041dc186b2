package profile

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/ini.v1"

	"github.com/alfdav/tempfox/internal/credential"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), ".aws"))
}

func testProfile(name string) Profile {
	return Profile{
		Name: name,
		Credential: credential.Credential{
			Type:            credential.KeyTypeTemporary,
			AccessKeyID:     "ASIA12345678ABCDEFG",
			SecretAccessKey: "secret",
			SessionToken:    "token",
		},
		Region: "us-east-1",
		Output: "json",
	}
}

func TestWriteAndListRoundTrip(t *testing.T) {
	s := testStore(t)
	p := testProfile("tempfox-asia-test")

	require.NoError(t, s.Write(p))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"tempfox-asia-test"}, names)
	assert.True(t, s.Exists("tempfox-asia-test"))
	assert.False(t, s.Exists("other"))
}

func TestWriteContents(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Write(testProfile("tempfox-asia-test")))

	creds, err := ini.Load(s.CredentialsPath())
	require.NoError(t, err)
	sec := creds.Section("tempfox-asia-test")
	assert.Equal(t, "ASIA12345678ABCDEFG", sec.Key("aws_access_key_id").String())
	assert.Equal(t, "secret", sec.Key("aws_secret_access_key").String())
	assert.Equal(t, "token", sec.Key("aws_session_token").String())

	conf, err := ini.Load(s.ConfigPath())
	require.NoError(t, err)
	confSec := conf.Section("profile tempfox-asia-test")
	assert.Equal(t, "us-east-1", confSec.Key("region").String())
	assert.Equal(t, "json", confSec.Key("output").String())
}

func TestWriteRemovesStaleSessionToken(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Write(testProfile("tempfox-asia-test")))

	// Overwrite with a long-term credential; the old token must go.
	p := testProfile("tempfox-asia-test")
	p.Credential = credential.Credential{
		Type:            credential.KeyTypeLongTerm,
		AccessKeyID:     "AKIA12345678ABCDEFG",
		SecretAccessKey: "secret2",
	}
	require.NoError(t, s.Write(p))

	creds, err := ini.Load(s.CredentialsPath())
	require.NoError(t, err)
	sec := creds.Section("tempfox-asia-test")
	assert.Equal(t, "AKIA12345678ABCDEFG", sec.Key("aws_access_key_id").String())
	assert.False(t, sec.HasKey("aws_session_token"))
}

func TestWritePreservesUnrelatedProfiles(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Write(testProfile("tempfox-asia-aaa")))
	require.NoError(t, s.Write(testProfile("tempfox-asia-bbb")))

	creds, err := ini.Load(s.CredentialsPath())
	require.NoError(t, err)
	assert.Equal(t, "ASIA12345678ABCDEFG", creds.Section("tempfox-asia-aaa").Key("aws_access_key_id").String())
	assert.Equal(t, "ASIA12345678ABCDEFG", creds.Section("tempfox-asia-bbb").Key("aws_access_key_id").String())

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"tempfox-asia-aaa", "tempfox-asia-bbb"}, names)
}

func TestWritePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}

	s := testStore(t)
	require.NoError(t, s.Write(testProfile("tempfox-asia-test")))

	for _, path := range []string{s.CredentialsPath(), s.ConfigPath()} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), path)
	}

	info, err := os.Stat(s.Dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestListIncludesConfigOnlyProfiles(t *testing.T) {
	s := testStore(t)
	require.NoError(t, os.MkdirAll(s.Dir, 0o700))
	require.NoError(t, os.WriteFile(s.ConfigPath(), []byte("[profile external]\nregion = eu-west-1\n\n[default]\nregion = us-east-1\n"), 0o600))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"external", "default"}, names)
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	s := testStore(t)
	require.NoError(t, os.MkdirAll(s.Dir, 0o700))
	content := "[good-profile]\naws_access_key_id = AKIAEXAMPLE\n<<<garbage line>>>\n[another]\naws_access_key_id = AKIAOTHER\n"
	require.NoError(t, os.WriteFile(s.CredentialsPath(), []byte(content), 0o600))

	names, err := s.List()
	require.NoError(t, err)
	assert.Contains(t, names, "good-profile")
	assert.Contains(t, names, "another")

	// Writing must keep what survived parsing.
	require.NoError(t, s.Write(testProfile("tempfox-asia-new")))
	creds, err := ini.Load(s.CredentialsPath())
	require.NoError(t, err)
	assert.Equal(t, "AKIAEXAMPLE", creds.Section("good-profile").Key("aws_access_key_id").String())
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Write(testProfile("tempfox-asia-aaa")))
	require.NoError(t, s.Write(testProfile("tempfox-asia-bbb")))

	require.NoError(t, s.Delete("tempfox-asia-aaa"))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"tempfox-asia-bbb"}, names)
}

func TestCleanupOnlyRemovesManagedProfiles(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Write(testProfile("tempfox-asia-aaa")))
	require.NoError(t, s.Write(testProfile("tempfox-akia-bbb")))
	require.NoError(t, s.Write(testProfile("personal")))

	removed, err := s.Cleanup(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"personal"}, names)
}

func TestCleanupWithFilter(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Write(testProfile("tempfox-asia-aaa")))
	require.NoError(t, s.Write(testProfile("tempfox-akia-bbb")))

	removed, err := s.Cleanup(func(name string) bool { return name == "tempfox-akia-bbb" })
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.True(t, s.Exists("tempfox-asia-aaa"))
}

func TestCleanupEmptyStore(t *testing.T) {
	s := testStore(t)
	removed, err := s.Cleanup(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestGenerateProfileName(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	name := GenerateProfileName("AKIA12345678ABCDEFG", credential.KeyTypeLongTerm, now)
	assert.True(t, len(name) > len(Prefix))
	assert.Contains(t, name, "tempfox-akia-")
	assert.Equal(t, "tempfox-akia-8ABCDEFG-20260314_150926", name)

	name = GenerateProfileName("ASIA12345678ABCDEFG", credential.KeyTypeTemporary, now)
	assert.Contains(t, name, "tempfox-asia-")

	// Short keys are used whole.
	name = GenerateProfileName("ASIA", credential.KeyTypeTemporary, now)
	assert.Equal(t, "tempfox-asia-ASIA-20260314_150926", name)
}

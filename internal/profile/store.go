// Package profile persists named credential profiles in the provider's
// standard two-file layout: ~/.aws/credentials for key material and
// ~/.aws/config for region and output format.
package profile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/alfdav/tempfox/internal/credential"
)

// Prefix marks every profile this tool creates, so listing and cleanup never
// touch profiles owned by other tools.
const Prefix = "tempfox-"

var (
	ErrPermissionDenied = errors.New("permission denied on profile store")
	ErrCorruptStore     = errors.New("profile store is malformed")
)

// Profile bundles a credential with its regional configuration under a name.
type Profile struct {
	Name       string
	Credential credential.Credential
	Region     string
	Output     string
}

// Store owns the on-disk profile data under Dir. Writes use a
// read-merge-write discipline keyed by section name, followed by an atomic
// replace, so unrelated profiles survive both crashes and concurrent edits.
type Store struct {
	Dir string
}

// DefaultDir returns the provider's home-relative configuration directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".aws")
}

func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Store{Dir: dir}
}

func (s *Store) CredentialsPath() string { return filepath.Join(s.Dir, "credentials") }
func (s *Store) ConfigPath() string      { return filepath.Join(s.Dir, "config") }

var loadOptions = ini.LoadOptions{
	Loose:                   true,
	SkipUnrecognizableLines: true,
}

// load parses one store file. A missing file yields an empty document;
// a file that cannot be parsed at all is reported as corrupt so callers never
// clobber data they could not read.
func (s *Store) load(path string) (*ini.File, error) {
	f, err := ini.LoadSources(loadOptions, path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptStore, path, err)
	}
	return f, nil
}

// configSection maps a profile name onto its section header in the config
// file, which prefixes every profile except default.
func configSection(name string) string {
	if name == "default" {
		return "default"
	}
	return "profile " + name
}

// Write creates or updates the named profile in both files. Existing
// unrelated sections are preserved.
func (s *Store) Write(p Profile) error {
	if p.Name == "" {
		return errors.New("profile name must not be empty")
	}

	creds, err := s.load(s.CredentialsPath())
	if err != nil {
		return err
	}
	conf, err := s.load(s.ConfigPath())
	if err != nil {
		return err
	}

	sec, err := creds.NewSection(p.Name)
	if err != nil {
		return fmt.Errorf("failed to create section %q: %w", p.Name, err)
	}
	sec.Key("aws_access_key_id").SetValue(p.Credential.AccessKeyID)
	sec.Key("aws_secret_access_key").SetValue(p.Credential.SecretAccessKey)
	if p.Credential.SessionToken != "" {
		sec.Key("aws_session_token").SetValue(p.Credential.SessionToken)
	} else {
		// Stale tokens from a previous temporary credential must not
		// shadow a long-term key.
		sec.DeleteKey("aws_session_token")
	}

	confSec, err := conf.NewSection(configSection(p.Name))
	if err != nil {
		return fmt.Errorf("failed to create section %q: %w", configSection(p.Name), err)
	}
	if p.Region != "" {
		confSec.Key("region").SetValue(p.Region)
	}
	if p.Output != "" {
		confSec.Key("output").SetValue(p.Output)
	}

	if err := s.saveAtomic(creds, s.CredentialsPath()); err != nil {
		return err
	}
	return s.saveAtomic(conf, s.ConfigPath())
}

// saveAtomic writes the document to a temporary file with owner-only
// permissions and renames it into place.
func (s *Store) saveAtomic(f *ini.File, path string) error {
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, s.Dir)
		}
		return fmt.Errorf("failed to create %s: %w", s.Dir, err)
	}

	tmp, err := os.CreateTemp(s.Dir, filepath.Base(path)+".tmp-")
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, s.Dir)
		}
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions on %s: %w", tmpPath, err)
	}
	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// List returns every profile name across both files, in store order:
// credentials-file sections first, then config-only sections.
func (s *Store) List() ([]string, error) {
	creds, err := s.load(s.CredentialsPath())
	if err != nil {
		if errors.Is(err, ErrCorruptStore) {
			slog.Warn("skipping malformed credentials file", "error", err)
			creds = ini.Empty()
		} else {
			return nil, err
		}
	}
	conf, err := s.load(s.ConfigPath())
	if err != nil {
		if errors.Is(err, ErrCorruptStore) {
			slog.Warn("skipping malformed config file", "error", err)
			conf = ini.Empty()
		} else {
			return nil, err
		}
	}

	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name == "" || name == ini.DefaultSection || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}

	for _, sec := range creds.SectionStrings() {
		add(sec)
	}
	for _, sec := range conf.SectionStrings() {
		if after, ok := strings.CutPrefix(sec, "profile "); ok {
			add(after)
		} else if sec == "default" {
			add("default")
		}
	}
	return names, nil
}

// Managed returns the profiles this tool created, identified by prefix.
// IsManaged reports whether the name carries the managed-profile prefix.
func IsManaged(name string) bool {
	return strings.HasPrefix(name, Prefix)
}

func (s *Store) Managed() ([]string, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var managed []string
	for _, name := range all {
		if IsManaged(name) {
			managed = append(managed, name)
		}
	}
	return managed, nil
}

// Exists reports whether the named profile is present in either file.
func (s *Store) Exists(name string) bool {
	all, err := s.List()
	if err != nil {
		return false
	}
	for _, n := range all {
		if n == name {
			return true
		}
	}
	return false
}

// Delete removes the named profile from both files.
func (s *Store) Delete(name string) error {
	creds, err := s.load(s.CredentialsPath())
	if err != nil {
		return err
	}
	conf, err := s.load(s.ConfigPath())
	if err != nil {
		return err
	}

	creds.DeleteSection(name)
	conf.DeleteSection(configSection(name))

	if err := s.saveAtomic(creds, s.CredentialsPath()); err != nil {
		return err
	}
	return s.saveAtomic(conf, s.ConfigPath())
}

// Cleanup deletes managed profiles, optionally narrowed by filter, and
// returns how many were removed. Both files are rewritten once.
func (s *Store) Cleanup(filter func(name string) bool) (int, error) {
	managed, err := s.Managed()
	if err != nil {
		return 0, err
	}

	creds, err := s.load(s.CredentialsPath())
	if err != nil {
		return 0, err
	}
	conf, err := s.load(s.ConfigPath())
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, name := range managed {
		if filter != nil && !filter(name) {
			continue
		}
		creds.DeleteSection(name)
		conf.DeleteSection(configSection(name))
		removed++
	}
	if removed == 0 {
		return 0, nil
	}

	if err := s.saveAtomic(creds, s.CredentialsPath()); err != nil {
		return 0, err
	}
	if err := s.saveAtomic(conf, s.ConfigPath()); err != nil {
		return 0, err
	}
	return removed, nil
}

// GenerateProfileName derives a unique name from the fixed prefix, the
// lowercase key-type marker, the key's last characters, and a timestamp.
func GenerateProfileName(accessKeyID string, t credential.KeyType, now time.Time) string {
	suffix := accessKeyID
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return fmt.Sprintf("%s%s-%s-%s", Prefix, strings.ToLower(t.Marker()), suffix, now.Format("20060102_150405"))
}

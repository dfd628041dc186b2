package credential

import (
	"errors"
	"fmt"
	"strings"
)

// Access key id prefixes issued by IAM and STS respectively.
const (
	LongTermPrefix  = "AKIA"
	TemporaryPrefix = "ASIA"
)

// KeyType distinguishes durable IAM user keys from STS-issued session keys.
type KeyType int

const (
	KeyTypeUnknown KeyType = iota
	KeyTypeLongTerm
	KeyTypeTemporary
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeLongTerm:
		return "long-term"
	case KeyTypeTemporary:
		return "temporary"
	default:
		return "unknown"
	}
}

// Marker returns the access key prefix associated with the key type.
func (t KeyType) Marker() string {
	switch t {
	case KeyTypeLongTerm:
		return LongTermPrefix
	case KeyTypeTemporary:
		return TemporaryPrefix
	default:
		return ""
	}
}

var (
	ErrInvalidFormat       = errors.New("access key id does not match a known prefix")
	ErrMissingSessionToken = errors.New("session token is required for temporary credentials")
)

// ClassifyKey determines the key type from the access key id prefix.
// Keys matching neither prefix fail with ErrInvalidFormat so the caller can
// warn instead of silently treating them as long-term.
func ClassifyKey(accessKeyID string) (KeyType, error) {
	switch {
	case strings.HasPrefix(accessKeyID, LongTermPrefix):
		return KeyTypeLongTerm, nil
	case strings.HasPrefix(accessKeyID, TemporaryPrefix):
		return KeyTypeTemporary, nil
	default:
		return KeyTypeUnknown, fmt.Errorf("%w: expected %s or %s prefix", ErrInvalidFormat, LongTermPrefix, TemporaryPrefix)
	}
}

// ValidateSessionToken reports whether the token satisfies the key type.
// Long-term keys never need one; temporary keys need a non-blank token.
func ValidateSessionToken(t KeyType, sessionToken string) bool {
	if t != KeyTypeTemporary {
		return true
	}
	return strings.TrimSpace(sessionToken) != ""
}

// Credential is a complete set of key material for one AWS principal.
// Values exist only in memory unless explicitly persisted to a profile and
// must never be logged.
type Credential struct {
	Type            KeyType
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Validate checks the invariants a credential must hold before any network
// call is attempted.
func (c Credential) Validate() error {
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return errors.New("access key id and secret access key are required")
	}
	if !ValidateSessionToken(c.Type, c.SessionToken) {
		return ErrMissingSessionToken
	}
	return nil
}

// Environ returns base with the provider-standard credential variables
// replaced by this credential's values. Inherited AWS_* credential entries
// are stripped first so an expired token in the parent environment cannot
// shadow fresh key material. Credentials are handed to subprocesses through
// the environment only, never via command-line arguments.
func (c Credential) Environ(base []string) []string {
	env := make([]string, 0, len(base)+3)
	for _, kv := range base {
		if strings.HasPrefix(kv, "AWS_ACCESS_KEY_ID=") ||
			strings.HasPrefix(kv, "AWS_SECRET_ACCESS_KEY=") ||
			strings.HasPrefix(kv, "AWS_SESSION_TOKEN=") {
			continue
		}
		env = append(env, kv)
	}
	env = append(env,
		"AWS_ACCESS_KEY_ID="+c.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY="+c.SecretAccessKey,
	)
	if c.SessionToken != "" {
		env = append(env, "AWS_SESSION_TOKEN="+c.SessionToken)
	}
	return env
}

// MaskKeyID renders an access key id safe for log output.
func MaskKeyID(accessKeyID string) string {
	if len(accessKeyID) <= 8 {
		return strings.Repeat("*", len(accessKeyID))
	}
	return accessKeyID[:4] + strings.Repeat("*", len(accessKeyID)-8) + accessKeyID[len(accessKeyID)-4:]
}

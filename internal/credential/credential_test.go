package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    KeyType
		wantErr bool
	}{
		{"long-term key", "AKIA12345678ABCDEFG", KeyTypeLongTerm, false},
		{"temporary key", "ASIA12345678ABCDEFG", KeyTypeTemporary, false},
		{"bare long-term prefix", "AKIA", KeyTypeLongTerm, false},
		{"unknown prefix", "AIDA12345678ABCDEFG", KeyTypeUnknown, true},
		{"lowercase prefix", "akia12345678", KeyTypeUnknown, true},
		{"empty", "", KeyTypeUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClassifyKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFormat)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateSessionToken(t *testing.T) {
	assert.True(t, ValidateSessionToken(KeyTypeLongTerm, ""))
	assert.True(t, ValidateSessionToken(KeyTypeLongTerm, "anything"))
	assert.False(t, ValidateSessionToken(KeyTypeTemporary, ""))
	assert.False(t, ValidateSessionToken(KeyTypeTemporary, "  "))
	assert.False(t, ValidateSessionToken(KeyTypeTemporary, "\t\n"))
	assert.True(t, ValidateSessionToken(KeyTypeTemporary, "FwoGZXIvYXdzEBc"))
}

func TestCredentialValidate(t *testing.T) {
	c := Credential{
		Type:            KeyTypeTemporary,
		AccessKeyID:     "ASIA12345678ABCDEFG",
		SecretAccessKey: "secret",
	}
	assert.ErrorIs(t, c.Validate(), ErrMissingSessionToken)

	c.SessionToken = "token"
	assert.NoError(t, c.Validate())

	longTerm := Credential{
		Type:            KeyTypeLongTerm,
		AccessKeyID:     "AKIA12345678ABCDEFG",
		SecretAccessKey: "secret",
	}
	assert.NoError(t, longTerm.Validate())

	assert.Error(t, Credential{Type: KeyTypeLongTerm}.Validate())
}

func TestEnviron(t *testing.T) {
	c := Credential{
		Type:            KeyTypeTemporary,
		AccessKeyID:     "ASIAEXAMPLE",
		SecretAccessKey: "secret",
		SessionToken:    "token",
	}

	env := c.Environ([]string{"PATH=/usr/bin"})
	assert.Contains(t, env, "PATH=/usr/bin")
	assert.Contains(t, env, "AWS_ACCESS_KEY_ID=ASIAEXAMPLE")
	assert.Contains(t, env, "AWS_SECRET_ACCESS_KEY=secret")
	assert.Contains(t, env, "AWS_SESSION_TOKEN=token")

	// No session token variable for long-term keys.
	c = Credential{Type: KeyTypeLongTerm, AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "secret"}
	for _, kv := range c.Environ(nil) {
		assert.NotContains(t, kv, "AWS_SESSION_TOKEN")
	}
}

func TestEnvironReplacesInheritedCredentials(t *testing.T) {
	base := []string{
		"PATH=/usr/bin",
		"AWS_ACCESS_KEY_ID=ASIAOLDOLDOLDOLDOLD1",
		"AWS_SECRET_ACCESS_KEY=oldsecret",
		"AWS_SESSION_TOKEN=stale-expired-token",
		"AWS_REGION=us-east-1",
	}

	longTerm := Credential{Type: KeyTypeLongTerm, AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "fresh"}
	env := longTerm.Environ(base)
	assert.Contains(t, env, "PATH=/usr/bin")
	assert.Contains(t, env, "AWS_REGION=us-east-1")
	assert.Contains(t, env, "AWS_ACCESS_KEY_ID=AKIAEXAMPLE")
	assert.Contains(t, env, "AWS_SECRET_ACCESS_KEY=fresh")
	for _, kv := range env {
		assert.False(t, strings.HasPrefix(kv, "AWS_SESSION_TOKEN="),
			"stale session token must not reach the subprocess: %s", kv)
	}

	temp := Credential{Type: KeyTypeTemporary, AccessKeyID: "ASIAEXAMPLE", SecretAccessKey: "fresh", SessionToken: "freshtoken"}
	env = temp.Environ(base)
	assert.Contains(t, env, "AWS_SESSION_TOKEN=freshtoken")
	assert.NotContains(t, env, "AWS_SESSION_TOKEN=stale-expired-token")
	assert.NotContains(t, env, "AWS_ACCESS_KEY_ID=ASIAOLDOLDOLDOLDOLD1")
}

func TestMaskKeyID(t *testing.T) {
	assert.Equal(t, "AKIA***********DEFG", MaskKeyID("AKIA12345678ABCDEFG"))
	assert.Equal(t, "****", MaskKeyID("AKIA"))
	assert.Equal(t, "", MaskKeyID(""))
}

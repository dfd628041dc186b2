// Package flow drives the credential lifecycle: collect, validate, verify,
// optionally persist, then scan. The flow is an explicit state machine with
// bounded retries; expired-token handling signals upward through return
// values and never re-enters the entry point.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alfdav/tempfox/internal/credential"
	"github.com/alfdav/tempfox/internal/identity"
	"github.com/alfdav/tempfox/internal/profile"
	"github.com/alfdav/tempfox/internal/scan"
	"github.com/alfdav/tempfox/internal/ui"
)

// State enumerates the positions of the lifecycle machine.
type State int

const (
	StateStart State = iota
	StateCollectType
	StateCollectCredentials
	StateValidate
	StateVerifyIdentity
	StateExpiredRetry
	StatePersistPrompt
	StatePersist
	StateRunScan
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateCollectType:
		return "collect-type"
	case StateCollectCredentials:
		return "collect-credentials"
	case StateValidate:
		return "validate"
	case StateVerifyIdentity:
		return "verify-identity"
	case StateExpiredRetry:
		return "expired-retry"
	case StatePersistPrompt:
		return "persist-prompt"
	case StatePersist:
		return "persist"
	case StateRunScan:
		return "run-scan"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

const (
	// DefaultMaxRetries bounds how often expired credentials may be
	// re-entered before the flow gives up.
	DefaultMaxRetries = 3
	// maxPromptAttempts bounds re-prompts on invalid interactive input.
	maxPromptAttempts = 3
)

// Scanner launches the security scan once identity is verified.
type Scanner interface {
	Run(ctx context.Context, env scan.EnvProvider, accountID string) (*scan.Result, error)
}

// ProfileStore is the subset of the profile store the flow needs.
type ProfileStore interface {
	Write(p profile.Profile) error
	List() ([]string, error)
	Managed() ([]string, error)
	Exists(name string) bool
}

// Outcome summarizes a completed or aborted run.
type Outcome struct {
	State       State
	ExitCode    int
	Identity    *identity.Result
	ProfileName string
	Scan        *scan.Result
}

// Controller orchestrates one interactive session. Every collaborator is
// injected so the machine can be exercised without a terminal, a network, or
// a real scanner.
type Controller struct {
	Prompter ui.Prompter
	Verifier identity.Verifier
	Store    ProfileStore
	Scanner  Scanner

	// Getenv supplies environment lookups; defaults to an empty
	// environment when nil so tests opt in explicitly.
	Getenv func(string) string

	MaxRetries int
	NoProfile  bool
	AutoRenew  bool
	// ScanOnly reuses environment-supplied credentials without the
	// interactive collection round.
	ScanOnly bool

	Region       string
	Regions      []string
	OutputFormat string

	Now func() time.Time
}

func (c *Controller) getenv(key string) string {
	if c.Getenv == nil {
		return ""
	}
	return c.Getenv(key)
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Controller) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return DefaultMaxRetries
}

// Run executes the lifecycle and returns the outcome plus any terminal
// error. The outcome always carries a process exit code.
func (c *Controller) Run(ctx context.Context) (*Outcome, error) {
	out := &Outcome{State: StateStart}

	var (
		keyType credential.KeyType
		cred    credential.Credential
		pending *profile.Profile
		retries int
	)

	st := StateCollectType
	for {
		slog.Debug("lifecycle transition", "state", st.String())
		out.State = st

		switch st {
		case StateCollectType:
			kt, err := c.collectType()
			if err != nil {
				return c.abort(out, err)
			}
			keyType = kt
			st = StateCollectCredentials

		case StateCollectCredentials:
			cr, err := c.collectCredentials(keyType)
			if err != nil {
				return c.abort(out, err)
			}
			cred = cr
			st = StateValidate

		case StateValidate:
			if err := c.validate(&cred); err != nil {
				return c.abort(out, err)
			}
			st = StateVerifyIdentity

		case StateVerifyIdentity:
			res, err := c.Verifier.Verify(ctx, cred)
			if err == nil {
				out.Identity = res
				slog.Info("identity verified",
					"account", res.Account,
					"arn", res.Arn,
					"user_id", res.UserID,
				)
				st = StatePersistPrompt
				break
			}
			var verr *identity.VerifyError
			if errors.As(err, &verr) && verr.Kind == identity.KindAuthExpired {
				st = StateExpiredRetry
				break
			}
			// AuthInvalid, ToolError and ToolTimeout are terminal for
			// this run.
			return c.abort(out, err)

		case StateExpiredRetry:
			retries++
			if retries >= c.maxRetries() {
				return c.abort(out, fmt.Errorf("credentials still expired after %d attempts", retries))
			}
			slog.Warn("AWS token has expired; obtain new temporary credentials from your identity provider")
			retry := c.AutoRenew
			if !retry {
				ok, err := c.Prompter.Confirm("Would you like to enter new credentials?")
				if err != nil {
					return c.abort(out, err)
				}
				retry = ok
			}
			if !retry {
				// Clean decline: non-zero exit, no error, no unwind.
				slog.Info("exiting at user request")
				out.State = StateAborted
				out.ExitCode = 1
				return out, nil
			}
			st = StateCollectCredentials

		case StatePersistPrompt:
			if c.NoProfile {
				slog.Info("profile creation skipped")
				st = StateRunScan
				break
			}
			p, err := c.persistPrompt(cred, keyType)
			if err != nil {
				return c.abort(out, err)
			}
			if p == nil {
				slog.Info("credentials will only be used for this session")
				st = StateRunScan
				break
			}
			pending = p
			st = StatePersist

		case StatePersist:
			if err := c.Store.Write(*pending); err != nil {
				// Persistence failure is terminal for this step only;
				// the scan may still proceed.
				slog.Error("failed to save profile", "name", pending.Name, "error", err)
				ok, cerr := c.Prompter.Confirm("Profile could not be saved. Continue with the scan anyway?")
				if cerr != nil {
					return c.abort(out, cerr)
				}
				if !ok {
					return c.abort(out, fmt.Errorf("profile persistence failed: %w", err))
				}
			} else {
				out.ProfileName = pending.Name
				slog.Info("profile saved", "name", pending.Name)
				c.printUsage(pending.Name)
			}
			st = StateRunScan

		case StateRunScan:
			res, err := c.Scanner.Run(ctx, cred, out.Identity.Account)
			out.Scan = res
			if err != nil {
				slog.Error("scan failed", "error", err)
				var exitErr *scan.ExitError
				if errors.As(err, &exitErr) {
					out.ExitCode = exitErr.Code
				} else {
					out.ExitCode = 1
				}
				// Outcome stays in the scan state so the reported
				// terminal state distinguishes a failed scan from done.
				return out, nil
			}
			st = StateDone

		case StateDone:
			out.State = StateDone
			out.ExitCode = 0
			return out, nil
		}
	}
}

func (c *Controller) abort(out *Outcome, err error) (*Outcome, error) {
	out.State = StateAborted
	out.ExitCode = 1
	return out, err
}

// collectType determines the key type, preferring the environment-supplied
// key's prefix over an interactive round.
func (c *Controller) collectType() (credential.KeyType, error) {
	if key := c.getenv("AWS_ACCESS_KEY_ID"); key != "" {
		if kt, err := credential.ClassifyKey(key); err == nil {
			slog.Info("access key type inferred from environment", "type", kt.String())
			return kt, nil
		}
		slog.Warn("environment access key has an unrecognized prefix", "access_key", credential.MaskKeyID(key))
	}
	if c.ScanOnly {
		return 0, errors.New("scan-only mode requires credentials in the environment")
	}

	for attempt := 0; attempt < maxPromptAttempts; attempt++ {
		answer, err := c.Prompter.Input("Are you using an AKIA (long-term) or ASIA (temporary) access key? (AKIA/ASIA)")
		if err != nil {
			return 0, err
		}
		switch strings.ToUpper(strings.TrimSpace(answer)) {
		case credential.LongTermPrefix:
			return credential.KeyTypeLongTerm, nil
		case credential.TemporaryPrefix:
			return credential.KeyTypeTemporary, nil
		}
		slog.Warn("invalid input, enter either AKIA or ASIA")
	}
	return 0, ui.ErrTooManyAttempts
}

// collectCredentials gathers the key material, offering reuse of each
// environment-supplied value individually.
func (c *Controller) collectCredentials(keyType credential.KeyType) (credential.Credential, error) {
	cred := credential.Credential{Type: keyType}

	id, err := c.credentialValue("AWS_ACCESS_KEY_ID", false)
	if err != nil {
		return cred, err
	}
	cred.AccessKeyID = strings.TrimSpace(id)

	secret, err := c.credentialValue("AWS_SECRET_ACCESS_KEY", true)
	if err != nil {
		return cred, err
	}
	cred.SecretAccessKey = strings.TrimSpace(secret)

	if keyType == credential.KeyTypeTemporary {
		token, err := c.credentialValue("AWS_SESSION_TOKEN", true)
		if err != nil {
			return cred, err
		}
		cred.SessionToken = strings.TrimSpace(token)
	} else {
		slog.Info("session token not required for AKIA (long-term) credentials")
	}

	return cred, nil
}

// credentialValue resolves one field: environment reuse when offered and
// accepted, interactive entry otherwise. Secret fields never echo.
func (c *Controller) credentialValue(envVar string, secret bool) (string, error) {
	if existing := c.getenv(envVar); existing != "" {
		if c.ScanOnly {
			return existing, nil
		}
		slog.Info("found existing value in environment", "variable", envVar)
		ok, err := c.Prompter.Confirm(fmt.Sprintf("Would you like to use the existing %s?", envVar))
		if err != nil {
			return "", err
		}
		if ok {
			return existing, nil
		}
	}

	label := "Enter your " + envVar
	if secret {
		return c.Prompter.Secret(label)
	}
	return c.Prompter.Input(label)
}

// validate applies the format checks. A prefix mismatch warns and asks for
// an explicit override; a missing session token re-prompts that field only.
func (c *Controller) validate(cred *credential.Credential) error {
	kt, err := credential.ClassifyKey(cred.AccessKeyID)
	if err != nil || kt != cred.Type {
		slog.Warn("access key does not match the expected format",
			"expected_prefix", cred.Type.Marker(),
			"access_key", credential.MaskKeyID(cred.AccessKeyID),
		)
		ok, cerr := c.Prompter.Confirm("Do you want to proceed anyway?")
		if cerr != nil {
			return cerr
		}
		if !ok {
			return fmt.Errorf("aborted on access key format mismatch: %w", credential.ErrInvalidFormat)
		}
	}

	for attempt := 0; attempt < maxPromptAttempts; attempt++ {
		if credential.ValidateSessionToken(cred.Type, cred.SessionToken) {
			break
		}
		slog.Warn("a session token is required for temporary credentials")
		token, err := c.Prompter.Secret("Enter your AWS_SESSION_TOKEN")
		if err != nil {
			return err
		}
		cred.SessionToken = strings.TrimSpace(token)
	}
	return cred.Validate()
}

// persistPrompt walks the save dialog: existing-profile overview, save y/n,
// naming choice, region choice. Returns nil when the user declines.
func (c *Controller) persistPrompt(cred credential.Credential, keyType credential.KeyType) (*profile.Profile, error) {
	c.showExistingProfiles()

	save, err := c.Prompter.Confirm("Save credentials to AWS profile?")
	if err != nil {
		return nil, err
	}
	if !save {
		return nil, nil
	}

	name, err := c.chooseProfileName(cred, keyType)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, nil
	}

	region, err := c.chooseRegion()
	if err != nil {
		return nil, err
	}

	output := c.OutputFormat
	if output == "" {
		output = "json"
	}

	return &profile.Profile{
		Name:       name,
		Credential: cred,
		Region:     region,
		Output:     output,
	}, nil
}

func (c *Controller) showExistingProfiles() {
	all, err := c.Store.List()
	if err != nil {
		slog.Warn("could not read existing profiles", "error", err)
		return
	}
	if len(all) == 0 {
		slog.Info("no existing AWS profiles found")
		return
	}
	managed, _ := c.Store.Managed()
	managedSet := make(map[string]bool, len(managed))
	for _, name := range managed {
		managedSet[name] = true
	}
	slog.Info("existing AWS profiles", "count", len(all))
	for _, name := range all {
		if managedSet[name] {
			slog.Info("  profile", "name", name, "managed", true)
		} else {
			slog.Info("  profile", "name", name)
		}
	}
}

func (c *Controller) chooseProfileName(cred credential.Credential, keyType credential.KeyType) (string, error) {
	choice, err := c.Prompter.Select("Profile naming", []string{
		"Auto-generate unique name (recommended)",
		"Custom profile name",
		"Set as default profile",
	})
	if err != nil {
		return "", err
	}

	switch choice {
	case 0:
		return profile.GenerateProfileName(cred.AccessKeyID, keyType, c.now()), nil
	case 2:
		if c.Store.Exists("default") {
			slog.Warn("a default profile already exists")
			ok, err := c.Prompter.Confirm("Overwrite existing default profile?")
			if err != nil {
				return "", err
			}
			if !ok {
				return "", nil
			}
		}
		return "default", nil
	}

	for attempt := 0; attempt < maxPromptAttempts; attempt++ {
		name, err := c.Prompter.Input("Enter custom profile name")
		if err != nil {
			return "", err
		}
		name = strings.TrimSpace(name)
		if name == "" {
			slog.Warn("profile name cannot be empty")
			continue
		}
		if c.Store.Exists(name) {
			slog.Warn("profile already exists", "name", name)
			ok, err := c.Prompter.Confirm("Overwrite existing profile?")
			if err != nil {
				return "", err
			}
			if !ok {
				continue
			}
		}
		return name, nil
	}
	return "", ui.ErrTooManyAttempts
}

func (c *Controller) chooseRegion() (string, error) {
	options := make([]string, 0, len(c.Regions)+2)
	if c.Region != "" {
		options = append(options, fmt.Sprintf("Use current region: %s (detected)", c.Region))
	}
	options = append(options, c.Regions...)
	options = append(options, "Skip region configuration")

	idx, err := c.Prompter.Select("AWS region", options)
	if err != nil {
		if errors.Is(err, ui.ErrTooManyAttempts) {
			return "", nil
		}
		return "", err
	}

	if c.Region != "" {
		if idx == 0 {
			return c.Region, nil
		}
		idx--
	}
	if idx < len(c.Regions) {
		return c.Regions[idx], nil
	}
	return "", nil
}

func (c *Controller) printUsage(name string) {
	if name == "default" {
		slog.Info("profile ready", "try", "aws sts get-caller-identity")
		return
	}
	slog.Info("profile ready",
		"try", fmt.Sprintf("aws --profile %s sts get-caller-identity", name),
		"scan", fmt.Sprintf("cloudfox aws --profile %s all-checks", name),
	)
}

// Package identity verifies credential material against the STS
// get-caller-identity call and classifies failures from the diagnostic text
// the call produces.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/alfdav/tempfox/internal/credential"
)

// Result is the successful identity payload.
type Result struct {
	Account string `json:"Account"`
	Arn     string `json:"Arn"`
	UserID  string `json:"UserId"`
}

// FailureKind classifies why a verification attempt failed.
type FailureKind int

const (
	// KindAuthExpired marks an expired session token. Recoverable by
	// collecting fresh credentials.
	KindAuthExpired FailureKind = iota
	// KindAuthInvalid marks credentials the provider rejected outright.
	KindAuthInvalid
	// KindToolError marks a failure of the identity tool itself, such as a
	// missing binary.
	KindToolError
	// KindToolTimeout marks a call that exceeded its deadline.
	KindToolTimeout
)

func (k FailureKind) String() string {
	switch k {
	case KindAuthExpired:
		return "auth expired"
	case KindAuthInvalid:
		return "auth invalid"
	case KindToolTimeout:
		return "tool timeout"
	default:
		return "tool error"
	}
}

// VerifyError carries the failure classification, the subprocess exit code
// when one exists, and a truncated diagnostic excerpt. The raw environment is
// never included.
type VerifyError struct {
	Kind     FailureKind
	ExitCode int
	Message  string
}

func (e *VerifyError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("identity check failed (%s, exit %d): %s", e.Kind, e.ExitCode, e.Message)
	}
	return fmt.Sprintf("identity check failed (%s): %s", e.Kind, e.Message)
}

// Verifier checks that a credential maps to a real principal.
type Verifier interface {
	Verify(ctx context.Context, cred credential.Credential) (*Result, error)
}

// Marker lists matched against diagnostic text. Upstream error wording
// changes over time, so callers may override these through configuration.
var (
	DefaultExpiredMarkers = []string{
		"token has expired",
		"security token expired",
		"SecurityTokenExpired",
		"ExpiredToken",
	}
	DefaultAuthMarkers = []string{
		"InvalidClientTokenId",
		"SignatureDoesNotMatch",
		"AuthFailure",
		"AccessDenied",
		"UnrecognizedClientException",
		"security token included in the request is invalid",
	}
)

// Classifier maps failure diagnostics onto a FailureKind by substring match.
type Classifier struct {
	expiredMarkers []string
	authMarkers    []string
}

// NewClassifier builds a classifier, falling back to the default marker sets
// for any list left empty.
func NewClassifier(expiredMarkers, authMarkers []string) Classifier {
	if len(expiredMarkers) == 0 {
		expiredMarkers = DefaultExpiredMarkers
	}
	if len(authMarkers) == 0 {
		authMarkers = DefaultAuthMarkers
	}
	return Classifier{expiredMarkers: expiredMarkers, authMarkers: authMarkers}
}

// Classify turns a non-zero exit and its diagnostic text into a VerifyError.
// Expired-token markers win over auth markers; anything unmatched is treated
// as a tool problem rather than a credential problem.
func (c Classifier) Classify(exitCode int, diagnostic string) *VerifyError {
	kind := KindToolError
	lower := strings.ToLower(diagnostic)
	switch {
	case containsAny(lower, c.expiredMarkers):
		kind = KindAuthExpired
	case containsAny(lower, c.authMarkers):
		kind = KindAuthInvalid
	}
	return &VerifyError{Kind: kind, ExitCode: exitCode, Message: excerpt(diagnostic)}
}

func containsAny(lower string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

const maxExcerptLen = 500

// excerpt trims and bounds diagnostic text before it reaches error values or
// the user.
func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxExcerptLen {
		s = s[:maxExcerptLen] + "..."
	}
	return s
}

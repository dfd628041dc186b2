package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/alfdav/tempfox/internal/credential"
)

// DefaultBinary is the identity tool invoked by CLIVerifier.
const DefaultBinary = "aws"

// CLIVerifier runs `aws sts get-caller-identity` as a subprocess with the
// credential exported into its environment and classifies any stderr output.
type CLIVerifier struct {
	// Binary is the path or name of the aws executable. Resolved via PATH
	// when left empty.
	Binary     string
	Timeout    time.Duration
	Classifier Classifier
}

// NewCLIVerifier resolves the aws binary up front so a missing tool surfaces
// as a named, actionable error rather than a failed exec.
func NewCLIVerifier(classifier Classifier, timeout time.Duration) (*CLIVerifier, error) {
	path, err := exec.LookPath(DefaultBinary)
	if err != nil {
		return nil, &VerifyError{Kind: KindToolError, Message: "aws CLI not found in PATH"}
	}
	return &CLIVerifier{Binary: path, Timeout: timeout, Classifier: classifier}, nil
}

func (v *CLIVerifier) Verify(ctx context.Context, cred credential.Credential) (*Result, error) {
	binary := v.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	if v.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, binary, "sts", "get-caller-identity", "--output", "json")
	cmd.Env = cred.Environ(os.Environ())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("invoking identity check", "binary", binary, "access_key", credential.MaskKeyID(cred.AccessKeyID))
	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, &VerifyError{Kind: KindToolTimeout, Message: "identity check timed out"}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, v.Classifier.Classify(exitErr.ExitCode(), stderr.String())
		}
		return nil, &VerifyError{Kind: KindToolError, Message: excerpt(err.Error())}
	}

	var res Result
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &res); err != nil {
		return nil, &VerifyError{Kind: KindToolError, Message: "could not parse identity response"}
	}
	return &res, nil
}

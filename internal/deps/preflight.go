// Package deps verifies the external tools this CLI depends on are present.
// Installation is out of scope; a missing tool produces an actionable error
// naming it.
package deps

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const versionCheckTimeout = 10 * time.Second

// Tool names a required external binary and how to obtain it.
type Tool struct {
	Name        string
	VersionArgs []string
	InstallHint string
}

var (
	AWSCLI = Tool{
		Name:        "aws",
		VersionArgs: []string{"--version"},
		InstallHint: "https://docs.aws.amazon.com/cli/latest/userguide/getting-started-install.html",
	}
	CloudFox = Tool{
		Name:        "cloudfox",
		VersionArgs: []string{"--version"},
		InstallHint: "go install github.com/BishopFox/cloudfox@latest",
	}
)

// Check resolves the tool on PATH and probes its version. Returns the
// version line on success.
func Check(ctx context.Context, t Tool) (string, error) {
	path, err := exec.LookPath(t.Name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH (install: %s)", t.Name, t.InstallHint)
	}

	ctx, cancel := context.WithTimeout(ctx, versionCheckTimeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, path, t.VersionArgs...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		// Some tools report their version on --help only; presence on
		// PATH is the contract that matters here.
		slog.Debug("version probe failed", "tool", t.Name, "error", err)
		return t.Name + " (version unknown)", nil
	}

	version := strings.TrimSpace(strings.SplitN(out.String(), "\n", 2)[0])
	slog.Debug("tool present", "tool", t.Name, "version", version)
	return version, nil
}

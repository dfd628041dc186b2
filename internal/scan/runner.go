// Package scan launches the external CloudFox assessment against a verified
// account and manages the output files it leaves behind.
package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultBinary and DefaultArgs form the scan subprocess contract.
	DefaultBinary = "cloudfox"
	// DefaultRetain bounds how many output files are kept per format.
	DefaultRetain = 5

	outputPrefix  = "cloudfox_aws_"
	maxExcerptLen = 500
)

// DefaultArgs runs the full assessment suite.
var DefaultArgs = []string{"aws", "all-checks"}

// EnvProvider supplies the base environment for the subprocess; credentials
// are appended by the runner.
type EnvProvider interface {
	Environ(base []string) []string
}

// Result describes one scan invocation.
type Result struct {
	ExitCode      int
	TextPath      string
	JSONPath      string
	StderrExcerpt string
}

// ExitError reports a scan that ran but exited non-zero. The exit code and a
// trimmed stderr excerpt are always carried so failures are never silent.
type ExitError struct {
	Code    int
	Excerpt string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("scan exited with code %d: %s", e.Code, e.Excerpt)
}

// Runner invokes the scan tool as a subprocess. Credentials travel through
// the process environment, never through argv.
type Runner struct {
	Binary  string
	Args    []string
	WorkDir string
	Timeout time.Duration
	Retain  int

	// Now is injectable for deterministic output names in tests.
	Now func() time.Time
}

func NewRunner(binary string, args []string, workDir string, timeout time.Duration, retain int) *Runner {
	if binary == "" {
		binary = DefaultBinary
	}
	if len(args) == 0 {
		args = DefaultArgs
	}
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &Runner{Binary: binary, Args: args, WorkDir: workDir, Timeout: timeout, Retain: retain}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run prunes stale outputs, executes the scan, and writes the captured
// stdout as both a text file and a JSON file named after the account.
func (r *Runner) Run(ctx context.Context, env EnvProvider, accountID string) (*Result, error) {
	if accountID == "" {
		return nil, errors.New("account id is required for scan output naming")
	}

	if err := r.CleanupOldOutputs(); err != nil {
		slog.Warn("failed to prune old scan outputs", "error", err)
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Binary, r.Args...)
	cmd.Dir = r.WorkDir
	cmd.Env = env.Environ(os.Environ())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Info("running scan", "binary", r.Binary, "account", accountID)
	runErr := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan timed out after %s", r.Timeout)
	}

	base := fmt.Sprintf("%s%s_%s", outputPrefix, accountID, r.now().Format("20060102_150405"))
	res := &Result{
		TextPath: filepath.Join(r.WorkDir, base+".txt"),
		JSONPath: filepath.Join(r.WorkDir, base+".json"),
	}

	if err := r.writeOutputs(res, stdout.Bytes()); err != nil {
		return nil, err
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			res.StderrExcerpt = excerpt(stderr.String())
			return res, &ExitError{Code: res.ExitCode, Excerpt: res.StderrExcerpt}
		}
		return nil, fmt.Errorf("failed to run %s: %w", r.Binary, runErr)
	}

	slog.Info("scan completed", "text", res.TextPath, "json", res.JSONPath)
	return res, nil
}

// writeOutputs saves the raw text output and a JSON rendition. Output that
// is not already JSON is wrapped rather than dropped.
func (r *Runner) writeOutputs(res *Result, stdout []byte) error {
	if err := os.WriteFile(res.TextPath, stdout, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", res.TextPath, err)
	}

	var jsonOut []byte
	var parsed any
	if err := json.Unmarshal(stdout, &parsed); err == nil {
		jsonOut, _ = json.MarshalIndent(parsed, "", "  ")
	} else {
		jsonOut, _ = json.MarshalIndent(map[string]string{"raw_output": string(stdout)}, "", "  ")
	}
	if err := os.WriteFile(res.JSONPath, jsonOut, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", res.JSONPath, err)
	}
	return nil
}

// CleanupOldOutputs deletes all but the newest Retain output files per
// format extension. Safe to call with no outputs present.
func (r *Runner) CleanupOldOutputs() error {
	retain := r.Retain
	if retain <= 0 {
		retain = DefaultRetain
	}

	var firstErr error
	for _, ext := range []string{".txt", ".json"} {
		matches, err := filepath.Glob(filepath.Join(r.WorkDir, outputPrefix+"*"+ext))
		if err != nil {
			return err
		}

		type entry struct {
			path    string
			modTime time.Time
		}
		entries := make([]entry, 0, len(matches))
		for _, path := range matches {
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			entries = append(entries, entry{path: path, modTime: info.ModTime()})
		}

		sort.Slice(entries, func(i, j int) bool {
			return entries[i].modTime.After(entries[j].modTime)
		})

		for _, old := range entries[min(retain, len(entries)):] {
			slog.Debug("removing old scan output", "path", old.path)
			if err := os.Remove(old.path); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxExcerptLen {
		s = s[:maxExcerptLen] + "..."
	}
	return s
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alfdav/tempfox/internal/config"
	"github.com/alfdav/tempfox/internal/credential"
	"github.com/alfdav/tempfox/internal/deps"
	"github.com/alfdav/tempfox/internal/flow"
	"github.com/alfdav/tempfox/internal/identity"
	"github.com/alfdav/tempfox/internal/profile"
	"github.com/alfdav/tempfox/internal/scan"
	"github.com/alfdav/tempfox/internal/ui"
)

var (
	listProfilesFlag    bool
	cleanupProfilesFlag bool
	noProfileFlag       bool
	autoRenewFlag       bool
	cloudfoxFlag        bool
	sdkVerifyFlag       bool
	skipPreflightFlag   bool
	verboseFlag         bool
	regionFlag          string
	configPathFlag      string
)

func init() {
	rootCmd.Flags().BoolVar(&listProfilesFlag, "list-profiles", false, "List AWS profiles and exit")
	rootCmd.Flags().BoolVar(&cleanupProfilesFlag, "cleanup-profiles", false, "Remove all tempfox-managed profiles and exit")
	rootCmd.Flags().BoolVar(&noProfileFlag, "no-profile", false, "Skip profile creation, use credentials for this session only")
	rootCmd.Flags().BoolVar(&autoRenewFlag, "auto-renew", false, "Re-prompt for credentials on expiry without asking")
	rootCmd.Flags().BoolVar(&cloudfoxFlag, "cloudfox", false, "Run the scan directly with credentials from the environment")
	rootCmd.Flags().BoolVar(&sdkVerifyFlag, "sdk-verify", false, "Verify identity through the AWS SDK instead of the aws CLI")
	rootCmd.Flags().BoolVar(&skipPreflightFlag, "skip-preflight", false, "Skip external tool checks")
	rootCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
	rootCmd.Flags().StringVar(&regionFlag, "region", "", "AWS region for the saved profile")
	rootCmd.Flags().StringVar(&configPathFlag, "config", "", "Path to the config file")
}

func printLogo() {
	// Gradient colors (Amber -> Orange -> Red)
	ascii := []string{
		`  ████████╗███████╗███╗   ███╗██████╗ ███████╗ ██████╗ ██╗  ██╗`,
		`  ╚══██╔══╝██╔════╝████╗ ████║██╔══██╗██╔════╝██╔═══██╗╚██╗██╔╝`,
		`     ██║   █████╗  ██╔████╔██║██████╔╝█████╗  ██║   ██║ ╚███╔╝ `,
		`     ██║   ██╔══╝  ██║╚██╔╝██║██╔═══╝ ██╔══╝  ██║   ██║ ██╔██╗ `,
		`     ██║   ███████╗██║ ╚═╝ ██║██║     ██║     ╚██████╔╝██╔╝ ██╗`,
		`     ╚═╝   ╚══════╝╚═╝     ╚═╝╚═╝     ╚═╝      ╚═════╝ ╚═╝  ╚═╝`,
	}

	fmt.Fprintln(os.Stderr)
	for _, line := range ascii {
		for i, char := range line {
			ratio := float64(i) / float64(len(line))

			var r, g, b int
			if ratio < 0.5 {
				// Amber to Orange
				subRatio := ratio * 2
				r = 255
				g = int(196*(1-subRatio) + 120*subRatio)
				b = int(0*(1-subRatio) + 0*subRatio)
			} else {
				// Orange to Red
				subRatio := (ratio - 0.5) * 2
				r = 255
				g = int(120 * (1 - subRatio))
				b = int(40 * subRatio)
			}

			fmt.Fprintf(os.Stderr, "\x1b[38;2;%d;%d;%dm%c\x1b[0m", r, g, b, char)
		}
		fmt.Fprintln(os.Stderr)
	}
	fmt.Fprintln(os.Stderr, ui.SubtitleStyle.Render("  Temporary AWS credential manager and CloudFox launcher"))
	fmt.Fprintln(os.Stderr)
}

func setLogger(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

var rootCmd = &cobra.Command{
	Use:   "tempfox",
	Short: "tempfox manages temporary AWS credentials and launches CloudFox scans",
	Long: `TempFox collects AWS access keys, verifies them against STS, optionally
saves them as a named AWS CLI profile, and runs a CloudFox security scan
with the verified credentials.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		setLogger(verboseFlag)

		cfg, err := config.Load(configPath())
		if err != nil {
			return err
		}
		if regionFlag != "" {
			cfg.Region = regionFlag
		}

		store := newStore()

		switch {
		case listProfilesFlag:
			return runListProfiles(store)
		case cleanupProfilesFlag:
			return runCleanupProfiles(store)
		}
		return runLifecycle(cmd, cfg, store)
	},
}

func configPath() string {
	if configPathFlag != "" {
		return configPathFlag
	}
	return config.DefaultPath()
}

func newStore() *profile.Store {
	return profile.NewStore(profile.DefaultDir())
}

func runListProfiles(store *profile.Store) error {
	names, err := store.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("No AWS profiles found.")
		return nil
	}

	badge := color.New(color.FgGreen).SprintFunc()
	name := color.New(color.FgCyan).SprintFunc()
	fmt.Printf("AWS profiles (%d):\n", len(names))
	for _, n := range names {
		if profile.IsManaged(n) {
			fmt.Printf("  %s %s\n", name(n), badge("(TempFox)"))
		} else {
			fmt.Printf("  %s\n", name(n))
		}
	}
	return nil
}

func runCleanupProfiles(store *profile.Store) error {
	managed, err := store.Managed()
	if err != nil {
		return err
	}
	if len(managed) == 0 {
		fmt.Println("No TempFox-managed profiles to remove.")
		return nil
	}

	fmt.Printf("The following %d profile(s) will be removed:\n", len(managed))
	for _, n := range managed {
		fmt.Printf("  %s\n", n)
	}

	prompter := ui.NewTerminalPrompter()
	ok, err := prompter.Confirm("Remove these profiles?")
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Cleanup cancelled.")
		return nil
	}

	removed, err := store.Cleanup(nil)
	if err != nil {
		return err
	}
	color.Green("Removed %d profile(s).", removed)
	return nil
}

func runLifecycle(cmd *cobra.Command, cfg config.Config, store *profile.Store) error {
	printLogo()

	ctx := cmd.Context()
	classifier := identity.NewClassifier(cfg.ExpiredMarkers, cfg.AuthMarkers)

	verifier, err := buildVerifier(classifier, cfg)
	if err != nil {
		return err
	}
	if !skipPreflightFlag {
		version, err := deps.Check(ctx, deps.CloudFox)
		if err != nil {
			return err
		}
		slog.Debug("preflight ok", "tool", version)
	}

	controller := &flow.Controller{
		Prompter:     ui.NewTerminalPrompter(),
		Verifier:     verifier,
		Store:        store,
		Scanner:      wrapScanSpinner(scan.NewRunner(cfg.ScanBinary, cfg.ScanArgs, "", cfg.ScanTimeout(), cfg.Retention)),
		Getenv:       os.Getenv,
		NoProfile:    noProfileFlag || cloudfoxFlag,
		AutoRenew:    autoRenewFlag,
		ScanOnly:     cloudfoxFlag,
		Region:       cfg.Region,
		Regions:      cfg.Regions,
		OutputFormat: cfg.OutputFormat,
	}

	out, err := controller.Run(ctx)
	if err != nil {
		slog.Error("run failed", "state", out.State.String(), "error", err)
	}
	if out.ExitCode != 0 {
		os.Exit(out.ExitCode)
	}
	color.Green("Done. Account %s scanned successfully.", out.Identity.Account)
	return nil
}

// buildVerifier prefers the aws CLI and falls back to the SDK when the CLI
// is absent or the user asked for SDK verification outright.
func buildVerifier(classifier identity.Classifier, cfg config.Config) (identity.Verifier, error) {
	if !sdkVerifyFlag {
		v, err := identity.NewCLIVerifier(classifier, cfg.VerifyTimeout())
		if err == nil {
			return wrapSpinner(v), nil
		}
		slog.Warn("aws CLI unavailable, falling back to SDK verification", "error", err)
	}
	return wrapSpinner(&identity.SDKVerifier{
		Region:     cfg.Region,
		Timeout:    cfg.VerifyTimeout(),
		Classifier: classifier,
	}), nil
}

// spinVerifier shows a progress spinner around the STS round trip when a
// terminal is attached.
type spinVerifier struct {
	inner identity.Verifier
}

func wrapSpinner(v identity.Verifier) identity.Verifier {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return v
	}
	return &spinVerifier{inner: v}
}

func (s *spinVerifier) Verify(ctx context.Context, cred credential.Credential) (*identity.Result, error) {
	res, err := ui.Spin("Verifying credentials with AWS STS...", func() (any, error) {
		return s.inner.Verify(ctx, cred)
	})
	if err != nil {
		return nil, err
	}
	r, ok := res.(*identity.Result)
	if !ok {
		return nil, fmt.Errorf("unexpected verification result type %T", res)
	}
	return r, nil
}

// spinScanner does the same for the scan subprocess, whose stdout is
// captured rather than streamed.
type spinScanner struct {
	inner flow.Scanner
}

func wrapScanSpinner(s flow.Scanner) flow.Scanner {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return s
	}
	return &spinScanner{inner: s}
}

func (s *spinScanner) Run(ctx context.Context, env scan.EnvProvider, accountID string) (*scan.Result, error) {
	res, err := ui.Spin("Running CloudFox scan...", func() (any, error) {
		return s.inner.Run(ctx, env, accountID)
	})
	r, _ := res.(*scan.Result)
	return r, err
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}

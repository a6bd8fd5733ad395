package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	awsinternal "secretsift/internal/aws"
	"secretsift/internal/aws/ratelimit"
	"secretsift/internal/config"
	"secretsift/internal/logging"
	"secretsift/internal/report"
	"secretsift/internal/scan"
	"secretsift/internal/secrets"
	"secretsift/internal/version"
)

// runFunc performs a scan with a loaded configuration
type runFunc func(ctx context.Context, cfg *config.GlobalConfig) error

// Execute runs the root command until it finishes or the process is interrupted
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd creates the secretsift command
func NewRootCmd() *cobra.Command {
	return newRootCmd(runScan)
}

func newRootCmd(run runFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secretsift --profile <name> [--output <path>]",
		Short: "secretsift - find secrets in EC2 user data and launch templates",
		Long: `secretsift scans every enabled region of an AWS account for credentials
embedded in EC2 instance user data and launch template versions, and merges
the matches into a JSON report keyed by region.

Examples:
  # Scan with the audit profile and write matches to output.txt
  secretsift --profile audit

  # Write the report somewhere else
  secretsift -p audit -o reports/secrets.json`,
		Version:      version.String(),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.InitConfig(true); err != nil {
				return err
			}
			return config.BindFlags(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logging.Configure(logging.LogConfig{
				Level:  logging.ParseLevel(cfg.LogLevel),
				Format: logging.ParseFormat(cfg.LogFormat),
			})
			config.LogConfigurationSources(true, cmd)

			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringP("profile", "p", "", "AWS profile to use (required)")
	cmd.Flags().StringP("output", "o", config.Default().Output, "Path of the JSON report")

	return cmd
}

// runScan scans every enabled region of the profile's account
func runScan(ctx context.Context, cfg *config.GlobalConfig) error {
	runID := uuid.NewString()

	if !awsinternal.IsValidProfile(cfg.Profile) {
		logging.Warn("Profile not found in shared config files, relying on the SDK to resolve it", map[string]interface{}{
			"profile": cfg.Profile,
		})
	}

	base, err := awsinternal.NewSession(cfg.Profile, cfg.Region)
	if err != nil {
		return err
	}

	identity, err := awsinternal.GetCallerIdentity(ctx, sts.New(base))
	if err != nil {
		return err
	}
	logging.Info("Created base session", map[string]interface{}{
		"account_id": identity.Account,
		"arn":        identity.ARN,
	})

	detectors, err := secrets.LoadDetectorSet(secrets.DetectorOptions{
		ConfigPath:       cfg.DetectorConfig,
		GenericMinLength: cfg.GenericMinLength,
	})
	if err != nil {
		return err
	}

	logging.Info("Fetching AWS regions", nil)
	bootstrap := awsinternal.NewEC2Inventory(ec2.New(base), cfg.Region, ratelimit.NewServiceLimiter(cfg.RateLimit), awsinternal.PaginationFromConfig(cfg))
	regions, err := bootstrap.ListRegions(ctx)
	if err != nil {
		return err
	}
	logging.Info("Regions fetched", map[string]interface{}{
		"count": len(regions),
	})

	if cfg.KeepExisting {
		logging.Debug("Keeping existing report", map[string]interface{}{"path": cfg.Output})
	} else if err := report.Truncate(cfg.Output); err != nil {
		return err
	}

	writer := report.NewWriter(cfg.Output)
	defer writer.Close()

	inventory := func(region string) (awsinternal.Inventory, error) {
		inv, err := awsinternal.NewEC2InventoryForRegion(base, region, cfg)
		if err != nil {
			return nil, err
		}
		return inv, nil
	}

	orchestrator := scan.NewOrchestrator(regions, inventory, detectors, writer, scan.Options{
		RunID:         runID,
		Output:        cfg.Output,
		MaxWorkers:    cfg.MaxWorkers,
		RegionTimeout: cfg.RegionTimeout,
		Progress:      cfg.Progress,
	})

	summary, err := orchestrator.Run(ctx)
	if err != nil {
		return fmt.Errorf("%d of %d regions failed: %w", len(summary.Failed()), len(summary.Regions), err)
	}
	return nil
}

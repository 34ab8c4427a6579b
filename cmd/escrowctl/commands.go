package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"celebrate/internal/app"
	"celebrate/internal/platform/config"
	"celebrate/internal/platform/logger"
	"celebrate/internal/resolution"
	"celebrate/internal/resolution/handler"
	"celebrate/migrations"
	"celebrate/pkg/domain"
	"celebrate/pkg/requestcontext"
)

const operatorActor = "escrowctl"

type cli struct {
	logLevel string
	build    func(cmd *cobra.Command) (*app.App, error)
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	c.build = c.buildApp
	root := &cobra.Command{
		Use:          "escrowctl",
		Short:        "Operate the celebration escrow engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(
		c.triggerCmd(),
		c.failCmd(),
		c.expireCmd(),
		c.retryCmd(),
		c.verifyLedgerCmd(),
		c.migrateCmd(),
		c.tokenCmd(),
	)
	return root
}

func (c *cli) buildApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.NewWithWriter(os.Stderr, cfg.Server.LogFormat, c.logLevel)
	return app.Build(cmd.Context(), cfg, log, app.Options{})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) triggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <bill-id>",
		Short: "Capture every open pledge on a bill that passed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBatch(cmd, args[0], func(ctx context.Context, a *app.App, bill domain.BillID) (resolution.Report, error) {
				return a.Trigger.Trigger(ctx, bill)
			})
		},
	}
}

func (c *cli) failCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fail <bill-id>",
		Short: "Release every open pledge on a bill that failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBatch(cmd, args[0], func(ctx context.Context, a *app.App, bill domain.BillID) (resolution.Report, error) {
				return a.Trigger.Fail(ctx, bill)
			})
		},
	}
}

type batchFunc func(ctx context.Context, a *app.App, bill domain.BillID) (resolution.Report, error)

func (c *cli) runBatch(cmd *cobra.Command, rawBill string, op batchFunc) error {
	bill, err := domain.ParseBillID(rawBill)
	if err != nil {
		return err
	}
	a, err := c.build(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := requestcontext.WithActor(cmd.Context(), operatorActor)
	report, err := op(ctx, a, bill)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), handler.NewReportResponse(report))
}

func (c *cli) expireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Release pledges whose escrow window has closed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := a.Expirer.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]int{"released": n})
		},
	}
}

func (c *cli) retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Run one pass over captures whose retry is due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := a.Retries.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			queued, err := a.RetryQueue.Len(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]int{"processed": n, "queued": queued})
		},
	}
}

type ledgerCheck struct {
	CelebrationID string `json:"celebration_id"`
	Status        string `json:"status"`
	Entries       int    `json:"entries"`
	Verified      bool   `json:"verified"`
	Error         string `json:"error,omitempty"`
}

func (c *cli) verifyLedgerCmd() *cobra.Command {
	var donor string
	cmd := &cobra.Command{
		Use:   "verify-ledger [celebration-id...]",
		Short: "Check ledger hash chains against stored status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if donor == "" && len(args) == 0 {
				return fmt.Errorf("pass celebration ids or --donor")
			}
			a, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			var checks []ledgerCheck
			if donor != "" {
				donorID, err := domain.ParseDonorID(donor)
				if err != nil {
					return err
				}
				all, err := a.Celebrations.ListByDonor(ctx, donorID)
				if err != nil {
					return err
				}
				for _, cel := range all {
					checks = append(checks, check(cel.ID.String(), string(cel.Status), len(cel.Ledger), cel.VerifyLedger()))
				}
			}
			for _, raw := range args {
				id, err := domain.ParseCelebrationID(raw)
				if err != nil {
					return err
				}
				cel, err := a.Celebrations.Get(ctx, id)
				if err != nil {
					checks = append(checks, check(raw, "", 0, err))
					continue
				}
				checks = append(checks, check(raw, string(cel.Status), len(cel.Ledger), cel.VerifyLedger()))
			}

			if err := writeJSON(cmd.OutOrStdout(), checks); err != nil {
				return err
			}
			for _, ch := range checks {
				if !ch.Verified {
					return fmt.Errorf("ledger verification failed for %s", ch.CelebrationID)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&donor, "donor", "", "verify every celebration of this donor")
	return cmd
}

func check(id, status string, entries int, err error) ledgerCheck {
	lc := ledgerCheck{CelebrationID: id, Status: status, Entries: entries, Verified: err == nil}
	if err != nil {
		lc.Error = err.Error()
	}
	return lc
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded Postgres schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.DB == nil {
				return fmt.Errorf("CELEBRATE_DB_URL is not set")
			}
			if err := migrations.Apply(cmd.Context(), a.DB); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return err
		},
	}
}

func (c *cli) tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <donor-id>",
		Short: "Mint a donor bearer token for testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			donorID, err := domain.ParseDonorID(args[0])
			if err != nil {
				return err
			}
			a, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			token, err := a.Tokens.GenerateAccessToken(donorID, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

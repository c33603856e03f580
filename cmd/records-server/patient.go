package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/records/internal/platform/auth"
)

// patientCmd runs the orchestrators without the HTTP layer, for operators.
// The --actor flag is trusted as-is and recorded in the audit trail.
func patientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Operate on a single patient across all shards",
	}

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Soft-delete a patient and all of their clinical and financial records",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, actor, err := patientFlags(cmd)
			if err != nil {
				return err
			}
			return withServices(cmd, func(ctx context.Context, svc *services) (any, error) {
				return svc.patients.Purge(ctx, id, actor)
			})
		},
	}

	report := &cobra.Command{
		Use:   "report",
		Short: "Print the aggregated patient report",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, actor, err := patientFlags(cmd)
			if err != nil {
				return err
			}
			return withServices(cmd, func(ctx context.Context, svc *services) (any, error) {
				return svc.reports.GetReport(ctx, id, actor)
			})
		},
	}

	for _, c := range []*cobra.Command{purge, report} {
		c.Flags().String("id", "", "Patient id (UUID)")
		c.Flags().String("actor", "", "Operator id recorded in the audit trail")
		_ = c.MarkFlagRequired("id")
		cmd.AddCommand(c)
	}
	return cmd
}

func patientFlags(cmd *cobra.Command) (uuid.UUID, auth.Actor, error) {
	rawID, _ := cmd.Flags().GetString("id")
	id, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, auth.Actor{}, fmt.Errorf("invalid --id %q: %w", rawID, err)
	}
	actorID, _ := cmd.Flags().GetString("actor")
	if actorID == "" {
		return id, auth.System(), nil
	}
	return id, auth.NewActor(actorID, "", "", "cli-"+uuid.NewString()), nil
}

func withServices(cmd *cobra.Command, fn func(context.Context, *services) (any, error)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr()).Level(zerolog.WarnLevel)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pool, auditPool, err := openPools(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	defer auditPool.Close()

	out, err := fn(ctx, newServices(pool, auditPool, cfg, logger))
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

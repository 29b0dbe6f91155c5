package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jDay-whyT/converterBot-backend/cmd/migrate"
	"github.com/jDay-whyT/converterBot-backend/internal/entities"
	"github.com/jDay-whyT/converterBot-backend/internal/queue"
	"github.com/jDay-whyT/converterBot-backend/internal/redisholder"
	"github.com/jDay-whyT/converterBot-backend/internal/repository/storage"
)

var enqueueJob entities.Job

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Add a job to the redis stream",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !enqueueJob.Complete() {
			return errors.New("--file-id, --chat-id and --message-id are required")
		}
		if !cfg.Redis.Enabled() {
			return errors.New("no redis nodes configured")
		}
		holder, err := redisholder.Build(cmd.Context(), cfg.Redis, log)
		if err != nil {
			return err
		}
		defer holder.Close()

		id, err := queue.NewProducer(holder.Get, cfg.Queue.Stream, cfg.Queue.MaxLen).Enqueue(cmd.Context(), enqueueJob)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply jobs ledger migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.Database.DSN == "" {
			return errors.New("DATABASE_DSN is not set")
		}
		if err := migrate.Migrate(cfg.Database.DSN, migrate.Migrations); err != nil {
			return err
		}
		v, err := migrate.Version(cfg.Database.DSN, migrate.Migrations)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
		return nil
	},
}

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs <idempotency-key>",
	Short: "Show ledger rows for a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Database.DSN == "" {
			return errors.New("DATABASE_DSN is not set")
		}
		repo, err := storage.New(cmd.Context(), cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer repo.Close()

		recs, err := repo.Recent(cmd.Context(), args[0], jobsLimit)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	},
}

func init() {
	f := enqueueCmd.Flags()
	f.StringVar(&enqueueJob.FileID, "file-id", "", "telegram file_id")
	f.StringVar(&enqueueJob.FileUniqueID, "unique-id", "", "telegram file_unique_id")
	f.Int64Var(&enqueueJob.ChatID, "chat-id", 0, "source chat id")
	f.Int64Var(&enqueueJob.MessageID, "message-id", 0, "source message id")
	f.StringVar(&enqueueJob.FileName, "name", "", "document file name")
	f.StringVar(&enqueueJob.MimeType, "mime", "", "document mime type")

	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 10, "rows to show")

	rootCmd.AddCommand(enqueueCmd, migrateCmd, jobsCmd)
}

package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/victornm/quizinho/internal/store/migrations"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := setupLogger(os.Stderr, c.Log.Level, c.Log.Format); err != nil {
				return err
			}

			if c.Postgres.DSN == "" {
				return errors.New("postgres.dsn is not set")
			}
			return migrations.Run(cmd.Context(), c.Postgres.DSN)
		},
	}
}

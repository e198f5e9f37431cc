package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/victornm/quizinho/internal/server"
)

func newSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired quizzes once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := setupLogger(os.Stderr, c.Log.Level, c.Log.Format); err != nil {
				return err
			}

			s, err := server.Init(c)
			if err != nil {
				return fmt.Errorf("init server: %w", err)
			}
			defer s.Shutdown()

			res, err := s.Sweep(cmd.Context())
			if err != nil {
				return err
			}

			slog.InfoContext(cmd.Context(), "cli: sweep completed",
				"scanned", res.Scanned,
				"deleted", res.Deleted,
				"failed", res.Failed,
			)
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d deleted=%d failed=%d\n", res.Scanned, res.Deleted, res.Failed)
			return nil
		},
	}
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nao1215/notifyhub/internal/config"
	"github.com/nao1215/notifyhub/internal/notification"
	"github.com/nao1215/notifyhub/pkg/logger"
)

// newMigrateCmd はスキーマを適用して終了するコマンドを生成する。
func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "データベースにスキーマを適用する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			db, err := notification.OpenDB(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := notification.Migrate(cmd.Context(), db, log)
			if err != nil {
				return err
			}

			log.Info("migration completed", zap.Int("applied", n))
			fmt.Fprintf(cmd.OutOrStdout(), "%d件のマイグレーションを適用しました\n", n)
			return nil
		},
	}
}

package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/notifyhub/internal/config"
	"github.com/nao1215/notifyhub/pkg/middleware"
)

// newTokenCmd は開発用のJWTを発行するコマンドを生成する。
func newTokenCmd(configPath *string) *cobra.Command {
	var (
		userID string
		email  string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "開発用のJWTトークンを発行する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return errors.New("--user は必須です")
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			token, err := middleware.GenerateJWT(cfg.Auth.JWTSecret, userID, email, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "トークンに含めるユーザーID")
	cmd.Flags().StringVar(&email, "email", "", "トークンに含めるメールアドレス")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "トークンの有効期間")
	return cmd
}

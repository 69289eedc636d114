package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/nao1215/notifyhub/internal/config"
)

// newServeCmd はHTTPサーバーを起動するコマンドを生成する。
func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "通知サービスを起動する",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			app := fx.New(appOptions(cfg), fx.StopTimeout(cfg.Server.ShutdownTimeout))
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

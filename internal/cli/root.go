// Package cli は notifyhub コマンドのサブコマンドを定義する。
package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// newRootCmd はルートコマンドを生成する。
func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "notifyhub",
		Short:         "リアルタイム通知配信サービス",
		Long:          "notifyhub は通知を永続化し、接続中のユーザーへイベントストリームで即時配信するサービスです。",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "設定ファイルのパス（YAML）")

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newMigrateCmd(&configPath))
	cmd.AddCommand(newTokenCmd(&configPath))
	return cmd
}

// Execute はルートコマンドを実行する。
func Execute() error {
	return newRootCmd().Execute()
}

// 通知サービスのエントリポイント。
// 通知を永続化し、接続中のユーザーへイベントストリームで即時配信する。
package main

import (
	"fmt"
	"os"

	"github.com/nao1215/notifyhub/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

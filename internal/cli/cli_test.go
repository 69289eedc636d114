package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/nao1215/notifyhub/internal/config"
	"github.com/nao1215/notifyhub/internal/notification"
	"github.com/nao1215/notifyhub/pkg/middleware"
)

// writeConfig はテスト用の設定ファイルを一時ディレクトリに書き出す。
func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "notifyhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// runRoot はルートコマンドを引数付きで実行し、標準出力を返す。
func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// TestTokenCmd はtokenコマンドが検証可能なJWTを出力することを検証する。
func TestTokenCmd(t *testing.T) {
	t.Parallel()

	t.Run("設定の秘密鍵で署名されたトークンを出力すること", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "auth:\n  jwt_secret: cli-test-secret\ndatabase:\n  dsn: unused.db\n")
		out, err := runRoot(t, "--config", path, "token", "--user", "user-1", "--email", "user1@example.com")
		require.NoError(t, err)

		claims := &middleware.JWTClaims{}
		_, err = jwt.ParseWithClaims(strings.TrimSpace(out), claims, func(_ *jwt.Token) (any, error) {
			return []byte("cli-test-secret"), nil
		})
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, "user1@example.com", claims.Email)
	})

	t.Run("--userがない場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "database:\n  dsn: unused.db\n")
		_, err := runRoot(t, "--config", path, "token")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--user")
	})
}

// TestMigrateCmd はmigrateコマンドがスキーマを適用することを検証する。
func TestMigrateCmd(t *testing.T) {
	t.Parallel()

	dsn := filepath.Join(t.TempDir(), "notification.db")
	path := writeConfig(t, "database:\n  driver: sqlite\n  dsn: "+dsn+"\n")

	out, err := runRoot(t, "--config", path, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "1件")

	// 2回目は適用済みのため0件
	out, err = runRoot(t, "--config", path, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "0件")
}

// TestAppOptions は依存グラフが解決可能であることを検証する。
func TestAppOptions(t *testing.T) {
	t.Parallel()

	t.Run("既定の構成で依存が解決できること", func(t *testing.T) {
		t.Parallel()

		cfg := &config.Config{}
		cfg.Database.Driver = "sqlite"
		cfg.Database.DSN = filepath.Join(t.TempDir(), "notification.db")
		require.NoError(t, fx.ValidateApp(appOptions(cfg)))
	})

	t.Run("ブローカーと取り込みを有効にしても依存が解決できること", func(t *testing.T) {
		t.Parallel()

		cfg := &config.Config{}
		cfg.Broker.RedisURL = "redis://localhost:6379/0"
		cfg.Kafka.Brokers = []string{"localhost:9092"}
		cfg.Directory.URL = "http://localhost:8080"
		require.NoError(t, fx.ValidateApp(appOptions(cfg)))
	})
}

// TestNewDirectory はディレクトリクライアントの構成を検証する。
func TestNewDirectory(t *testing.T) {
	t.Parallel()

	t.Run("URL未設定ならStaticDirectoryになること", func(t *testing.T) {
		t.Parallel()

		assert.IsType(t, notification.StaticDirectory{}, newDirectory(&config.Config{}))
	})

	t.Run("トークンを設定するとBearerトークンを送信すること", func(t *testing.T) {
		t.Parallel()

		var gotAuth string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			_, _ = w.Write([]byte(`{"id":"user-9","name":"Alice"}`))
		}))
		defer ts.Close()

		cfg := &config.Config{}
		cfg.Directory.URL = ts.URL
		cfg.Directory.Timeout = time.Second
		cfg.Directory.Token = "dir-token"

		actor, err := newDirectory(cfg).Actor(t.Context(), "user-9")
		require.NoError(t, err)
		assert.Equal(t, "Alice", actor.Name)
		assert.Equal(t, "Bearer dir-token", gotAuth)
	})
}

package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInitTracer はエンドポイント未設定時の動作を検証する。
func TestInitTracer(t *testing.T) {
	t.Parallel()

	t.Run("エンドポイントが空の場合は何もしない停止関数を返すこと", func(t *testing.T) {
		t.Parallel()

		shutdown, err := InitTracer(t.Context(), Config{ServiceName: "notifyhub"})
		require.NoError(t, err)
		require.NotNil(t, shutdown)
		assert.NoError(t, shutdown(t.Context()))
	})

	t.Run("エンドポイント指定時は遅延接続で初期化できること", func(t *testing.T) {
		t.Parallel()

		shutdown, err := InitTracer(t.Context(), Config{
			ServiceName: "notifyhub",
			Endpoint:    "127.0.0.1:4317",
			Environment: "test",
		})
		require.NoError(t, err)
		require.NotNil(t, shutdown)
		_ = shutdown(t.Context())
	})
}

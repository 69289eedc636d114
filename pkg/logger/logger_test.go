package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestNew はNew関数を検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("指定したレベルが反映されること", func(t *testing.T) {
		t.Parallel()

		l, err := New("warn", false)
		require.NoError(t, err)

		assert.False(t, l.Core().Enabled(zap.InfoLevel))
		assert.True(t, l.Core().Enabled(zap.WarnLevel))
	})

	t.Run("開発モードでも生成できること", func(t *testing.T) {
		t.Parallel()

		l, err := New("debug", true)
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zap.DebugLevel))
	})

	t.Run("不正なレベルはエラーになること", func(t *testing.T) {
		t.Parallel()

		_, err := New("verbose", false)
		assert.Error(t, err)
	})
}

package notification

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDirectoryServer はディレクトリサービスのモックを起動する。
func newDirectoryServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/projects/{id}/members", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "project-1" {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		assert.Equal(t, "active", r.URL.Query().Get("status"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"userId": "user-1", "status": "active"},
			{"userId": "user-2", "status": "invited"},
			{"userId": "user-3", "status": "active"},
		})
	})
	mux.HandleFunc("GET /api/v1/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "user-9" {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "user-9", "name": "山田 太郎", "avatarUrl": "https://example.com/a.png"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// TestHTTPDirectory はディレクトリサービスへの問い合わせを検証する。
func TestHTTPDirectory(t *testing.T) {
	t.Parallel()

	srv := newDirectoryServer(t)
	d := NewHTTPDirectory(srv.URL)

	t.Run("アクティブなメンバーのみを返すこと", func(t *testing.T) {
		t.Parallel()

		members, err := d.ActiveMembers(t.Context(), "project-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"user-1", "user-3"}, members)
	})

	t.Run("存在しないプロジェクトはエラーになること", func(t *testing.T) {
		t.Parallel()

		_, err := d.ActiveMembers(t.Context(), "project-x")
		assert.Error(t, err)
	})

	t.Run("アクターの表示情報を取得できること", func(t *testing.T) {
		t.Parallel()

		actor, err := d.Actor(t.Context(), "user-9")
		require.NoError(t, err)
		assert.Equal(t, &Actor{ID: "user-9", Name: "山田 太郎", AvatarURL: "https://example.com/a.png"}, actor)
	})

	t.Run("存在しないユーザーはErrNotFoundになること", func(t *testing.T) {
		t.Parallel()

		_, err := d.Actor(t.Context(), "user-x")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

// TestStaticDirectory は固定ディレクトリを検証する。
func TestStaticDirectory(t *testing.T) {
	t.Parallel()

	var d StaticDirectory

	members, err := d.ActiveMembers(t.Context(), "project-1")
	require.NoError(t, err)
	assert.Empty(t, members)

	_, err = d.Actor(t.Context(), "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

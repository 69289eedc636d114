package notification

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nao1215/notifyhub/pkg/httpclient"
)

// Directory はグループのメンバーとユーザーの表示情報を提供する。
type Directory interface {
	// ActiveMembers はグループのアクティブなメンバーのユーザーIDを返す。
	ActiveMembers(ctx context.Context, groupID string) ([]string, error)
	// Actor はユーザーの表示情報を返す。
	Actor(ctx context.Context, userID string) (*Actor, error)
}

// memberStatusActive はアクティブなメンバーのステータス。
const memberStatusActive = "active"

// HTTPDirectory は外部のディレクトリサービスにHTTPで問い合わせる。
type HTTPDirectory struct {
	client *httpclient.Client
}

var _ Directory = (*HTTPDirectory)(nil)

// NewHTTPDirectory は新しいHTTPDirectoryを生成する。
func NewHTTPDirectory(baseURL string, opts ...httpclient.Option) *HTTPDirectory {
	return &HTTPDirectory{client: httpclient.New(baseURL, opts...)}
}

// memberResponse はメンバー一覧APIのレスポンス要素。
type memberResponse struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// ActiveMembers はプロジェクトのアクティブなメンバーを取得する。
func (d *HTTPDirectory) ActiveMembers(ctx context.Context, groupID string) ([]string, error) {
	var members []memberResponse
	path := fmt.Sprintf("/api/v1/projects/%s/members?status=%s", url.PathEscape(groupID), memberStatusActive)
	if err := d.client.GetJSON(ctx, path, &members); err != nil {
		return nil, fmt.Errorf("プロジェクト %s のメンバー取得に失敗: %w", groupID, err)
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.Status != memberStatusActive || m.UserID == "" {
			continue
		}
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

// Actor はユーザー情報APIから表示情報を取得する。
func (d *HTTPDirectory) Actor(ctx context.Context, userID string) (*Actor, error) {
	var actor Actor
	if err := d.client.GetJSON(ctx, "/api/v1/users/"+url.PathEscape(userID), &actor); err != nil {
		if httpclient.IsNotFound(err) {
			return nil, fmt.Errorf("ユーザー %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("ユーザー %s の取得に失敗: %w", userID, err)
	}
	if actor.ID == "" {
		actor.ID = userID
	}
	return &actor, nil
}

// StaticDirectory は固定のメンバーと表示情報を返す。
// ディレクトリサービスを使わない構成で利用する。
type StaticDirectory struct {
	// Members はグループIDごとのメンバーのユーザーID。
	Members map[string][]string
	// Actors はユーザーIDごとの表示情報。
	Actors map[string]Actor
}

var _ Directory = StaticDirectory{}

// ActiveMembers は登録済みのメンバーを返す。未登録のグループは空。
func (d StaticDirectory) ActiveMembers(_ context.Context, groupID string) ([]string, error) {
	return append([]string(nil), d.Members[groupID]...), nil
}

// Actor は登録済みの表示情報を返す。
func (d StaticDirectory) Actor(_ context.Context, userID string) (*Actor, error) {
	actor, ok := d.Actors[userID]
	if !ok {
		return nil, fmt.Errorf("ユーザー %s: %w", userID, ErrNotFound)
	}
	return &actor, nil
}

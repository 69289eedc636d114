package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nao1215/notifyhub/internal/notification"
)

// Creator は通知生成パイプライン。
type Creator interface {
	CreateOne(ctx context.Context, p notification.CreateParams) (*notification.Notification, error)
	CreateMany(ctx context.Context, recipientIDs []string, f notification.SharedFields) ([]*notification.Notification, error)
	CreateForGroup(ctx context.Context, groupID string, f notification.SharedFields, excludeActor bool) ([]*notification.Notification, error)
}

// Request はトピックに発行される通知生成リクエスト。
// recipientId・recipientIds・groupId のいずれか1つを指定する。
type Request struct {
	// RecipientID は1件作成の宛先。
	RecipientID string `json:"recipientId,omitempty"`
	// RecipientIDs は一括作成の宛先。
	RecipientIDs []string `json:"recipientIds,omitempty"`
	// GroupID はグループ宛て作成の宛先。
	GroupID string `json:"groupId,omitempty"`
	// ExcludeActor はグループ宛て作成でアクター本人を除外するかどうか。
	ExcludeActor bool `json:"excludeActor,omitempty"`
	notification.SharedFields
}

// ErrInvalidRequest はリクエストの宛先指定が不正な場合のエラー。
var ErrInvalidRequest = errors.New("通知生成リクエストが不正です")

// Handler は通知生成リクエストを処理する。
type Handler struct {
	creator Creator
	logger  *zap.Logger
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(creator Creator, logger *zap.Logger) *Handler {
	return &Handler{creator: creator, logger: logger}
}

// Handle は1件のメッセージを処理し、作成した件数を返す。
func (h *Handler) Handle(ctx context.Context, key string, value []byte) (int, error) {
	var req Request
	if err := json.Unmarshal(value, &req); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	targets := 0
	for _, set := range []bool{req.RecipientID != "", len(req.RecipientIDs) > 0, req.GroupID != ""} {
		if set {
			targets++
		}
	}
	if targets != 1 {
		return 0, fmt.Errorf("%w: 宛先はrecipientId・recipientIds・groupIdのいずれか1つを指定してください", ErrInvalidRequest)
	}

	switch {
	case req.RecipientID != "":
		if _, err := h.creator.CreateOne(ctx, notification.CreateParams{RecipientID: req.RecipientID, SharedFields: req.SharedFields}); err != nil {
			return 0, err
		}
		return 1, nil
	case len(req.RecipientIDs) > 0:
		ns, err := h.creator.CreateMany(ctx, req.RecipientIDs, req.SharedFields)
		if err != nil {
			return 0, err
		}
		return len(ns), nil
	default:
		ns, err := h.creator.CreateForGroup(ctx, req.GroupID, req.SharedFields, req.ExcludeActor)
		if err != nil {
			return 0, err
		}
		return len(ns), nil
	}
}

// HandleMessage はメッセージを処理し、失敗してもエラーを返さずログに記録する。
// 不正なメッセージで同じオフセットを繰り返し処理しないようにする。
func (h *Handler) HandleMessage(ctx context.Context, key string, value []byte) {
	n, err := h.Handle(ctx, key, value)
	if err != nil {
		level := h.logger.Error
		if errors.Is(err, ErrInvalidRequest) || errors.Is(err, notification.ErrValidation) {
			level = h.logger.Warn
		}
		level("ingest message skipped", zap.String("key", key), zap.Error(err))
		return
	}
	h.logger.Debug("ingest message handled", zap.String("key", key), zap.Int("created", n))
}

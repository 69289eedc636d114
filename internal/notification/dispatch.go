package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/nao1215/notifyhub/pkg/event"
)

// Dispatcher は永続化済みの通知をユーザーの送信路へ届ける。
// 配信はベストエフォートで、失敗は呼び出し元へ返さない。
type Dispatcher interface {
	Dispatch(ctx context.Context, recipientID string, f event.Frame)
}

// LocalDispatcher は同一プロセスのRegistryに登録された送信路へ配信する。
type LocalDispatcher struct {
	registry *Registry
	logger   *zap.Logger
}

var _ Dispatcher = (*LocalDispatcher)(nil)

// NewLocalDispatcher は新しいLocalDispatcherを生成する。
func NewLocalDispatcher(registry *Registry, logger *zap.Logger) *LocalDispatcher {
	return &LocalDispatcher{registry: registry, logger: logger}
}

// Dispatch は登録中の送信路へフレームを送る。未接続なら何もしない。
// 送信に失敗した送信路は登録を解除して閉じる。
func (d *LocalDispatcher) Dispatch(ctx context.Context, recipientID string, f event.Frame) {
	ch, ok := d.registry.Lookup(recipientID)
	if !ok {
		pushResults.WithLabelValues(pushSkipped).Inc()
		return
	}

	if err := ch.Send(ctx, f); err != nil {
		d.logger.Warn("push failed",
			zap.String("recipient_id", recipientID),
			zap.String("event", string(f.Name)),
			zap.Error(err),
		)
		d.registry.Unregister(recipientID, ch)
		ch.Close()
		pushResults.WithLabelValues(pushFailed).Inc()
		return
	}
	pushResults.WithLabelValues(pushDelivered).Inc()
}

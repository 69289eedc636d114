package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nao1215/notifyhub/pkg/event"
)

// StreamConfig はストリーム配信の設定。
type StreamConfig struct {
	// HeartbeatInterval はheartbeatイベントの送信間隔。
	HeartbeatInterval time.Duration
	// QueueSize は接続ごとの送信キューの長さ。
	QueueSize int
	// PushTimeout はキューが満杯のときに待つ最大時間。
	PushTimeout time.Duration
}

// DefaultStreamConfig は既定のストリーム設定を返す。
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		HeartbeatInterval: 30 * time.Second,
		QueueSize:         16,
		PushTimeout:       2 * time.Second,
	}
}

// frameWriter はフレームをクライアントへ書き込む。
type frameWriter interface {
	WriteFrame(f event.Frame) error
}

// httpFrameWriter はhttp.ResponseWriterにフレームを書き込み、即座にフラッシュする。
// timeoutが正の場合は書き込みごとに期限を設定し、応答しない接続での書き込みを打ち切る。
type httpFrameWriter struct {
	w       http.ResponseWriter
	timeout time.Duration
}

// WriteFrame はフレームを書き込んでフラッシュする。
func (hw httpFrameWriter) WriteFrame(f event.Frame) error {
	rc := http.NewResponseController(hw.w)
	if hw.timeout > 0 {
		if err := rc.SetWriteDeadline(time.Now().Add(hw.timeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	if _, err := f.WriteTo(hw.w); err != nil {
		return err
	}
	return rc.Flush()
}

// clearDeadline は書き込み期限を解除する。
func (hw httpFrameWriter) clearDeadline() {
	_ = http.NewResponseController(hw.w).SetWriteDeadline(time.Time{})
}

// streamConn は1本のストリーム接続。Channelを実装する。
type streamConn struct {
	recipientID string
	queue       chan event.Frame
	pushTimeout time.Duration
	done        chan struct{}
	closeOnce   sync.Once
}

var _ Channel = (*streamConn)(nil)

func newStreamConn(recipientID string, queueSize int, pushTimeout time.Duration) *streamConn {
	return &streamConn{
		recipientID: recipientID,
		queue:       make(chan event.Frame, queueSize),
		pushTimeout: pushTimeout,
		done:        make(chan struct{}),
	}
}

// Send はフレームを送信キューに積む。キューが満杯のままpushTimeoutを過ぎた場合は
// 接続を閉じてErrSlowConsumerを返す。
func (c *streamConn) Send(ctx context.Context, f event.Frame) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.queue <- f:
		return nil
	default:
	}

	timer := time.NewTimer(c.pushTimeout)
	defer timer.Stop()

	select {
	case c.queue <- f:
		return nil
	case <-c.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		c.Close()
		return ErrSlowConsumer
	}
}

// Close は接続を閉じる。
func (c *streamConn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done は接続が閉じられたときにクローズされるチャネルを返す。
func (c *streamConn) Done() <-chan struct{} {
	return c.done
}

// streamer はストリーム接続のライフサイクルを管理する。
type streamer struct {
	registry *Registry
	cfg      StreamConfig
	logger   *zap.Logger
	now      func() time.Time
}

// serve は接続を登録してconnectedイベントを送り、切断されるまでイベントを書き込む。
// 戻り時には必ず登録を解除し接続を閉じる。
func (s *streamer) serve(ctx context.Context, recipientID string, w frameWriter) error {
	conn := newStreamConn(recipientID, s.cfg.QueueSize, s.cfg.PushTimeout)
	if old := s.registry.Register(recipientID, conn); old != nil {
		s.logger.Info("stream replaced", zap.String("recipient_id", recipientID))
	}
	streamConnections.Inc()
	defer func() {
		s.registry.Unregister(recipientID, conn)
		conn.Close()
		streamConnections.Dec()
	}()

	connected, err := event.New(event.NameConnected, event.ConnectedData{
		RecipientID: recipientID,
		Timestamp:   s.now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := writeFrame(w, connected); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Done():
			return nil
		case f := <-conn.queue:
			if err := writeFrame(w, f); err != nil {
				return err
			}
		case <-ticker.C:
			hb, err := event.New(event.NameHeartbeat, event.HeartbeatData{Timestamp: s.now().UTC()})
			if err != nil {
				return err
			}
			if err := writeFrame(w, hb); err != nil {
				return err
			}
		}
	}
}

// writeFrame はフレームを書き込み、成功したイベントを計測する。
func writeFrame(w frameWriter, f event.Frame) error {
	if err := w.WriteFrame(f); err != nil {
		return fmt.Errorf("%w: %w", errStreamWrite, err)
	}
	streamEventsWritten.WithLabelValues(string(f.Name)).Inc()
	return nil
}

// errStreamWrite はクライアントへの書き込みに失敗したことを表す。
var errStreamWrite = errors.New("ストリームへの書き込みに失敗")

package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nao1215/notifyhub/pkg/event"
)

// DefaultBrokerChannel はインスタンス間配信に使うRedisのチャネル名。
const DefaultBrokerChannel = "notifyhub:push"

// pushEnvelope はRedisで中継する配信メッセージ。
type pushEnvelope struct {
	// RecipientID は配信先のユーザーID。
	RecipientID string `json:"recipientId"`
	// Frame は配信するイベント。
	Frame event.Frame `json:"frame"`
}

// subscription はチャネルの購読。*redis.PubSubが実装する。
type subscription interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

const (
	// subscribeRetryMin は購読再試行の初回待ち時間。
	subscribeRetryMin = 500 * time.Millisecond
	// subscribeRetryMax は購読再試行の待ち時間の上限。
	subscribeRetryMax = 30 * time.Second
)

// RedisDispatcher はRedisのPub/Subで全インスタンスへ配信を中継する。
// 各インスタンスはRunで購読し、受け取った配信を自プロセスのLocalDispatcherに渡す。
// 購読していない間は自プロセスの接続へ直接配信する。
type RedisDispatcher struct {
	client     redis.UniversalClient
	channel    string
	local      *LocalDispatcher
	logger     *zap.Logger
	publish    func(ctx context.Context, payload []byte) error
	subscribe  func(ctx context.Context) (subscription, error)
	retryMin   time.Duration
	retryMax   time.Duration
	subscribed atomic.Bool
}

var _ Dispatcher = (*RedisDispatcher)(nil)

// NewRedisDispatcher は新しいRedisDispatcherを生成する。
func NewRedisDispatcher(client redis.UniversalClient, channel string, local *LocalDispatcher, logger *zap.Logger) *RedisDispatcher {
	if channel == "" {
		channel = DefaultBrokerChannel
	}
	d := &RedisDispatcher{
		client:   client,
		channel:  channel,
		local:    local,
		logger:   logger,
		retryMin: subscribeRetryMin,
		retryMax: subscribeRetryMax,
	}
	d.publish = d.redisPublish
	d.subscribe = d.redisSubscribe
	return d
}

// Dispatch は配信をRedisへ発行する。発行に失敗した場合や購読が確立していない場合は
// 自プロセスへ直接配信する。
func (d *RedisDispatcher) Dispatch(ctx context.Context, recipientID string, f event.Frame) {
	payload, err := json.Marshal(pushEnvelope{RecipientID: recipientID, Frame: f})
	if err == nil {
		err = d.publish(ctx, payload)
	}
	if err != nil {
		d.logger.Warn("publish failed, delivering locally",
			zap.String("recipient_id", recipientID),
			zap.Error(err),
		)
		d.local.Dispatch(ctx, recipientID, f)
		return
	}
	if !d.subscribed.Load() {
		d.local.Dispatch(ctx, recipientID, f)
	}
}

// Run はctxがキャンセルされるまでチャネルを購読し、受信した配信を処理する。
// 購読に失敗した場合や購読が切れた場合は待ち時間を倍にしながら再購読する。
func (d *RedisDispatcher) Run(ctx context.Context) error {
	wait := d.retryMin
	for {
		sub, err := d.subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Warn("broker subscribe failed, retrying",
				zap.String("channel", d.channel),
				zap.Duration("retry_in", wait),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			wait = min(wait*2, d.retryMax)
			continue
		}

		wait = d.retryMin
		d.subscribed.Store(true)
		d.logger.Info("broker subscribed", zap.String("channel", d.channel))
		d.consume(ctx, sub)
		d.subscribed.Store(false)
		sub.Close()

		if ctx.Err() != nil {
			return nil
		}
		d.logger.Warn("broker subscription lost, resubscribing", zap.String("channel", d.channel))
	}
}

// consume は購読が閉じられるかctxがキャンセルされるまで配信を処理する。
func (d *RedisDispatcher) consume(ctx context.Context, sub subscription) {
	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			d.handleMessage(ctx, msg.Payload)
		}
	}
}

func (d *RedisDispatcher) redisPublish(ctx context.Context, payload []byte) error {
	return d.client.Publish(ctx, d.channel, payload).Err()
}

// redisSubscribe はチャネルを購読し、購読の確立を確認してから返す。
func (d *RedisDispatcher) redisSubscribe(ctx context.Context) (subscription, error) {
	sub := d.client.Subscribe(ctx, d.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("チャネル %s の購読に失敗: %w", d.channel, err)
	}
	return sub, nil
}

// handleMessage は受信した配信メッセージを自プロセスの送信路へ渡す。
func (d *RedisDispatcher) handleMessage(ctx context.Context, payload string) {
	var env pushEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		d.logger.Warn("malformed push envelope", zap.Error(err))
		return
	}
	if env.RecipientID == "" || !env.Frame.Name.Valid() {
		d.logger.Warn("incomplete push envelope", zap.String("recipient_id", env.RecipientID))
		return
	}
	d.local.Dispatch(ctx, env.RecipientID, env.Frame)
}

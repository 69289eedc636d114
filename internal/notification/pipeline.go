package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nao1215/notifyhub/pkg/event"
)

// tracerName はパイプラインのトレーサー名。
const tracerName = "github.com/nao1215/notifyhub/internal/notification"

// Creator は通知を検証・永続化し、永続化に成功した通知をプッシュ配信する。
type Creator struct {
	store      Store
	dispatcher Dispatcher
	directory  Directory
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
	newID      func() string
}

// CreatorOption はCreatorのオプション。
type CreatorOption func(*Creator)

// WithClock は作成日時に使う時計を差し替える。
func WithClock(now func() time.Time) CreatorOption {
	return func(c *Creator) {
		c.now = now
	}
}

// WithIDGenerator は通知IDの生成方法を差し替える。
func WithIDGenerator(newID func() string) CreatorOption {
	return func(c *Creator) {
		c.newID = newID
	}
}

// NewCreator は新しいCreatorを生成する。directoryがnilの場合は空のStaticDirectoryを使う。
func NewCreator(store Store, dispatcher Dispatcher, directory Directory, logger *zap.Logger, opts ...CreatorOption) *Creator {
	if directory == nil {
		directory = StaticDirectory{}
	}
	c := &Creator{
		store:      store,
		dispatcher: dispatcher,
		directory:  directory,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateOne は1件の通知を作成する。
func (c *Creator) CreateOne(ctx context.Context, p CreateParams) (*Notification, error) {
	ctx, span := c.tracer.Start(ctx, "notification.CreateOne",
		trace.WithAttributes(attribute.Int("notification.recipients", 1)))
	defer span.End()

	if err := p.Validate(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	n := newNotification(c.newID(), p.RecipientID, p.SharedFields, c.createdAt())
	if err := c.store.Create(ctx, n); err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("通知の作成に失敗: %w", err)
	}
	notificationsCreated.Inc()

	c.push(ctx, []*Notification{n}, p.ActorID)
	return n, nil
}

// CreateMany は同じ内容の通知を複数の受信者に作成する。
// 重複した受信者は最初の1件のみ扱い、全件を1トランザクションで保存する。
func (c *Creator) CreateMany(ctx context.Context, recipientIDs []string, f SharedFields) ([]*Notification, error) {
	ctx, span := c.tracer.Start(ctx, "notification.CreateMany")
	defer span.End()

	recipients, err := dedupeRecipients(recipientIDs)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("notification.recipients", len(recipients)))

	if err := f.Validate(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	ns := make([]*Notification, 0, len(recipients))
	for _, recipientID := range recipients {
		ns = append(ns, newNotification(c.newID(), recipientID, f, c.createdAt()))
	}

	if err := c.store.CreateBatch(ctx, ns); err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("通知の一括作成に失敗: %w", err)
	}
	notificationsCreated.Add(float64(len(ns)))

	c.push(ctx, ns, f.ActorID)
	return ns, nil
}

// CreateForGroup はグループのアクティブなメンバー全員に通知を作成する。
// excludeActorがtrueの場合はアクター本人を除外する。メンバーがいなければ空を返す。
func (c *Creator) CreateForGroup(ctx context.Context, groupID string, f SharedFields, excludeActor bool) ([]*Notification, error) {
	ctx, span := c.tracer.Start(ctx, "notification.CreateForGroup",
		trace.WithAttributes(attribute.String("notification.group_id", groupID)))
	defer span.End()

	if strings.TrimSpace(groupID) == "" {
		err := fmt.Errorf("%w: グループIDは必須です", ErrValidation)
		recordSpanError(span, err)
		return nil, err
	}
	if err := f.Validate(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	members, err := c.directory.ActiveMembers(ctx, groupID)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrMembership, err)
		recordSpanError(span, err)
		return nil, err
	}

	recipients := make([]string, 0, len(members))
	for _, m := range members {
		if excludeActor && f.ActorID != nil && m == *f.ActorID {
			continue
		}
		recipients = append(recipients, m)
	}
	if len(recipients) == 0 {
		return []*Notification{}, nil
	}

	return c.CreateMany(ctx, recipients, f)
}

// createdAt はストアで往復しても変化しない精度の作成日時を返す。
func (c *Creator) createdAt() time.Time {
	return time.Unix(0, c.now().UnixNano()).UTC()
}

// pushedNotification はnotificationイベントで送る通知。アクターの表示情報を含む。
type pushedNotification struct {
	Notification
	Actor *Actor `json:"actor,omitempty"`
}

// push は永続化済みの通知を配信する。失敗はログに記録するのみで呼び出し元へ返さない。
func (c *Creator) push(ctx context.Context, ns []*Notification, actorID *string) {
	// 呼び出し元のキャンセルで健全な接続を閉じないよう切り離す
	ctx = context.WithoutCancel(ctx)

	var actor *Actor
	if actorID != nil {
		a, err := c.directory.Actor(ctx, *actorID)
		if err != nil {
			c.logger.Warn("actor lookup failed", zap.String("actor_id", *actorID), zap.Error(err))
		} else {
			actor = a
		}
	}

	for _, n := range ns {
		raw, err := json.Marshal(pushedNotification{Notification: *n, Actor: actor})
		if err != nil {
			c.logger.Error("notification encode failed", zap.String("notification_id", n.ID), zap.Error(err))
			continue
		}
		f, err := event.New(event.NameNotification, event.NotificationData{Notification: raw})
		if err != nil {
			c.logger.Error("frame build failed", zap.String("notification_id", n.ID), zap.Error(err))
			continue
		}
		c.dispatcher.Dispatch(ctx, n.RecipientID, f)
	}
}

// dedupeRecipients は空白を除いた受信者IDを最初の出現順で重複排除する。
func dedupeRecipients(recipientIDs []string) ([]string, error) {
	seen := make(map[string]struct{}, len(recipientIDs))
	out := make([]string, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("%w: 空の受信者IDが含まれています", ErrValidation)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: 受信者が指定されていません", ErrValidation)
	}
	return out, nil
}

// recordSpanError はエラーをスパンに記録する。
func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nao1215/notifyhub/pkg/event"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// openTestStore はテスト用の一時SQLiteファイルにスキーマを適用したストアを返す。
func openTestStore(t *testing.T) *SQLStore {
	t.Helper()

	db, err := OpenDB("sqlite", filepath.Join(t.TempDir(), "notification.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = Migrate(t.Context(), db, zap.NewNop())
	require.NoError(t, err)

	return NewSQLStore(db)
}

// stepClock は呼び出しごとに一定間隔で進む時計。
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(start time.Time, step time.Duration) *stepClock {
	return &stepClock{now: start, step: step}
}

// Now は現在時刻を返して時計を進める。
func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// testNotification はテスト用の通知を生成する。
func testNotification(recipientID string, createdAt time.Time) *Notification {
	return &Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Type:        TypeTaskAssigned,
		Title:       "タスクが割り当てられました",
		Message:     "設計レビューを担当してください",
		CreatedAt:   time.Unix(0, createdAt.UnixNano()).UTC(),
	}
}

// testShared はテスト用の共有フィールドを返す。
func testShared() SharedFields {
	return SharedFields{
		Type:    TypeTaskAssigned,
		Title:   "タスクが割り当てられました",
		Message: "設計レビューを担当してください",
	}
}

// fakeChannel は送信されたフレームを記録するChannel。
type fakeChannel struct {
	mu      sync.Mutex
	frames  []event.Frame
	sendErr error
	done    chan struct{}
	once    sync.Once
}

var _ Channel = (*fakeChannel)(nil)

func newFakeChannel(sendErr error) *fakeChannel {
	return &fakeChannel{sendErr: sendErr, done: make(chan struct{})}
}

func (c *fakeChannel) Send(_ context.Context, f event.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeChannel) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *fakeChannel) Done() <-chan struct{} {
	return c.done
}

// Frames は送信されたフレームのコピーを返す。
func (c *fakeChannel) Frames() []event.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Frame(nil), c.frames...)
}

// Closed は閉じられたかどうかを返す。
func (c *fakeChannel) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// errStoreUnavailable はストア障害を表すテスト用エラー。
var errStoreUnavailable = errors.New("store unavailable")

// failingStore は書き込みを常に失敗させるStore。
type failingStore struct {
	Store
}

func (failingStore) Create(context.Context, *Notification) error {
	return errStoreUnavailable
}

func (failingStore) CreateBatch(context.Context, []*Notification) error {
	return errStoreUnavailable
}

// recordingDispatcher は配信要求を記録するDispatcher。
type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

type dispatchCall struct {
	recipientID string
	frame       event.Frame
}

func (d *recordingDispatcher) Dispatch(_ context.Context, recipientID string, f event.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{recipientID: recipientID, frame: f})
}

// Calls は記録された配信要求のコピーを返す。
func (d *recordingDispatcher) Calls() []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatchCall(nil), d.calls...)
}

// decodePushed はnotificationフレームから通知を取り出す。
func decodePushed(t *testing.T, f event.Frame) pushedNotification {
	t.Helper()

	data, err := event.DecodeData[event.NotificationData](f)
	require.NoError(t, err)

	var pushed pushedNotification
	require.NoError(t, json.Unmarshal(data.Notification, &pushed))
	return pushed
}

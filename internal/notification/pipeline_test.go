package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nao1215/notifyhub/pkg/event"
)

// failingDirectory はメンバー解決に失敗するDirectory。
type failingDirectory struct{}

func (failingDirectory) ActiveMembers(context.Context, string) ([]string, error) {
	return nil, errors.New("directory unavailable")
}

func (failingDirectory) Actor(context.Context, string) (*Actor, error) {
	return nil, errors.New("directory unavailable")
}

// newTestCreator はローカル配信と一時ストアを使うCreatorを生成する。
func newTestCreator(t *testing.T, store Store, directory Directory) (*Creator, *Registry) {
	t.Helper()
	registry := NewRegistry()
	c := NewCreator(store, NewLocalDispatcher(registry, zap.NewNop()), directory, zap.NewNop(),
		WithClock(newStepClock(baseTime, time.Millisecond).Now))
	return c, registry
}

// TestCreatorCreateOne は1件作成を検証する。
func TestCreatorCreateOne(t *testing.T) {
	t.Parallel()

	t.Run("保存してから接続中の受信者へ配信すること", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)
		creator, registry := newTestCreator(t, store, nil)
		ch := newFakeChannel(nil)
		registry.Register("user-1", ch)

		n, err := creator.CreateOne(t.Context(), CreateParams{RecipientID: "user-1", SharedFields: testShared()})
		require.NoError(t, err)

		stored, err := store.Get(t.Context(), n.ID)
		require.NoError(t, err)
		assert.Equal(t, n.Title, stored.Title)
		assert.True(t, baseTime.Equal(stored.CreatedAt))

		frames := ch.Frames()
		require.Len(t, frames, 1)
		assert.Equal(t, event.NameNotification, frames[0].Name)
		pushed := decodePushed(t, frames[0])
		assert.Equal(t, n.ID, pushed.ID)
		assert.False(t, pushed.Read)
		assert.Nil(t, pushed.Actor)
	})

	t.Run("保存に失敗した場合はエラーを返し配信しないこと", func(t *testing.T) {
		t.Parallel()
		creator, registry := newTestCreator(t, failingStore{}, nil)
		ch := newFakeChannel(nil)
		registry.Register("user-1", ch)

		n, err := creator.CreateOne(t.Context(), CreateParams{RecipientID: "user-1", SharedFields: testShared()})
		require.ErrorIs(t, err, errStoreUnavailable)
		assert.Nil(t, n)
		assert.Empty(t, ch.Frames())
	})

	t.Run("配信に失敗しても作成は成功すること", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)
		creator, registry := newTestCreator(t, store, nil)
		ch := newFakeChannel(errClientGone)
		registry.Register("user-1", ch)

		n, err := creator.CreateOne(t.Context(), CreateParams{RecipientID: "user-1", SharedFields: testShared()})
		require.NoError(t, err)

		_, err = store.Get(t.Context(), n.ID)
		require.NoError(t, err)

		_, ok := registry.Lookup("user-1")
		assert.False(t, ok)
		assert.True(t, ch.Closed())
	})

	t.Run("未接続の受信者でも保存されること", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)
		creator, _ := newTestCreator(t, store, nil)

		n, err := creator.CreateOne(t.Context(), CreateParams{RecipientID: "user-1", SharedFields: testShared()})
		require.NoError(t, err)

		count, err := store.CountUnread(t.Context(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		assert.NotEmpty(t, n.ID)
	})

	t.Run("不正な入力は保存せずErrValidationを返すこと", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)
		creator, _ := newTestCreator(t, store, nil)

		f := testShared()
		f.Type = "UNKNOWN"
		_, err := creator.CreateOne(t.Context(), CreateParams{RecipientID: "user-1", SharedFields: f})
		assert.ErrorIs(t, err, ErrValidation)

		count, err := store.CountUnread(t.Context(), "user-1")
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("アクターの表示情報を付与して配信すること", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)
		directory := StaticDirectory{Actors: map[string]Actor{
			"user-9": {ID: "user-9", Name: "山田 太郎", AvatarURL: "https://example.com/a.png"},
		}}
		creator, registry := newTestCreator(t, store, directory)
		ch := newFakeChannel(nil)
		registry.Register("user-1", ch)

		f := testShared()
		actorID := "user-9"
		f.ActorID = &actorID
		_, err := creator.CreateOne(t.Context(), CreateParams{RecipientID: "user-1", SharedFields: f})
		require.NoError(t, err)

		require.Len(t, ch.Frames(), 1)
		pushed := decodePushed(t, ch.Frames()[0])
		require.NotNil(t, pushed.Actor)
		assert.Equal(t, "山田 太郎", pushed.Actor.Name)
		assert.Equal(t, "user-9", *pushed.ActorID)
	})

	t.Run("アクターの解決に失敗しても配信すること", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)
		creator, registry := newTestCreator(t, store, failingDirectory{})
		ch := newFakeChannel(nil)
		registry.Register("user-1", ch)

		f := testShared()
		actorID := "user-9"
		f.ActorID = &actorID
		_, err := creator.CreateOne(t.Context(), CreateParams{RecipientID: "user-1", SharedFields: f})
		require.NoError(t, err)

		require.Len(t, ch.Frames(), 1)
		assert.Nil(t, decodePushed(t, ch.Frames()[0]).Actor)
	})

	t.Run("呼び出し元のキャンセル後も配信できること", func(t *testing.T) {
		t.Parallel()
		dispatcher := &recordingDispatcher{}
		store := openTestStore(t)
		creator := NewCreator(store, dispatcher, nil, zap.NewNop())

		ctx, cancel := context.WithCancel(t.Context())
		n, err := creator.CreateOne(ctx, CreateParams{RecipientID: "user-1", SharedFields: testShared()})
		cancel()
		require.NoError(t, err)

		calls := dispatcher.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "user-1", calls[0].recipientID)
		assert.Equal(t, n.ID, decodePushed(t, calls[0].frame).ID)
	})
}

// TestCreatorCreateMany は一括作成を検証する。
func TestCreatorCreateMany(t *testing.T) {
	t.Parallel()

	t.Run("受信者ごとに別IDで保存し接続中の受信者へ配信すること", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)
		creator, registry := newTestCreator(t, store, nil)
		ch1 := newFakeChannel(nil)
		ch3 := newFakeChannel(nil)
		registry.Register("user-1", ch1)
		registry.Register("user-3", ch3)

		ns, err := creator.CreateMany(t.Context(), []string{"user-1", "user-2", "user-3"}, testShared())
		require.NoError(t, err)
		require.Len(t, ns, 3)

		ids := map[string]bool{}
		for i, recipient := range []string{"user-1", "user-2", "user-3"} {
			assert.Equal(t, recipient, ns[i].RecipientID)
			assert.Equal(t, testShared().Title, ns[i].Title)
			ids[ns[i].ID] = true
		}
		assert.Len(t, ids, 3)

		require.Len(t, ch1.Frames(), 1)
		require.Len(t, ch3.Frames(), 1)
		assert.Equal(t, ns[0].ID, decodePushed(t, ch1.Frames()[0]).ID)
		assert.Equal(t, ns[2].ID, decodePushed(t, ch3.Frames()[0]).ID)
	})

	t.Run("重複した受信者は1件にまとめること", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)
		creator, _ := newTestCreator(t, store, nil)

		ns, err := creator.CreateMany(t.Context(), []string{"user-2", "user-1", "user-2"}, testShared())
		require.NoError(t, err)
		require.Len(t, ns, 2)
		assert.Equal(t, "user-2", ns[0].RecipientID)
		assert.Equal(t, "user-1", ns[1].RecipientID)
	})

	t.Run("保存に失敗した場合はどの受信者にも配信しないこと", func(t *testing.T) {
		t.Parallel()
		creator, registry := newTestCreator(t, failingStore{}, nil)
		channels := map[string]*fakeChannel{}
		for _, id := range []string{"user-1", "user-2", "user-3"} {
			channels[id] = newFakeChannel(nil)
			registry.Register(id, channels[id])
		}

		_, err := creator.CreateMany(t.Context(), []string{"user-1", "user-2", "user-3"}, testShared())
		require.ErrorIs(t, err, errStoreUnavailable)
		for id, ch := range channels {
			assert.Empty(t, ch.Frames(), id)
		}
	})

	t.Run("受信者が空の場合はErrValidationになること", func(t *testing.T) {
		t.Parallel()
		creator, _ := newTestCreator(t, openTestStore(t), nil)

		_, err := creator.CreateMany(t.Context(), nil, testShared())
		assert.ErrorIs(t, err, ErrValidation)

		_, err = creator.CreateMany(t.Context(), []string{"user-1", ""}, testShared())
		assert.ErrorIs(t, err, ErrValidation)
	})
}

// TestCreatorCreateForGroup はグループ宛ての作成を検証する。
func TestCreatorCreateForGroup(t *testing.T) {
	t.Parallel()

	directory := StaticDirectory{Members: map[string][]string{
		"project-1": {"user-1", "user-2", "user-9"},
	}}

	t.Run("アクター本人を除外してメンバー全員に作成すること", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)
		creator, _ := newTestCreator(t, store, directory)

		f := testShared()
		actorID := "user-9"
		f.ActorID = &actorID
		ns, err := creator.CreateForGroup(t.Context(), "project-1", f, true)
		require.NoError(t, err)

		var recipients []string
		for _, n := range ns {
			recipients = append(recipients, n.RecipientID)
		}
		assert.Equal(t, []string{"user-1", "user-2"}, recipients)
	})

	t.Run("除外しない場合はアクター本人にも作成すること", func(t *testing.T) {
		t.Parallel()
		creator, _ := newTestCreator(t, openTestStore(t), directory)

		f := testShared()
		actorID := "user-9"
		f.ActorID = &actorID
		ns, err := creator.CreateForGroup(t.Context(), "project-1", f, false)
		require.NoError(t, err)
		assert.Len(t, ns, 3)
	})

	t.Run("メンバーがいない場合は空を返すこと", func(t *testing.T) {
		t.Parallel()
		creator, _ := newTestCreator(t, openTestStore(t), directory)

		ns, err := creator.CreateForGroup(t.Context(), "project-empty", testShared(), false)
		require.NoError(t, err)
		assert.Empty(t, ns)
	})

	t.Run("メンバーの解決に失敗した場合はErrMembershipになること", func(t *testing.T) {
		t.Parallel()
		creator, _ := newTestCreator(t, openTestStore(t), failingDirectory{})

		_, err := creator.CreateForGroup(t.Context(), "project-1", testShared(), false)
		assert.ErrorIs(t, err, ErrMembership)
	})

	t.Run("グループIDが空の場合はErrValidationになること", func(t *testing.T) {
		t.Parallel()
		creator, _ := newTestCreator(t, openTestStore(t), directory)

		_, err := creator.CreateForGroup(t.Context(), " ", testShared(), false)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

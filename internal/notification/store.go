package notification

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nao1215/notifyhub/pkg/migration"
)

//go:embed migrations
var migrationsFS embed.FS

// Store は通知レコードの永続化を担う。
type Store interface {
	// Create は1件の通知を保存する。
	Create(ctx context.Context, n *Notification) error
	// CreateBatch は複数の通知を1トランザクションで保存する。1件でも失敗すれば何も保存されない。
	CreateBatch(ctx context.Context, ns []*Notification) error
	// Get はIDで通知を取得する。存在しない場合はErrNotFoundを返す。
	Get(ctx context.Context, id string) (*Notification, error)
	// List はページ単位の通知と条件に一致する総件数を返す。
	List(ctx context.Context, q ListQuery) ([]Notification, int64, error)
	// CountUnread は未読件数を返す。
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	// MarkRead は受信者本人の通知を既読にする。
	// 存在しない場合はErrNotFound、他ユーザーの通知の場合はErrForbiddenを返す。
	MarkRead(ctx context.Context, id, recipientID string, at time.Time) error
	// MarkAllRead は受信者の未読通知をすべて既読にし、更新件数を返す。
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
	// PurgeReadBefore は指定日時より前に作成された既読通知を削除する。
	PurgeReadBefore(ctx context.Context, before time.Time) (int64, error)
}

// ListQuery は一覧取得の条件。
type ListQuery struct {
	// RecipientID は通知先のユーザーID。
	RecipientID string
	// UnreadOnly がtrueの場合は未読のみを対象にする。
	UnreadOnly bool
	// Limit は取得件数。
	Limit int
	// Offset は読み飛ばす件数。
	Offset int
}

// OpenDB はドライバ名とDSNからデータベース接続を開く。
// driverは "sqlite" または "postgres"。
func OpenDB(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if driver == "sqlite" {
		// SQLiteは書き込みが直列化されるため接続を1本に絞る
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("%s の実行に失敗: %w", pragma, err)
			}
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}
	return db, nil
}

// Migrate はドライバに対応するスキーマを適用し、適用件数を返す。
func Migrate(ctx context.Context, db *sqlx.DB, logger *zap.Logger) (int, error) {
	dir := "migrations/" + db.DriverName()
	n, err := migration.Run(ctx, db, migrationsFS, dir, logger)
	if err != nil {
		return n, fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return n, nil
}

// SQLStore はsqlxによるStoreの実装。
type SQLStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore は新しいSQLStoreを生成する。
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// notificationRow はnotificationsテーブルの1行。
type notificationRow struct {
	ID          string         `db:"id"`
	RecipientID string         `db:"recipient_id"`
	Type        string         `db:"type"`
	Title       string         `db:"title"`
	Message     string         `db:"message"`
	Link        sql.NullString `db:"link"`
	IsRead      bool           `db:"is_read"`
	ActorID     sql.NullString `db:"actor_id"`
	Metadata    sql.NullString `db:"metadata"`
	CreatedAt   int64          `db:"created_at"`
	ReadAt      sql.NullInt64  `db:"read_at"`
}

const selectColumns = `id, recipient_id, type, title, message, link, is_read, actor_id, metadata, created_at, read_at`

const insertQuery = `INSERT INTO notifications
	(id, recipient_id, type, title, message, link, is_read, actor_id, metadata, created_at)
	VALUES (?, ?, ?, ?, ?, ?, FALSE, ?, ?, ?)`

// toNotification はDB行をドメインの通知に変換する。
func (r notificationRow) toNotification() Notification {
	n := Notification{
		ID:          r.ID,
		RecipientID: r.RecipientID,
		Type:        Type(r.Type),
		Title:       r.Title,
		Message:     r.Message,
		Read:        r.IsRead,
		CreatedAt:   time.Unix(0, r.CreatedAt).UTC(),
	}
	if r.Link.Valid {
		n.Link = &r.Link.String
	}
	if r.ActorID.Valid {
		n.ActorID = &r.ActorID.String
	}
	if r.Metadata.Valid {
		n.Metadata = json.RawMessage(r.Metadata.String)
	}
	if r.ReadAt.Valid {
		readAt := time.Unix(0, r.ReadAt.Int64).UTC()
		n.ReadAt = &readAt
	}
	return n
}

// insertArgs はINSERT文のプレースホルダに渡す値を返す。
func insertArgs(n *Notification) []any {
	return []any{
		n.ID,
		n.RecipientID,
		string(n.Type),
		n.Title,
		n.Message,
		nullString(n.Link),
		nullString(n.ActorID),
		nullJSON(n.Metadata),
		n.CreatedAt.UnixNano(),
	}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if isNullJSON(raw) {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// Create は1件の通知を保存する。
func (s *SQLStore) Create(ctx context.Context, n *Notification) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(insertQuery), insertArgs(n)...); err != nil {
		return fmt.Errorf("通知の保存に失敗: %w", err)
	}
	return nil
}

// CreateBatch は複数の通知を1トランザクションで保存する。
func (s *SQLStore) CreateBatch(ctx context.Context, ns []*Notification) error {
	if len(ns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := tx.Rebind(insertQuery)
	for _, n := range ns {
		if _, err := tx.ExecContext(ctx, query, insertArgs(n)...); err != nil {
			return fmt.Errorf("通知 %s の保存に失敗: %w", n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}
	return nil
}

// Get はIDで通知を取得する。
func (s *SQLStore) Get(ctx context.Context, id string) (*Notification, error) {
	var row notificationRow
	query := s.db.Rebind(`SELECT ` + selectColumns + ` FROM notifications WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("通知の取得に失敗: %w", err)
	}
	n := row.toNotification()
	return &n, nil
}

// List はcreated_at降順、同時刻はid降順で通知を返す。
func (s *SQLStore) List(ctx context.Context, q ListQuery) ([]Notification, int64, error) {
	where := `recipient_id = ?`
	if q.UnreadOnly {
		where += ` AND is_read = FALSE`
	}

	var total int64
	countQuery := s.db.Rebind(`SELECT COUNT(*) FROM notifications WHERE ` + where)
	if err := s.db.GetContext(ctx, &total, countQuery, q.RecipientID); err != nil {
		return nil, 0, fmt.Errorf("通知件数の取得に失敗: %w", err)
	}

	var rows []notificationRow
	listQuery := s.db.Rebind(`SELECT ` + selectColumns + ` FROM notifications WHERE ` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)
	if err := s.db.SelectContext(ctx, &rows, listQuery, q.RecipientID, q.Limit, q.Offset); err != nil {
		return nil, 0, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}

	notifications := make([]Notification, 0, len(rows))
	for _, r := range rows {
		notifications = append(notifications, r.toNotification())
	}
	return notifications, total, nil
}

// CountUnread は未読件数を返す。
func (s *SQLStore) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	query := s.db.Rebind(`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = FALSE`)
	if err := s.db.GetContext(ctx, &count, query, recipientID); err != nil {
		return 0, fmt.Errorf("未読件数の取得に失敗: %w", err)
	}
	return count, nil
}

// MarkRead は受信者本人の通知を既読にする。既読済みの場合はread_atを変更しない。
func (s *SQLStore) MarkRead(ctx context.Context, id, recipientID string, at time.Time) error {
	query := s.db.Rebind(`UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, ?)
		WHERE id = ? AND recipient_id = ?`)
	res, err := s.db.ExecContext(ctx, query, at.UnixNano(), id, recipientID)
	if err != nil {
		return fmt.Errorf("通知の既読処理に失敗: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// 一致しなかった理由を存在有無で区別する
	var owner string
	ownerQuery := s.db.Rebind(`SELECT recipient_id FROM notifications WHERE id = ?`)
	if err := s.db.GetContext(ctx, &owner, ownerQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("通知の取得に失敗: %w", err)
	}
	return ErrForbidden
}

// MarkAllRead は受信者の未読通知を1文で既読にする。
// 実行時点で存在する行のみが対象になる。
func (s *SQLStore) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	query := s.db.Rebind(`UPDATE notifications SET is_read = TRUE, read_at = ?
		WHERE recipient_id = ? AND is_read = FALSE`)
	res, err := s.db.ExecContext(ctx, query, at.UnixNano(), recipientID)
	if err != nil {
		return 0, fmt.Errorf("全通知の既読処理に失敗: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	return affected, nil
}

// PurgeReadBefore は指定日時より前に作成された既読通知を削除する。
func (s *SQLStore) PurgeReadBefore(ctx context.Context, before time.Time) (int64, error) {
	query := s.db.Rebind(`DELETE FROM notifications WHERE is_read = TRUE AND created_at < ?`)
	res, err := s.db.ExecContext(ctx, query, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("既読通知の削除に失敗: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return affected, nil
}

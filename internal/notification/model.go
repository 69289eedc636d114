package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Type は通知の種別。
type Type string

const (
	// TypeTaskAssigned はタスクが割り当てられたことを表す。
	TypeTaskAssigned Type = "TASK_ASSIGNED"
	// TypeTaskCompleted はタスクが完了したことを表す。
	TypeTaskCompleted Type = "TASK_COMPLETED"
	// TypeTaskComment はタスクにコメントが付いたことを表す。
	TypeTaskComment Type = "TASK_COMMENT"
	// TypeTaskDueSoon はタスクの期限が近いことを表す。
	TypeTaskDueSoon Type = "TASK_DUE_SOON"
	// TypeProjectInvite はプロジェクトに招待されたことを表す。
	TypeProjectInvite Type = "PROJECT_INVITE"
	// TypeProjectUpdate はプロジェクトが更新されたことを表す。
	TypeProjectUpdate Type = "PROJECT_UPDATE"
	// TypeMeetingScheduled は会議が予定されたことを表す。
	TypeMeetingScheduled Type = "MEETING_SCHEDULED"
	// TypeProposalSubmitted は提案が提出されたことを表す。
	TypeProposalSubmitted Type = "PROPOSAL_SUBMITTED"
	// TypeProposalApproved は提案が承認されたことを表す。
	TypeProposalApproved Type = "PROPOSAL_APPROVED"
	// TypeProposalRejected は提案が却下されたことを表す。
	TypeProposalRejected Type = "PROPOSAL_REJECTED"
	// TypeCostAlert はコストに関する警告を表す。
	TypeCostAlert Type = "COST_ALERT"
	// TypeBudgetExceeded は予算超過を表す。
	TypeBudgetExceeded Type = "BUDGET_EXCEEDED"
	// TypeSystem はシステムからのお知らせを表す。
	TypeSystem Type = "SYSTEM"
)

// Valid は既知の通知種別かどうかを返す。
func (t Type) Valid() bool {
	switch t {
	case TypeTaskAssigned, TypeTaskCompleted, TypeTaskComment, TypeTaskDueSoon,
		TypeProjectInvite, TypeProjectUpdate, TypeMeetingScheduled,
		TypeProposalSubmitted, TypeProposalApproved, TypeProposalRejected,
		TypeCostAlert, TypeBudgetExceeded, TypeSystem:
		return true
	}
	return false
}

// ParseType は文字列を通知種別に変換する。
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%q: %w", s, ErrInvalidType)
	}
	return t, nil
}

const (
	// maxTitleLength はタイトルの最大文字数。
	maxTitleLength = 200
	// maxMessageLength はメッセージの最大文字数。
	maxMessageLength = 2000
)

// Notification は通知レコード。既読フラグ以外は作成後に変更されない。
type Notification struct {
	// ID は通知の一意識別子（UUID）。
	ID string `json:"id"`
	// RecipientID は通知先のユーザーID。
	RecipientID string `json:"recipientId"`
	// Type は通知の種別。
	Type Type `json:"type"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// Link は遷移先のリンク。
	Link *string `json:"link,omitempty"`
	// Read は既読状態。falseからtrueへのみ変化する。
	Read bool `json:"read"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `json:"createdAt"`
	// ReadAt は最初に既読になった日時。
	ReadAt *time.Time `json:"readAt,omitempty"`
	// ActorID は通知の原因となったユーザーのID。
	ActorID *string `json:"actorId,omitempty"`
	// Metadata は参照先エンティティのIDなどを含むJSONオブジェクト。
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Actor はプッシュ時に付与するアクターの表示情報。
type Actor struct {
	// ID はユーザーID。
	ID string `json:"id"`
	// Name は表示名。
	Name string `json:"name"`
	// AvatarURL はアバター画像のURL。
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// SharedFields は一括作成時に全レコードで共有する入力値。
type SharedFields struct {
	// Type は通知の種別。
	Type Type `json:"type"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// Link は遷移先のリンク。
	Link *string `json:"link,omitempty"`
	// ActorID は通知の原因となったユーザーのID。
	ActorID *string `json:"actorId,omitempty"`
	// Metadata は任意のJSONオブジェクト。
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// CreateParams は1件の通知作成の入力値。
type CreateParams struct {
	// RecipientID は通知先のユーザーID。
	RecipientID string `json:"recipientId"`
	SharedFields
}

// Validate は共有フィールドを検証する。
func (f SharedFields) Validate() error {
	if !f.Type.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrInvalidType, f.Type)
	}

	title := strings.TrimSpace(f.Title)
	if title == "" {
		return fmt.Errorf("%w: タイトルは必須です", ErrValidation)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return fmt.Errorf("%w: タイトルは%d文字以内で指定してください", ErrValidation, maxTitleLength)
	}

	message := strings.TrimSpace(f.Message)
	if message == "" {
		return fmt.Errorf("%w: メッセージは必須です", ErrValidation)
	}
	if utf8.RuneCountInString(message) > maxMessageLength {
		return fmt.Errorf("%w: メッセージは%d文字以内で指定してください", ErrValidation, maxMessageLength)
	}

	if f.ActorID != nil && strings.TrimSpace(*f.ActorID) == "" {
		return fmt.Errorf("%w: actorIdが空です", ErrValidation)
	}

	if !isNullJSON(f.Metadata) {
		if !json.Valid(f.Metadata) {
			return fmt.Errorf("%w: metadataが不正なJSONです", ErrValidation)
		}
		if trimmed := bytes.TrimSpace(f.Metadata); trimmed[0] != '{' {
			return fmt.Errorf("%w: metadataはJSONオブジェクトである必要があります", ErrValidation)
		}
	}
	return nil
}

// Validate は入力値を検証する。
func (p CreateParams) Validate() error {
	if strings.TrimSpace(p.RecipientID) == "" {
		return fmt.Errorf("%w: recipientIdは必須です", ErrValidation)
	}
	return p.SharedFields.Validate()
}

// newNotification は検証済みの入力からレコードを組み立てる。
func newNotification(id, recipientID string, f SharedFields, createdAt time.Time) *Notification {
	n := &Notification{
		ID:          id,
		RecipientID: strings.TrimSpace(recipientID),
		Type:        f.Type,
		Title:       strings.TrimSpace(f.Title),
		Message:     strings.TrimSpace(f.Message),
		CreatedAt:   createdAt,
		ActorID:     f.ActorID,
	}
	if f.Link != nil && strings.TrimSpace(*f.Link) != "" {
		link := strings.TrimSpace(*f.Link)
		n.Link = &link
	}
	if !isNullJSON(f.Metadata) {
		n.Metadata = append(json.RawMessage(nil), bytes.TrimSpace(f.Metadata)...)
	}
	return n
}

// isNullJSON はJSONが未指定またはnullかどうかを返す。
func isNullJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

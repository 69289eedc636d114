package notification

import "errors"

var (
	// ErrNotFound は通知が存在しない場合のエラー。
	ErrNotFound = errors.New("通知が見つかりません")
	// ErrForbidden は他ユーザーの通知を操作しようとした場合のエラー。
	ErrForbidden = errors.New("この通知を操作する権限がありません")
	// ErrValidation は入力値が不正な場合のエラー。
	ErrValidation = errors.New("入力値が不正です")
	// ErrInvalidType は未知の通知種別が指定された場合のエラー。
	ErrInvalidType = errors.New("未知の通知種別です")
	// ErrMembership はグループメンバーの解決に失敗した場合のエラー。
	ErrMembership = errors.New("メンバーの解決に失敗しました")
	// ErrSlowConsumer はクライアントの受信キューが時間内に空かなかった場合のエラー。
	ErrSlowConsumer = errors.New("クライアントの受信が遅延しています")
	// ErrChannelClosed は閉じられた接続に送信しようとした場合のエラー。
	ErrChannelClosed = errors.New("接続は閉じられています")
)

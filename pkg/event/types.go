package event

import (
	"encoding/json"
	"time"
)

// Name はストリームイベントの種類を表す。
type Name string

const (
	// NameConnected は接続確立直後に一度だけ送信されるイベント。
	NameConnected Name = "connected"
	// NameHeartbeat は接続維持のために定期送信されるイベント。
	NameHeartbeat Name = "heartbeat"
	// NameNotification は新しい通知のプッシュを表すイベント。
	NameNotification Name = "notification"
)

// Valid はイベント名が既知のものかどうかを返す。
func (n Name) Valid() bool {
	switch n {
	case NameConnected, NameHeartbeat, NameNotification:
		return true
	}
	return false
}

// ConnectedData はconnectedイベントのペイロード。
type ConnectedData struct {
	// RecipientID は接続したユーザーのID。
	RecipientID string `json:"recipientId"`
	// Timestamp はサーバー側の接続確立時刻。
	Timestamp time.Time `json:"timestamp"`
}

// HeartbeatData はheartbeatイベントのペイロード。
type HeartbeatData struct {
	// Timestamp はハートビート送信時刻。
	Timestamp time.Time `json:"timestamp"`
}

// NotificationData はnotificationイベントのペイロード。
// 通知レコード本体はサービス側の型でシリアライズ済みのJSONを保持する。
type NotificationData struct {
	// Notification は通知レコード（アクター表示情報を含む）。
	Notification json.RawMessage `json:"notification"`
}

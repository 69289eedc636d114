// Package event は通知ストリームのワイヤプロトコルを提供する。
//
// サーバーからクライアントへ一方向に流れるイベントは、以下のテキスト形式で
// フレーム化される。
//
//	event: <イベント名>\n
//	data: <JSONペイロード>\n
//	\n
//
// イベント名は connected / heartbeat / notification の3種類のみ。
package event

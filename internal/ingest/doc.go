// Package ingest はKafkaトピックから通知生成リクエストを取り込む。
//
// HTTPの内部APIを呼ぶ代わりにメッセージを発行するプロデューサー向けの入口で、
// メッセージの宛先に応じて1件作成・一括作成・グループ宛て作成に振り分ける。
// 解析や検証に失敗したメッセージはログに記録して読み飛ばす。
package ingest

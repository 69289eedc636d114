// Package notification は通知サービスの内部実装を提供する。
//
// 通知レコードの永続化と、ユーザーごとに1本だけ保持するストリーム接続への
// リアルタイム配信を担う。生成パイプラインは必ず永続化を先に行い、
// プッシュはベストエフォートで実行する。配信に失敗しても通知は一覧APIから参照できる。
package notification

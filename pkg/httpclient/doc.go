// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// 通知サービスがプロジェクトのメンバー解決やユーザー表示情報の取得のために
// ディレクトリサービスのAPIを呼び出す際に使用する。
package httpclient

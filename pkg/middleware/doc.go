// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWT認証トークンの検証（ヘッダーまたはクエリパラメータ）、サービス内部APIの
// 共有トークン検証、zapによるリクエストログ、パニックリカバリ、CORS設定を含む。
package middleware

package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// headerKeyInternalToken はサービス内部APIの共有トークンを渡すヘッダー。
const headerKeyInternalToken = "X-Internal-Token"

// InternalToken はサービス間呼び出し用の共有トークンを検証するGinミドルウェアを返す。
// 通知を生成する内部APIをエンドユーザーから隔離するために使用する。
func InternalToken(token string) gin.HandlerFunc {
	expected := []byte(token)

	return func(c *gin.Context) {
		got := []byte(c.GetHeader(headerKeyInternalToken))
		if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "内部APIトークンが無効です",
			})
			return
		}
		c.Next()
	}
}

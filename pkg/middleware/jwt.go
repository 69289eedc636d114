package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。通知の受信者IDとして扱う。
	UserID string `json:"user_id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
}

// tokenIssuer はこのサービスが発行するトークンのiss。
const tokenIssuer = "notifyhub"

// contextKeyUserID はGinコンテキストにユーザーIDを格納するキー。
const contextKeyUserID = "user_id"

// GenerateJWT はユーザー情報からJWTトークンを生成する。
// ttlが0以下の場合は24時間とする。
func GenerateJWT(secret, userID, email string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
		UserID: userID,
		Email:  email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// authConfig はJWTAuthの動作設定。
type authConfig struct {
	// queryParam が空でなければ、Authorizationヘッダーが無い場合にこのクエリパラメータからトークンを読む。
	queryParam string
}

// AuthOption はJWTAuthのオプション。
type AuthOption func(*authConfig)

// WithQueryToken はクエリパラメータからのトークン受け取りを許可する。
// EventSourceはリクエストヘッダーを設定できないため、ストリーム接続で使用する。
func WithQueryToken(param string) AuthOption {
	return func(c *authConfig) {
		c.queryParam = param
	}
}

// JWTAuth はJWTトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに "user_id" と "email" を設定する。
func JWTAuth(secret string, opts ...AuthOption) gin.HandlerFunc {
	cfg := authConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(c *gin.Context) {
		tokenString, msg := extractToken(c, cfg)
		if msg != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		claims := &JWTClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
			})
			return
		}

		// 受信者を特定できないトークンは接続させない
		if strings.TrimSpace(claims.UserID) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンにユーザーIDが含まれていません",
			})
			return
		}

		c.Set(contextKeyUserID, claims.UserID)
		c.Set("email", claims.Email)
		c.Next()
	}
}

// extractToken はリクエストからトークン文字列を取り出す。
// 取り出せない場合は2番目の戻り値にエラーメッセージを返す。
func extractToken(c *gin.Context, cfg authConfig) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if cfg.queryParam != "" {
			if q := c.Query(cfg.queryParam); q != "" {
				return q, ""
			}
		}
		return "", "Authorizationヘッダーが必要です"
	}

	tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found || tokenString == "" {
		return "", "Bearer トークン形式が不正です"
	}
	return tokenString, ""
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get(contextKeyUserID)
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

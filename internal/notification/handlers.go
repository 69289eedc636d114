package notification

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nao1215/notifyhub/pkg/middleware"
)

// paginationResponse はページ情報のJSON構造。
type paginationResponse struct {
	// Page は現在のページ番号（1始まり）。
	Page int `json:"page"`
	// Limit は1ページの件数。
	Limit int `json:"limit"`
	// Total は条件に一致する総件数。
	Total int64 `json:"total"`
	// TotalPages は総ページ数。
	TotalPages int64 `json:"totalPages"`
}

// listResponse は通知一覧のJSON構造。
type listResponse struct {
	// Notifications はページ内の通知。
	Notifications []Notification `json:"notifications"`
	// Pagination はページ情報。
	Pagination paginationResponse `json:"pagination"`
	// UnreadCount は未読件数。
	UnreadCount int64 `json:"unreadCount"`
}

// listParams は一覧取得のクエリパラメータ。
type listParams struct {
	page       int
	limit      int
	unreadOnly bool
}

// parseListParams はクエリパラメータを検証する。
func (s *Server) parseListParams(c *gin.Context) (listParams, string) {
	p := listParams{page: 1, limit: s.cfg.PageSize}

	if v := c.Query("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return p, "pageは1以上の整数で指定してください"
		}
		p.page = page
	}

	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > s.cfg.MaxPageSize {
			return p, "limitは1から" + strconv.Itoa(s.cfg.MaxPageSize) + "の整数で指定してください"
		}
		p.limit = limit
	}

	// オフセットがintに収まらないページはストアへ渡さない
	if p.page-1 > (math.MaxInt-p.limit)/p.limit {
		return p, "pageが大きすぎます"
	}

	switch c.Query("unread") {
	case "", "false", "0":
	case "true", "1":
		p.unreadOnly = true
	default:
		return p, "unreadはtrueまたはfalseで指定してください"
	}

	return p, ""
}

// handleList は認証済みユーザーの通知一覧を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		p, msg := s.parseListParams(c)
		if msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		ctx := c.Request.Context()
		notifications, total, err := s.store.List(ctx, ListQuery{
			RecipientID: userID,
			UnreadOnly:  p.unreadOnly,
			Limit:       p.limit,
			Offset:      (p.page - 1) * p.limit,
		})
		if err != nil {
			s.logger.Error("list notifications failed", zap.String("recipient_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			return
		}

		unread, err := s.store.CountUnread(ctx, userID)
		if err != nil {
			s.logger.Error("count unread failed", zap.String("recipient_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読件数の取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, listResponse{
			Notifications: notifications,
			Pagination: paginationResponse{
				Page:       p.page,
				Limit:      p.limit,
				Total:      total,
				TotalPages: (total + int64(p.limit) - 1) / int64(p.limit),
			},
			UnreadCount: unread,
		})
	}
}

// handleUnreadCount は認証済みユーザーの未読件数を返すハンドラ。
func (s *Server) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		unread, err := s.store.CountUnread(c.Request.Context(), userID)
		if err != nil {
			s.logger.Error("count unread failed", zap.String("recipient_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読件数の取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"unreadCount": unread})
	}
}

// markReadRequest は既読化リクエストのJSON構造。
type markReadRequest struct {
	// Read は既読状態。trueのみ受け付ける。
	Read *bool `json:"read"`
}

// handleMarkRead は指定された通知を既読にするハンドラ。
func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		notificationID := c.Param("id")
		if _, err := uuid.Parse(notificationID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "通知IDの形式が不正です"})
			return
		}

		var req markReadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です"})
			return
		}
		if req.Read == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "readは必須です"})
			return
		}
		if !*req.Read {
			c.JSON(http.StatusBadRequest, gin.H{"error": "既読の通知を未読に戻すことはできません"})
			return
		}

		ctx := c.Request.Context()
		if err := s.store.MarkRead(ctx, notificationID, userID, s.now()); err != nil {
			switch {
			case errors.Is(err, ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
			case errors.Is(err, ErrForbidden):
				c.JSON(http.StatusForbidden, gin.H{"error": "この通知を操作する権限がありません"})
			default:
				s.logger.Error("mark read failed", zap.String("notification_id", notificationID), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の既読処理に失敗しました"})
			}
			return
		}

		n, err := s.store.Get(ctx, notificationID)
		if err != nil {
			s.logger.Error("get notification failed", zap.String("notification_id", notificationID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, n)
	}
}

// handleMarkAllRead は認証済みユーザーの全通知を既読にするハンドラ。
func (s *Server) handleMarkAllRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		updated, err := s.store.MarkAllRead(c.Request.Context(), userID, s.now())
		if err != nil {
			s.logger.Error("mark all read failed", zap.String("recipient_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "全通知の既読処理に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

// handleStream はユーザーごとのイベントストリームを開くハンドラ。
// クライアントが切断するか接続が置き換えられるまで戻らない。
func (s *Server) handleStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		h := c.Writer.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		fw := httpFrameWriter{w: c.Writer, timeout: s.cfg.Stream.PushTimeout}
		defer fw.clearDeadline()

		if err := s.streamer.serve(c.Request.Context(), userID, fw); err != nil {
			s.logger.Info("stream closed", zap.String("recipient_id", userID), zap.Error(err))
		}
	}
}

// batchRequest は一括作成リクエストのJSON構造。
type batchRequest struct {
	// RecipientIDs は通知先のユーザーID。
	RecipientIDs []string `json:"recipientIds"`
	SharedFields
}

// groupRequest はグループ宛て作成リクエストのJSON構造。
type groupRequest struct {
	SharedFields
	// ExcludeActor がtrueの場合はアクター本人を除外する。
	ExcludeActor bool `json:"excludeActor"`
}

// handleCreate は1件の通知を作成するハンドラ。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateParams
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です"})
			return
		}

		n, err := s.creator.CreateOne(c.Request.Context(), req)
		if err != nil {
			s.writeCreateError(c, err)
			return
		}

		c.JSON(http.StatusCreated, n)
	}
}

// handleCreateBatch は複数の受信者へ通知を作成するハンドラ。
func (s *Server) handleCreateBatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req batchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です"})
			return
		}

		ns, err := s.creator.CreateMany(c.Request.Context(), req.RecipientIDs, req.SharedFields)
		if err != nil {
			s.writeCreateError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"notifications": ns})
	}
}

// handleCreateForGroup はグループのメンバー全員へ通知を作成するハンドラ。
func (s *Server) handleCreateForGroup() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req groupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です"})
			return
		}

		ns, err := s.creator.CreateForGroup(c.Request.Context(), c.Param("id"), req.SharedFields, req.ExcludeActor)
		if err != nil {
			s.writeCreateError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"notifications": ns})
	}
}

// writeCreateError は生成パイプラインのエラーをHTTPレスポンスに変換する。
func (s *Server) writeCreateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrMembership):
		s.logger.Warn("membership resolution failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "メンバーの解決に失敗しました"})
	default:
		s.logger.Error("create notification failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の作成に失敗しました"})
	}
}

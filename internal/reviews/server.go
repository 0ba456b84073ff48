package reviews

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	reviewsdb "github.com/nao1215/bookshelf/internal/reviews/db"
	"github.com/nao1215/bookshelf/pkg/cache"
	"github.com/nao1215/bookshelf/pkg/httpclient"
	"github.com/nao1215/bookshelf/pkg/middleware"
	"github.com/nao1215/bookshelf/pkg/pubsub"
)

// reviewCacheTTL は書籍単位のレビューキャッシュの有効期間。
const reviewCacheTTL = 10 * time.Minute

// Server はレビューサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はsqlcが生成したクエリ実行オブジェクト。
	queries *reviewsdb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// cache は書籍単位のレビューのRedisキャッシュ。
	cache *cache.Cache
	// publisher はドメインイベントの発行先。
	publisher pubsub.Publisher
	// booksClient は書籍の存在確認に使うbooksサービスへのHTTPクライアント。
	booksClient *httpclient.Client
	// jwtSecret はJWT検証用の秘密鍵。
	jwtSecret string
}

// NewServer は新しいレビューサーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "/data/reviews.db"
	}

	sqlDB, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", dbPath))
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	booksURL := os.Getenv("BOOKS_SERVICE_URL")
	if booksURL == "" {
		booksURL = "http://books:8002"
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-secret-key"
	}

	publisher, err := pubsub.NewFromEnv(os.Getenv("PUBSUB_MODE"), os.Getenv("REDIS_URL"))
	if err != nil {
		return nil, fmt.Errorf("イベント発行先の初期化に失敗: %w", err)
	}

	reviewCache, err := cache.NewFromURL(os.Getenv("REDIS_URL"))
	if err != nil {
		return nil, fmt.Errorf("キャッシュの初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:      router,
		port:        port,
		queries:     reviewsdb.New(sqlDB),
		db:          sqlDB,
		cache:       reviewCache,
		publisher:   publisher,
		booksClient: httpclient.New(booksURL),
		jwtSecret:   jwtSecret,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		reviews := api.Group("/reviews")
		{
			// 書籍単位のレビュー一覧取得
			reviews.GET("/book/:book_id", s.handleListByBook())
			// 書籍の評価サマリー取得
			reviews.GET("/book/:book_id/summary", s.handleSummary())
			// レビュー詳細取得
			reviews.GET("/:id", s.handleGetByID())

			authed := reviews.Group("")
			authed.Use(middleware.JWTAuth(s.jwtSecret))
			{
				// レビュー投稿
				authed.POST("", s.handleCreate())
				// ユーザー単位のレビュー一覧取得
				authed.GET("/user/:user_id", s.handleListByUser())
				// レビュー更新
				authed.PUT("/:id", s.handleUpdate())
				// レビュー削除
				authed.DELETE("/:id", s.handleDelete())
			}
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "reviews"})
	})
}

// createReviewRequest はレビュー投稿リクエストのJSON構造。
type createReviewRequest struct {
	// BookID はレビュー対象の書籍ID。
	BookID string `json:"book_id" binding:"required"`
	// Rating は評価。1〜5の整数。
	Rating int64 `json:"rating" binding:"required,min=1,max=5"`
	// Comment はレビュー本文。
	Comment string `json:"comment" binding:"max=2000"`
}

// updateReviewRequest はレビュー更新リクエストのJSON構造。
type updateReviewRequest struct {
	// Rating は評価。1〜5の整数。
	Rating int64 `json:"rating" binding:"required,min=1,max=5"`
	// Comment はレビュー本文。
	Comment string `json:"comment" binding:"max=2000"`
}

// reviewResponse はレビューのJSONレスポンス構造。
type reviewResponse struct {
	// ID はレビューの一意識別子。
	ID string `json:"id"`
	// BookID はレビュー対象の書籍ID。
	BookID string `json:"book_id"`
	// UserID はレビューしたユーザーのID。
	UserID string `json:"user_id"`
	// Rating は評価。
	Rating int64 `json:"rating"`
	// Comment はレビュー本文。
	Comment string `json:"comment"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
	// UpdatedAt は更新日時。
	UpdatedAt string `json:"updated_at"`
}

// toReviewResponse はDB行をJSONレスポンスに変換する。
func toReviewResponse(r reviewsdb.Review) reviewResponse {
	return reviewResponse{
		ID:        r.ID,
		BookID:    r.BookID,
		UserID:    r.UserID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt: r.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// invalidateBookReviewCache は書籍単位のレビューキャッシュを破棄する。
func (s *Server) invalidateBookReviewCache(c *gin.Context, bookID string) {
	s.cache.DeletePattern(c.Request.Context(), "reviews:book:"+bookID+":*")
}

// handleCreate はレビュー投稿を処理するハンドラを返す。
// 書籍の存在をbooksサービスで確認し、review.createdイベントを発行する。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var req createReviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		// レビュー対象の書籍が存在することを確認する
		ctx := httpclient.WithUserID(c.Request.Context(), userID)
		if err := s.booksClient.GetJSON(ctx, "/api/v1/books/"+req.BookID, nil); err != nil {
			if errors.Is(err, httpclient.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "レビュー対象の書籍が見つかりません"})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": "書籍情報の取得に失敗しました"})
			log.Printf("書籍取得エラー: book_id=%s, error=%v", req.BookID, err)
			return
		}

		reviewID := uuid.New().String()
		if err := s.queries.CreateReview(c.Request.Context(), reviewsdb.CreateReviewParams{
			ID:      reviewID,
			BookID:  req.BookID,
			UserID:  userID,
			Rating:  req.Rating,
			Comment: req.Comment,
		}); err != nil {
			if isUniqueViolation(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "この書籍には既にレビューを投稿しています"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "レビューの投稿に失敗しました"})
			log.Printf("レビュー投稿エラー: %v", err)
			return
		}

		s.invalidateBookReviewCache(c, req.BookID)
		pubsub.Emit(c.Request.Context(), s.publisher, pubsub.TopicReviewCreated, map[string]any{
			"review_id": reviewID,
			"book_id":   req.BookID,
			"user_id":   userID,
			"rating":    req.Rating,
		})

		created, err := s.queries.GetReviewByID(c.Request.Context(), reviewID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "投稿したレビューの取得に失敗しました"})
			log.Printf("レビュー取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, toReviewResponse(created))
	}
}

// handleListByBook は書籍単位のレビュー一覧取得を処理するハンドラを返す。
// 評価での絞り込みとcreated_at/ratingでのソートに対応する。
func (s *Server) handleListByBook() gin.HandlerFunc {
	return func(c *gin.Context) {
		bookID := c.Param("book_id")
		page := parsePositiveInt(c.Query("page"), 1)
		limit := parsePositiveInt(c.Query("limit"), 20)
		if limit > 100 {
			limit = 100
		}

		rating := int64(parsePositiveInt(c.Query("rating"), 0))
		if rating > 5 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ratingは1〜5で指定してください"})
			return
		}

		sortBy := c.DefaultQuery("sort_by", "created_at")
		sortOrder := c.DefaultQuery("sort_order", "desc")

		cacheKey := fmt.Sprintf("reviews:book:%s:rating=%d:sort=%s-%s:page=%d:limit=%d",
			bookID, rating, sortBy, sortOrder, page, limit)
		var cached gin.H
		if s.cache.GetJSON(c.Request.Context(), cacheKey, &cached) {
			c.JSON(http.StatusOK, cached)
			return
		}

		items, total, err := s.queries.ListReviewsByBook(c.Request.Context(), reviewsdb.ListReviewsByBookParams{
			BookID:    bookID,
			Rating:    rating,
			SortBy:    sortBy,
			SortOrder: sortOrder,
			Limit:     int64(limit),
			Offset:    int64((page - 1) * limit),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "レビュー一覧の取得に失敗しました"})
			log.Printf("レビュー一覧取得エラー: %v", err)
			return
		}

		responses := make([]reviewResponse, 0, len(items))
		for _, r := range items {
			responses = append(responses, toReviewResponse(r))
		}

		resp := gin.H{
			"items": responses,
			"total": total,
			"page":  page,
			"limit": limit,
		}
		s.cache.SetJSON(c.Request.Context(), cacheKey, resp, reviewCacheTTL)
		c.JSON(http.StatusOK, resp)
	}
}

// handleSummary は書籍の評価サマリー取得を処理するハンドラを返す。
func (s *Server) handleSummary() gin.HandlerFunc {
	return func(c *gin.Context) {
		bookID := c.Param("book_id")

		cacheKey := "reviews:book:" + bookID + ":summary"
		var cached gin.H
		if s.cache.GetJSON(c.Request.Context(), cacheKey, &cached) {
			c.JSON(http.StatusOK, cached)
			return
		}

		summary, err := s.queries.GetBookRatingSummary(c.Request.Context(), bookID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "評価サマリーの取得に失敗しました"})
			log.Printf("評価サマリー取得エラー: %v", err)
			return
		}

		resp := gin.H{
			"book_id":        bookID,
			"average_rating": summary.AverageRating,
			"review_count":   summary.ReviewCount,
		}
		s.cache.SetJSON(c.Request.Context(), cacheKey, resp, reviewCacheTTL)
		c.JSON(http.StatusOK, resp)
	}
}

// handleGetByID はレビュー詳細取得を処理するハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		r, err := s.queries.GetReviewByID(c.Request.Context(), c.Param("id"))
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "レビューが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "レビューの取得に失敗しました"})
			log.Printf("レビュー取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toReviewResponse(r))
	}
}

// handleListByUser はユーザー単位のレビュー一覧取得を処理するハンドラを返す。
// 本人または管理者のみ閲覧できる。
func (s *Server) handleListByUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		targetUserID := c.Param("user_id")
		if targetUserID != middleware.GetUserID(c) && !middleware.IsAdmin(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "このユーザーのレビューへのアクセス権がありません"})
			return
		}

		page := parsePositiveInt(c.Query("page"), 1)
		limit := parsePositiveInt(c.Query("limit"), 20)
		if limit > 100 {
			limit = 100
		}

		items, err := s.queries.ListReviewsByUserID(c.Request.Context(), reviewsdb.ListReviewsByUserIDParams{
			UserID: targetUserID,
			Limit:  int64(limit),
			Offset: int64((page - 1) * limit),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "レビュー一覧の取得に失敗しました"})
			log.Printf("レビュー一覧取得エラー: %v", err)
			return
		}

		responses := make([]reviewResponse, 0, len(items))
		for _, r := range items {
			responses = append(responses, toReviewResponse(r))
		}

		c.JSON(http.StatusOK, gin.H{
			"items": responses,
			"page":  page,
			"limit": limit,
		})
	}
}

// handleUpdate はレビュー更新を処理するハンドラを返す。
// レビューの所有者または管理者のみ更新できる。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		reviewID := c.Param("id")

		r, err := s.queries.GetReviewByID(c.Request.Context(), reviewID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "レビューが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "レビューの取得に失敗しました"})
			log.Printf("レビュー取得エラー: %v", err)
			return
		}

		if r.UserID != middleware.GetUserID(c) && !middleware.IsAdmin(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "このレビューへのアクセス権がありません"})
			return
		}

		var req updateReviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		if err := s.queries.UpdateReview(c.Request.Context(), reviewsdb.UpdateReviewParams{
			Rating:  req.Rating,
			Comment: req.Comment,
			ID:      reviewID,
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "レビューの更新に失敗しました"})
			log.Printf("レビュー更新エラー: %v", err)
			return
		}

		s.invalidateBookReviewCache(c, r.BookID)
		pubsub.Emit(c.Request.Context(), s.publisher, pubsub.TopicReviewUpdated, map[string]any{
			"review_id": reviewID,
			"book_id":   r.BookID,
			"rating":    req.Rating,
		})

		updated, err := s.queries.GetReviewByID(c.Request.Context(), reviewID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "更新後のレビューの取得に失敗しました"})
			log.Printf("レビュー取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toReviewResponse(updated))
	}
}

// handleDelete はレビュー削除を処理するハンドラを返す。
// レビューの所有者または管理者のみ削除できる。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		reviewID := c.Param("id")

		r, err := s.queries.GetReviewByID(c.Request.Context(), reviewID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "レビューが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "レビューの取得に失敗しました"})
			log.Printf("レビュー取得エラー: %v", err)
			return
		}

		if r.UserID != middleware.GetUserID(c) && !middleware.IsAdmin(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "このレビューへのアクセス権がありません"})
			return
		}

		if err := s.queries.DeleteReview(c.Request.Context(), reviewID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "レビューの削除に失敗しました"})
			log.Printf("レビュー削除エラー: %v", err)
			return
		}

		s.invalidateBookReviewCache(c, r.BookID)
		pubsub.Emit(c.Request.Context(), s.publisher, pubsub.TopicReviewDeleted, map[string]string{
			"review_id": reviewID,
			"book_id":   r.BookID,
		})

		c.JSON(http.StatusOK, gin.H{"message": "レビューを削除しました"})
	}
}

// isUniqueViolation はSQLiteの一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// parsePositiveInt は文字列を正の整数として解釈する。
// 不正な値や0以下の場合はデフォルト値を返す。
func parsePositiveInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

package books

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
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

	booksdb "github.com/nao1215/bookshelf/internal/books/db"
	"github.com/nao1215/bookshelf/pkg/cache"
	"github.com/nao1215/bookshelf/pkg/middleware"
	"github.com/nao1215/bookshelf/pkg/pubsub"
)

// bookCacheTTL は書籍詳細キャッシュの有効期間。
const bookCacheTTL = time.Hour

// listCacheTTL は書籍一覧キャッシュの有効期間。
const listCacheTTL = 15 * time.Minute

// lowStockThreshold はこの値を下回るとbook.stock_lowイベントを発行する閾値。
const lowStockThreshold = 10

// Server は書籍カタログサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はsqlcが生成したクエリ実行オブジェクト。
	queries *booksdb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// cache は書籍詳細・一覧のRedisキャッシュ。
	cache *cache.Cache
	// publisher はドメインイベントの発行先。
	publisher pubsub.Publisher
	// jwtSecret はJWT検証用の秘密鍵。
	jwtSecret string
}

// NewServer は新しい書籍カタログサーバーを生成する。
// SQLiteデータベースの初期化とマイグレーションの適用を行う。
func NewServer(port string) (*Server, error) {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "/data/books.db"
	}

	sqlDB, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", dbPath))
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-secret-key"
	}

	publisher, err := pubsub.NewFromEnv(os.Getenv("PUBSUB_MODE"), os.Getenv("REDIS_URL"))
	if err != nil {
		return nil, fmt.Errorf("イベント発行先の初期化に失敗: %w", err)
	}

	bookCache, err := cache.NewFromURL(os.Getenv("REDIS_URL"))
	if err != nil {
		return nil, fmt.Errorf("キャッシュの初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:    router,
		port:      port,
		queries:   booksdb.New(sqlDB),
		db:        sqlDB,
		cache:     bookCache,
		publisher: publisher,
		jwtSecret: jwtSecret,
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
		books := api.Group("/books")
		{
			// 書籍一覧取得（絞り込み・ページング付き）
			books.GET("", s.handleList())
			// 書籍詳細取得
			books.GET("/:id", s.handleGetByID())

			// 在庫の増減。注文処理が呼び出すため管理者以外も許可する
			books.PATCH("/:id/stock", middleware.JWTAuth(s.jwtSecret), s.handleUpdateStock())

			admin := books.Group("")
			admin.Use(middleware.JWTAuth(s.jwtSecret), middleware.AdminRequired())
			{
				// 書籍登録（管理者のみ）
				admin.POST("", s.handleCreate())
				// 書籍更新（管理者のみ）
				admin.PUT("/:id", s.handleUpdate())
				// 書籍削除（管理者のみ）
				admin.DELETE("/:id", s.handleDelete())
			}
		}

		// カテゴリ一覧取得
		api.GET("/categories", s.handleListCategories())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "books"})
	})
}

// createBookRequest は書籍登録リクエストのJSON構造。
type createBookRequest struct {
	// Title は書籍タイトル。
	Title string `json:"title" binding:"required,max=200"`
	// Author は著者名。
	Author string `json:"author" binding:"required,max=100"`
	// Description は書籍の説明。
	Description string `json:"description"`
	// ISBN はISBNコード。
	ISBN string `json:"isbn" binding:"required"`
	// Price は販売価格。
	Price float64 `json:"price" binding:"required,gt=0"`
	// Stock は初期在庫数。
	Stock int64 `json:"stock" binding:"gte=0"`
	// Category はカテゴリ名。
	Category string `json:"category"`
}

// updateBookRequest は書籍更新リクエストのJSON構造。
type updateBookRequest struct {
	// Title は書籍タイトル。
	Title string `json:"title" binding:"required,max=200"`
	// Author は著者名。
	Author string `json:"author" binding:"required,max=100"`
	// Description は書籍の説明。
	Description string `json:"description"`
	// ISBN はISBNコード。
	ISBN string `json:"isbn" binding:"required"`
	// Price は販売価格。
	Price float64 `json:"price" binding:"required,gt=0"`
	// Category はカテゴリ名。
	Category string `json:"category"`
}

// updateStockRequest は在庫変更リクエストのJSON構造。
// Deltaは現在庫への加算（負の値で減算）、Stockは絶対値での設定。
type updateStockRequest struct {
	// Delta は在庫の増減量。
	Delta *int64 `json:"delta"`
	// Stock は在庫の絶対値。設定は管理者のみ可能。
	Stock *int64 `json:"stock"`
}

// bookResponse は書籍のJSONレスポンス構造。
type bookResponse struct {
	// ID は書籍の一意識別子。
	ID string `json:"id"`
	// Title は書籍タイトル。
	Title string `json:"title"`
	// Author は著者名。
	Author string `json:"author"`
	// Description は書籍の説明。
	Description string `json:"description"`
	// ISBN はISBNコード。
	ISBN string `json:"isbn"`
	// Price は販売価格。
	Price float64 `json:"price"`
	// Stock は在庫数。
	Stock int64 `json:"stock"`
	// Category はカテゴリ名。
	Category string `json:"category"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
	// UpdatedAt は更新日時。
	UpdatedAt string `json:"updated_at"`
}

// listBooksResponse は書籍一覧のJSONレスポンス構造。
type listBooksResponse struct {
	// Items は書籍の一覧。
	Items []bookResponse `json:"items"`
	// Total は条件に一致する総件数。
	Total int64 `json:"total"`
	// Page は現在のページ番号。
	Page int `json:"page"`
	// Limit は1ページあたりの件数。
	Limit int `json:"limit"`
}

// toBookResponse はDB行をJSONレスポンスに変換する。
func toBookResponse(b booksdb.Book) bookResponse {
	return bookResponse{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		ISBN:        b.Isbn,
		Price:       b.Price,
		Stock:       b.Stock,
		Category:    b.Category,
		CreatedAt:   b.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   b.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// bookCacheKey は書籍詳細キャッシュのキーを返す。
func bookCacheKey(bookID string) string {
	return "book:" + bookID
}

// listCacheKey は絞り込み条件から一覧キャッシュのキーを生成する。
// 条件の組み合わせごとに別のキーになるよう、正規化した条件文字列のMD5を使う。
func listCacheKey(page, limit int, arg booksdb.ListBooksFilteredParams) string {
	canonical := fmt.Sprintf(
		"page=%d&limit=%d&category=%s&author=%s&search=%s&min_price=%g&max_price=%g&sort_by=%s&sort_order=%s",
		page, limit, arg.Category, arg.Author, arg.Search, arg.MinPrice, arg.MaxPrice, arg.SortBy, arg.SortOrder,
	)
	sum := md5.Sum([]byte(canonical))
	return "books:list:" + hex.EncodeToString(sum[:])
}

// invalidateBookCache は書籍の詳細キャッシュと全一覧キャッシュを破棄する。
func (s *Server) invalidateBookCache(c *gin.Context, bookID string) {
	s.cache.Delete(c.Request.Context(), bookCacheKey(bookID))
	s.cache.DeletePattern(c.Request.Context(), "books:list:*")
}

// handleList は書籍一覧取得を処理するハンドラを返す。
// 絞り込み条件の組み合わせごとに結果をキャッシュする。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		page := parsePositiveInt(c.Query("page"), 1)
		limit := parsePositiveInt(c.Query("limit"), 20)
		if limit > 100 {
			limit = 100
		}

		arg := booksdb.ListBooksFilteredParams{
			Category:  c.Query("category"),
			Author:    c.Query("author"),
			Search:    c.Query("search"),
			MinPrice:  parseFloat(c.Query("min_price")),
			MaxPrice:  parseFloat(c.Query("max_price")),
			SortBy:    c.DefaultQuery("sort_by", "created_at"),
			SortOrder: c.DefaultQuery("sort_order", "desc"),
			Limit:     int64(limit),
			Offset:    int64((page - 1) * limit),
		}

		cacheKey := listCacheKey(page, limit, arg)
		var cached listBooksResponse
		if s.cache.GetJSON(c.Request.Context(), cacheKey, &cached) {
			c.JSON(http.StatusOK, cached)
			return
		}

		items, total, err := s.queries.ListBooksFiltered(c.Request.Context(), arg)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "書籍一覧の取得に失敗しました"})
			log.Printf("書籍一覧取得エラー: %v", err)
			return
		}

		responses := make([]bookResponse, 0, len(items))
		for _, b := range items {
			responses = append(responses, toBookResponse(b))
		}

		resp := listBooksResponse{
			Items: responses,
			Total: total,
			Page:  page,
			Limit: limit,
		}
		s.cache.SetJSON(c.Request.Context(), cacheKey, resp, listCacheTTL)
		c.JSON(http.StatusOK, resp)
	}
}

// handleGetByID は書籍詳細取得を処理するハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		bookID := c.Param("id")

		var cached bookResponse
		if s.cache.GetJSON(c.Request.Context(), bookCacheKey(bookID), &cached) {
			c.JSON(http.StatusOK, cached)
			return
		}

		b, err := s.queries.GetBookByID(c.Request.Context(), bookID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "書籍が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "書籍の取得に失敗しました"})
			log.Printf("書籍取得エラー: %v", err)
			return
		}

		resp := toBookResponse(b)
		s.cache.SetJSON(c.Request.Context(), bookCacheKey(bookID), resp, bookCacheTTL)
		c.JSON(http.StatusOK, resp)
	}
}

// handleCreate は書籍登録を処理するハンドラを返す。
// 登録後にbook.createdイベントを発行する。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createBookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		bookID := uuid.New().String()
		if err := s.queries.CreateBook(c.Request.Context(), booksdb.CreateBookParams{
			ID:          bookID,
			Title:       req.Title,
			Author:      req.Author,
			Description: req.Description,
			Isbn:        req.ISBN,
			Price:       req.Price,
			Stock:       req.Stock,
			Category:    req.Category,
		}); err != nil {
			if isUniqueViolation(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "同じISBNの書籍が既に登録されています"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "書籍の登録に失敗しました"})
			log.Printf("書籍登録エラー: %v", err)
			return
		}

		s.cache.DeletePattern(c.Request.Context(), "books:list:*")
		pubsub.Emit(c.Request.Context(), s.publisher, pubsub.TopicBookCreated, map[string]string{
			"book_id": bookID,
			"title":   req.Title,
		})

		created, err := s.queries.GetBookByID(c.Request.Context(), bookID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "登録した書籍の取得に失敗しました"})
			log.Printf("書籍取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, toBookResponse(created))
	}
}

// handleUpdate は書籍更新を処理するハンドラを返す。
// 更新後にキャッシュを破棄し、book.updatedイベントを発行する。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		bookID := c.Param("id")

		if _, err := s.queries.GetBookByID(c.Request.Context(), bookID); errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "書籍が見つかりません"})
			return
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "書籍の取得に失敗しました"})
			log.Printf("書籍取得エラー: %v", err)
			return
		}

		var req updateBookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		if err := s.queries.UpdateBook(c.Request.Context(), booksdb.UpdateBookParams{
			Title:       req.Title,
			Author:      req.Author,
			Description: req.Description,
			Isbn:        req.ISBN,
			Price:       req.Price,
			Category:    req.Category,
			ID:          bookID,
		}); err != nil {
			if isUniqueViolation(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "同じISBNの書籍が既に登録されています"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "書籍の更新に失敗しました"})
			log.Printf("書籍更新エラー: %v", err)
			return
		}

		s.invalidateBookCache(c, bookID)
		pubsub.Emit(c.Request.Context(), s.publisher, pubsub.TopicBookUpdated, map[string]string{
			"book_id": bookID,
		})

		updated, err := s.queries.GetBookByID(c.Request.Context(), bookID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "更新後の書籍の取得に失敗しました"})
			log.Printf("書籍取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toBookResponse(updated))
	}
}

// handleDelete は書籍削除を処理するハンドラを返す。
// 削除後にキャッシュを破棄し、book.deletedイベントを発行する。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		bookID := c.Param("id")

		affected, err := s.queries.DeleteBook(c.Request.Context(), bookID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "書籍の削除に失敗しました"})
			log.Printf("書籍削除エラー: %v", err)
			return
		}
		if affected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "書籍が見つかりません"})
			return
		}

		s.invalidateBookCache(c, bookID)
		pubsub.Emit(c.Request.Context(), s.publisher, pubsub.TopicBookDeleted, map[string]string{
			"book_id": bookID,
		})

		c.JSON(http.StatusOK, gin.H{"message": "書籍を削除しました"})
	}
}

// handleUpdateStock は在庫変更を処理するハンドラを返す。
// 増減（delta）は認証済みユーザーなら可能、絶対値設定（stock）は管理者のみ。
// 在庫が閾値を下回るとbook.stock_lowイベントを発行する。
func (s *Server) handleUpdateStock() gin.HandlerFunc {
	return func(c *gin.Context) {
		bookID := c.Param("id")

		var req updateStockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}
		if (req.Delta == nil) == (req.Stock == nil) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "deltaとstockはどちらか一方を指定してください"})
			return
		}

		if _, err := s.queries.GetBookByID(c.Request.Context(), bookID); errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "書籍が見つかりません"})
			return
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "書籍の取得に失敗しました"})
			log.Printf("書籍取得エラー: %v", err)
			return
		}

		switch {
		case req.Stock != nil:
			if !middleware.IsAdmin(c) {
				c.JSON(http.StatusForbidden, gin.H{"error": "在庫の設定には管理者権限が必要です"})
				return
			}
			if *req.Stock < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "在庫は0以上で指定してください"})
				return
			}
			if err := s.queries.SetBookStock(c.Request.Context(), booksdb.SetBookStockParams{
				Stock: *req.Stock,
				ID:    bookID,
			}); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "在庫の更新に失敗しました"})
				log.Printf("在庫更新エラー: %v", err)
				return
			}
		case req.Delta != nil:
			affected, err := s.queries.AdjustBookStock(c.Request.Context(), booksdb.AdjustBookStockParams{
				Delta: *req.Delta,
				ID:    bookID,
			})
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "在庫の更新に失敗しました"})
				log.Printf("在庫更新エラー: %v", err)
				return
			}
			if affected == 0 {
				c.JSON(http.StatusConflict, gin.H{"error": "在庫が不足しています"})
				return
			}
		}

		s.invalidateBookCache(c, bookID)

		updated, err := s.queries.GetBookByID(c.Request.Context(), bookID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "更新後の書籍の取得に失敗しました"})
			log.Printf("書籍取得エラー: %v", err)
			return
		}

		if updated.Stock < lowStockThreshold {
			pubsub.Emit(c.Request.Context(), s.publisher, pubsub.TopicBookStockLow, map[string]any{
				"book_id": bookID,
				"stock":   updated.Stock,
			})
		}

		c.JSON(http.StatusOK, toBookResponse(updated))
	}
}

// handleListCategories はカテゴリ一覧取得を処理するハンドラを返す。
func (s *Server) handleListCategories() gin.HandlerFunc {
	return func(c *gin.Context) {
		categories, err := s.queries.ListCategories(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "カテゴリ一覧の取得に失敗しました"})
			log.Printf("カテゴリ一覧取得エラー: %v", err)
			return
		}

		if categories == nil {
			categories = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"categories": categories})
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

// parseFloat は文字列を浮動小数点数として解釈する。不正な値は0を返す。
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

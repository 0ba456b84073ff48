package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	ordersdb "github.com/nao1215/bookshelf/internal/orders/db"
	"github.com/nao1215/bookshelf/pkg/cache"
	"github.com/nao1215/bookshelf/pkg/httpclient"
	"github.com/nao1215/bookshelf/pkg/middleware"
	"github.com/nao1215/bookshelf/pkg/pubsub"
)

// 注文ステータス。
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// allowedTransitions は許可されたステータス遷移。
var allowedTransitions = map[string]map[string]bool{
	StatusPending:    {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusCompleted: true},
}

// orderCacheTTL は注文詳細キャッシュの有効期間。
const orderCacheTTL = 10 * time.Minute

// orderListCacheTTL は注文一覧キャッシュの有効期間。
const orderListCacheTTL = 5 * time.Minute

// Server は注文サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はsqlcが生成したクエリ実行オブジェクト。
	queries *ordersdb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// cache は注文詳細・一覧のRedisキャッシュ。
	cache *cache.Cache
	// publisher はドメインイベントの発行先。
	publisher pubsub.Publisher
	// booksClient はbooksサービスへのHTTPクライアント。
	booksClient *httpclient.Client
	// jwtSecret はJWT検証用の秘密鍵。
	jwtSecret string
}

// NewServer は新しい注文サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "/data/orders.db"
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

	orderCache, err := cache.NewFromURL(os.Getenv("REDIS_URL"))
	if err != nil {
		return nil, fmt.Errorf("キャッシュの初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:      router,
		port:        port,
		queries:     ordersdb.New(sqlDB),
		db:          sqlDB,
		cache:       orderCache,
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
	api.Use(middleware.JWTAuth(s.jwtSecret))
	{
		orders := api.Group("/orders")
		{
			// 注文作成
			orders.POST("", s.handleCreate())
			// 自分の注文一覧取得
			orders.GET("", s.handleList())
			// 注文統計（管理者のみ）。/:id より先に登録する
			orders.GET("/stats", middleware.AdminRequired(), s.handleStats())
			// 注文詳細取得
			orders.GET("/:id", s.handleGetByID())
			// ステータス遷移（管理者のみ）
			orders.PATCH("/:id/status", middleware.AdminRequired(), s.handleUpdateStatus())
			// 注文キャンセル
			orders.DELETE("/:id", s.handleCancel())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "orders"})
	})
}

// orderItemRequest は注文明細のJSON構造。
type orderItemRequest struct {
	// BookID は注文する書籍のID。
	BookID string `json:"book_id" binding:"required"`
	// Quantity は数量。
	Quantity int64 `json:"quantity" binding:"required,gt=0"`
}

// createOrderRequest は注文作成リクエストのJSON構造。
type createOrderRequest struct {
	// Items は注文明細の一覧。
	Items []orderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// updateStatusRequest はステータス遷移リクエストのJSON構造。
type updateStatusRequest struct {
	// Status は遷移先のステータス。
	Status string `json:"status" binding:"required,oneof=pending processing completed cancelled"`
}

// orderItemResponse は注文明細のJSONレスポンス構造。
type orderItemResponse struct {
	// BookID は書籍ID。
	BookID string `json:"book_id"`
	// Title は注文時点の書籍タイトル。
	Title string `json:"title"`
	// Price は注文時点の単価。
	Price float64 `json:"price"`
	// Quantity は数量。
	Quantity int64 `json:"quantity"`
}

// orderResponse は注文のJSONレスポンス構造。
type orderResponse struct {
	// ID は注文の一意識別子。
	ID string `json:"id"`
	// UserID は注文したユーザーのID。
	UserID string `json:"user_id"`
	// Status は注文ステータス。
	Status string `json:"status"`
	// TotalAmount は合計金額。
	TotalAmount float64 `json:"total_amount"`
	// Items は注文明細の一覧。
	Items []orderItemResponse `json:"items"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
	// UpdatedAt は更新日時。
	UpdatedAt string `json:"updated_at"`
}

// bookInfo はbooksサービスから取得する書籍情報。
type bookInfo struct {
	// ID は書籍ID。
	ID string `json:"id"`
	// Title は書籍タイトル。
	Title string `json:"title"`
	// Price は販売価格。
	Price float64 `json:"price"`
	// Stock は在庫数。
	Stock int64 `json:"stock"`
}

// toOrderResponse はDB行をJSONレスポンスに変換する。
func toOrderResponse(o ordersdb.Order, items []ordersdb.OrderItem) orderResponse {
	itemResponses := make([]orderItemResponse, 0, len(items))
	for _, item := range items {
		itemResponses = append(itemResponses, orderItemResponse{
			BookID:   item.BookID,
			Title:    item.Title,
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}
	return orderResponse{
		ID:          o.ID,
		UserID:      o.UserID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		Items:       itemResponses,
		CreatedAt:   o.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   o.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// orderCacheKey は注文詳細キャッシュのキーを返す。
func orderCacheKey(orderID string) string {
	return "order:" + orderID
}

// invalidateOrderCache は注文の詳細キャッシュとユーザーの一覧キャッシュを破棄する。
func (s *Server) invalidateOrderCache(c *gin.Context, orderID, userID string) {
	s.cache.Delete(c.Request.Context(), orderCacheKey(orderID))
	s.cache.DeletePattern(c.Request.Context(), "orders:user:"+userID+":*")
}

// handleCreate は注文作成を処理するハンドラを返す。
// booksサービスに在庫を問い合わせ、全明細の在庫を確保できた場合のみ
// 注文を確定する。確定後にorder.createdイベントを発行する。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		// 同じ書籍の重複明細は不正とする
		seen := make(map[string]bool, len(req.Items))
		for _, item := range req.Items {
			if seen[item.BookID] {
				c.JSON(http.StatusBadRequest, gin.H{"error": "同じ書籍が複数の明細に含まれています"})
				return
			}
			seen[item.BookID] = true
		}

		ctx := httpclient.WithUserID(c.Request.Context(), userID)
		ctx = httpclient.WithBearerToken(ctx, middleware.BearerToken(c))

		// 全明細の書籍情報を取得して在庫を確認する
		books := make([]bookInfo, 0, len(req.Items))
		for _, item := range req.Items {
			var book bookInfo
			err := s.booksClient.GetJSON(ctx, "/api/v1/books/"+item.BookID, &book)
			if errors.Is(err, httpclient.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("書籍 %s が見つかりません", item.BookID)})
				return
			}
			if err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": "書籍情報の取得に失敗しました"})
				log.Printf("書籍取得エラー: book_id=%s, error=%v", item.BookID, err)
				return
			}
			if book.Stock < item.Quantity {
				c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("書籍 %s の在庫が不足しています", item.BookID)})
				return
			}
			books = append(books, book)
		}

		// 在庫を確保する。途中で失敗した場合は確保済みの分を戻す
		reserved := make([]orderItemRequest, 0, len(req.Items))
		for _, item := range req.Items {
			err := s.booksClient.PatchJSON(ctx, "/api/v1/books/"+item.BookID+"/stock", map[string]int64{
				"delta": -item.Quantity,
			}, nil)
			if err != nil {
				log.Printf("在庫確保エラー: book_id=%s, error=%v", item.BookID, err)
				s.releaseStock(ctx, reserved)
				c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("書籍 %s の在庫を確保できませんでした", item.BookID)})
				return
			}
			reserved = append(reserved, item)
		}

		orderID := uuid.New().String()
		var total float64
		for i, item := range req.Items {
			total += books[i].Price * float64(item.Quantity)
		}

		// 注文と明細をトランザクションで保存する
		tx, err := s.db.Begin()
		if err != nil {
			s.releaseStock(ctx, reserved)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文の作成に失敗しました"})
			log.Printf("トランザクション開始エラー: %v", err)
			return
		}
		defer tx.Rollback() //nolint:errcheck

		qtx := s.queries.WithTx(tx)
		if err := qtx.CreateOrder(c.Request.Context(), ordersdb.CreateOrderParams{
			ID:          orderID,
			UserID:      userID,
			Status:      StatusPending,
			TotalAmount: total,
		}); err != nil {
			s.releaseStock(ctx, reserved)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文の作成に失敗しました"})
			log.Printf("注文作成エラー: %v", err)
			return
		}
		for i, item := range req.Items {
			if err := qtx.CreateOrderItem(c.Request.Context(), ordersdb.CreateOrderItemParams{
				OrderID:  orderID,
				BookID:   item.BookID,
				Title:    books[i].Title,
				Price:    books[i].Price,
				Quantity: item.Quantity,
			}); err != nil {
				s.releaseStock(ctx, reserved)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "注文明細の作成に失敗しました"})
				log.Printf("注文明細作成エラー: %v", err)
				return
			}
		}
		if err := tx.Commit(); err != nil {
			s.releaseStock(ctx, reserved)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文の確定に失敗しました"})
			log.Printf("トランザクションコミットエラー: %v", err)
			return
		}

		s.cache.DeletePattern(c.Request.Context(), "orders:user:"+userID+":*")
		pubsub.Emit(c.Request.Context(), s.publisher, pubsub.TopicOrderCreated, map[string]any{
			"order_id":     orderID,
			"user_id":      userID,
			"total_amount": total,
		})

		created, items, err := s.getOrderWithItems(c, orderID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "作成した注文の取得に失敗しました"})
			log.Printf("注文取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, toOrderResponse(created, items))
	}
}

// releaseStock は確保済みの在庫をベストエフォートで戻す。
func (s *Server) releaseStock(ctx context.Context, items []orderItemRequest) {
	for _, item := range items {
		if err := s.booksClient.PatchJSON(ctx, "/api/v1/books/"+item.BookID+"/stock", map[string]int64{
			"delta": item.Quantity,
		}, nil); err != nil {
			log.Printf("在庫の返却に失敗: book_id=%s, quantity=%d, error=%v", item.BookID, item.Quantity, err)
		}
	}
}

// handleList は自分の注文一覧取得を処理するハンドラを返す。
// statusクエリパラメータでステータス絞り込みに対応する。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		page := parsePositiveInt(c.Query("page"), 1)
		limit := parsePositiveInt(c.Query("limit"), 20)
		if limit > 100 {
			limit = 100
		}

		status := c.Query("status")
		if status != "" && !isValidStatus(status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("不正なステータスです: %s", status)})
			return
		}

		cacheKey := fmt.Sprintf("orders:user:%s:status:%s:page:%d:limit:%d", userID, status, page, limit)
		var cached gin.H
		if s.cache.GetJSON(c.Request.Context(), cacheKey, &cached) {
			c.JSON(http.StatusOK, cached)
			return
		}

		var orders []ordersdb.Order
		var total int64
		var err error
		if status != "" {
			orders, err = s.queries.ListOrdersByUserIDAndStatus(c.Request.Context(), ordersdb.ListOrdersByUserIDAndStatusParams{
				UserID: userID,
				Status: status,
				Limit:  int64(limit),
				Offset: int64((page - 1) * limit),
			})
			if err == nil {
				total, err = s.queries.CountOrdersByUserIDAndStatus(c.Request.Context(), ordersdb.CountOrdersByUserIDAndStatusParams{
					UserID: userID,
					Status: status,
				})
			}
		} else {
			orders, err = s.queries.ListOrdersByUserID(c.Request.Context(), ordersdb.ListOrdersByUserIDParams{
				UserID: userID,
				Limit:  int64(limit),
				Offset: int64((page - 1) * limit),
			})
			if err == nil {
				total, err = s.queries.CountOrdersByUserID(c.Request.Context(), userID)
			}
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文一覧の取得に失敗しました"})
			log.Printf("注文一覧取得エラー: %v", err)
			return
		}

		responses := make([]orderResponse, 0, len(orders))
		for _, o := range orders {
			items, err := s.queries.ListOrderItems(c.Request.Context(), o.ID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "注文明細の取得に失敗しました"})
				log.Printf("注文明細取得エラー: %v", err)
				return
			}
			responses = append(responses, toOrderResponse(o, items))
		}

		resp := gin.H{
			"items": responses,
			"total": total,
			"page":  page,
			"limit": limit,
		}
		s.cache.SetJSON(c.Request.Context(), cacheKey, resp, orderListCacheTTL)
		c.JSON(http.StatusOK, resp)
	}
}

// handleGetByID は注文詳細取得を処理するハンドラを返す。
// 注文の所有者または管理者のみ閲覧できる。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		orderID := c.Param("id")

		var cached orderResponse
		if s.cache.GetJSON(c.Request.Context(), orderCacheKey(orderID), &cached) {
			if cached.UserID != userID && !middleware.IsAdmin(c) {
				c.JSON(http.StatusForbidden, gin.H{"error": "この注文へのアクセス権がありません"})
				return
			}
			c.JSON(http.StatusOK, cached)
			return
		}

		o, items, err := s.getOrderWithItems(c, orderID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "注文が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文の取得に失敗しました"})
			log.Printf("注文取得エラー: %v", err)
			return
		}

		if o.UserID != userID && !middleware.IsAdmin(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "この注文へのアクセス権がありません"})
			return
		}

		resp := toOrderResponse(o, items)
		s.cache.SetJSON(c.Request.Context(), orderCacheKey(orderID), resp, orderCacheTTL)
		c.JSON(http.StatusOK, resp)
	}
}

// handleUpdateStatus はステータス遷移を処理するハンドラを返す。
// pending→processing/cancelled、processing→completed のみ許可する。
func (s *Server) handleUpdateStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("id")

		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		o, err := s.queries.GetOrderByID(c.Request.Context(), orderID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "注文が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文の取得に失敗しました"})
			log.Printf("注文取得エラー: %v", err)
			return
		}

		if !allowedTransitions[o.Status][req.Status] {
			c.JSON(http.StatusConflict, gin.H{
				"error": fmt.Sprintf("ステータス %s から %s への遷移はできません", o.Status, req.Status),
			})
			return
		}

		if err := s.queries.UpdateOrderStatus(c.Request.Context(), ordersdb.UpdateOrderStatusParams{
			Status: req.Status,
			ID:     orderID,
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ステータスの更新に失敗しました"})
			log.Printf("ステータス更新エラー: %v", err)
			return
		}

		s.invalidateOrderCache(c, orderID, o.UserID)
		switch req.Status {
		case StatusCompleted:
			pubsub.Emit(c.Request.Context(), s.publisher, pubsub.TopicOrderCompleted, map[string]string{
				"order_id": orderID,
				"user_id":  o.UserID,
			})
		case StatusCancelled:
			pubsub.Emit(c.Request.Context(), s.publisher, pubsub.TopicOrderCancelled, map[string]string{
				"order_id": orderID,
				"user_id":  o.UserID,
			})
		}

		updated, items, err := s.getOrderWithItems(c, orderID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "更新後の注文の取得に失敗しました"})
			log.Printf("注文取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toOrderResponse(updated, items))
	}
}

// handleCancel は注文キャンセルを処理するハンドラを返す。
// pending状態の注文のみ、所有者または管理者がキャンセルできる。
func (s *Server) handleCancel() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		orderID := c.Param("id")
		o, err := s.queries.GetOrderByID(c.Request.Context(), orderID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "注文が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文の取得に失敗しました"})
			log.Printf("注文取得エラー: %v", err)
			return
		}

		if o.UserID != userID && !middleware.IsAdmin(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "この注文へのアクセス権がありません"})
			return
		}

		if o.Status != StatusPending {
			c.JSON(http.StatusConflict, gin.H{"error": "キャンセルできるのはpending状態の注文のみです"})
			return
		}

		if err := s.queries.UpdateOrderStatus(c.Request.Context(), ordersdb.UpdateOrderStatusParams{
			Status: StatusCancelled,
			ID:     orderID,
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文のキャンセルに失敗しました"})
			log.Printf("キャンセルエラー: %v", err)
			return
		}

		s.invalidateOrderCache(c, orderID, o.UserID)
		pubsub.Emit(c.Request.Context(), s.publisher, pubsub.TopicOrderCancelled, map[string]string{
			"order_id": orderID,
			"user_id":  o.UserID,
		})

		c.JSON(http.StatusOK, gin.H{"message": "注文をキャンセルしました"})
	}
}

// handleStats は管理者向けの注文統計を処理するハンドラを返す。
func (s *Server) handleStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		byStatus, err := s.queries.CountOrdersByStatus(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文統計の取得に失敗しました"})
			log.Printf("注文統計取得エラー: %v", err)
			return
		}

		revenue, err := s.queries.TotalRevenue(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "売上の取得に失敗しました"})
			log.Printf("売上取得エラー: %v", err)
			return
		}

		statusCounts := make(map[string]int64, len(byStatus))
		var totalOrders int64
		for _, row := range byStatus {
			statusCounts[row.Status] = row.Count
			totalOrders += row.Count
		}

		c.JSON(http.StatusOK, gin.H{
			"total_orders":     totalOrders,
			"total_revenue":    revenue,
			"orders_by_status": statusCounts,
		})
	}
}

// isValidStatus は既知の注文ステータスかどうかを判定する。
func isValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// getOrderWithItems は注文と明細をまとめて取得する。
func (s *Server) getOrderWithItems(c *gin.Context, orderID string) (ordersdb.Order, []ordersdb.OrderItem, error) {
	o, err := s.queries.GetOrderByID(c.Request.Context(), orderID)
	if err != nil {
		return ordersdb.Order{}, nil, err
	}
	items, err := s.queries.ListOrderItems(c.Request.Context(), orderID)
	if err != nil {
		return ordersdb.Order{}, nil, err
	}
	return o, items, nil
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

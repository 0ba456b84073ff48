package gateway

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/bookshelf/pkg/middleware"
	"github.com/nao1215/bookshelf/pkg/ratelimit"
)

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// routes はパスプレフィックスと転送先のテーブル。設定順に評価される。
	routes []route
	// upstreams はヘルスチェック対象のバックエンドサービス。
	upstreams []upstream
	// proxyClient はバックエンドへの転送に使用するHTTPクライアント。
	proxyClient *http.Client
	// limiter はアイデンティティ単位のレートリミッタ。
	limiter *ratelimit.Limiter
	// jwtSecret はJWT検証用の秘密鍵。
	jwtSecret string
}

// serviceURLConfig はバックエンドサービスのURL設定。
type serviceURLConfig struct {
	Auth    string
	Books   string
	Orders  string
	Reviews string
}

// NewServer は新しいGatewayサーバーを生成する。
// 環境変数からバックエンドURL・レート制限・タイムアウトの設定を読み込む。
func NewServer(port string) (*Server, error) {
	urls := serviceURLConfig{
		Auth:    getEnvOr("AUTH_SERVICE_URL", "http://auth:8001"),
		Books:   getEnvOr("BOOKS_SERVICE_URL", "http://books:8002"),
		Orders:  getEnvOr("ORDERS_SERVICE_URL", "http://orders:8003"),
		Reviews: getEnvOr("REVIEWS_SERVICE_URL", "http://reviews:8004"),
	}

	jwtSecret := getEnvOr("JWT_SECRET", "dev-secret-key")
	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")
	timeout := time.Duration(getEnvInt("GATEWAY_TIMEOUT_SECONDS", 5)) * time.Second

	limiter, err := newLimiterFromEnv()
	if err != nil {
		return nil, fmt.Errorf("レートリミッタの初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:      router,
		port:        port,
		routes:      buildRoutes(urls),
		upstreams:   buildUpstreams(urls),
		proxyClient: &http.Client{Timeout: timeout},
		limiter:     limiter,
		jwtSecret:   jwtSecret,
	}
	s.setupRoutes()

	return s, nil
}

// newLimiterFromEnv は環境変数からレートリミッタを構築する。
// REDIS_URLが設定されていればRedisストア、なければインメモリストアを使う。
func newLimiterFromEnv() (*ratelimit.Limiter, error) {
	window := time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
	rules := map[ratelimit.Tier]ratelimit.Rule{
		ratelimit.TierAnonymous:     {MaxRequests: int64(getEnvInt("RATE_LIMIT_ANONYMOUS", 20)), Window: window},
		ratelimit.TierAuthenticated: {MaxRequests: int64(getEnvInt("RATE_LIMIT_AUTHENTICATED", 100)), Window: window},
		ratelimit.TierAdmin:         {MaxRequests: int64(getEnvInt("RATE_LIMIT_ADMIN", 500)), Window: window},
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		log.Printf("REDIS_URL未設定のためインメモリストアでレート制限を行います")
		return ratelimit.NewLimiter(ratelimit.NewMemoryStore(), rules)
	}

	store, err := ratelimit.NewRedisStoreFromURL(redisURL)
	if err != nil {
		return nil, err
	}
	return ratelimit.NewLimiter(store, rules)
}

// buildRoutes はプレフィックステーブルを構築する。
// テーブルは設定順に評価され、最初に一致したプレフィックスが採用される。
func buildRoutes(urls serviceURLConfig) []route {
	return []route{
		{prefix: "/api/v1/auth", target: urls.Auth + "/api/v1/auth"},
		{prefix: "/api/v1/users", target: urls.Auth + "/api/v1/users"},
		{prefix: "/api/v1/books", target: urls.Books + "/api/v1/books"},
		{prefix: "/api/v1/categories", target: urls.Books + "/api/v1/categories"},
		{prefix: "/api/v1/orders", target: urls.Orders + "/api/v1/orders"},
		{prefix: "/api/v1/reviews", target: urls.Reviews + "/api/v1/reviews"},
	}
}

// buildUpstreams はヘルスチェック対象のサービス一覧を構築する。
func buildUpstreams(urls serviceURLConfig) []upstream {
	return []upstream{
		{name: "auth", baseURL: urls.Auth},
		{name: "books", baseURL: urls.Books},
		{name: "orders", baseURL: urls.Orders},
		{name: "reviews", baseURL: urls.Reviews},
	}
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// ゲートウェイ自身と全バックエンドのヘルスチェック
	s.router.GET("/health", s.handleHealth())

	// プレフィックステーブルに基づくプロキシ。
	// JWTは検証のみ行い（拒否はしない）、レート制限の区分判定に使う。
	// 認可はバックエンドサービス側で行う。
	api := s.router.Group("/api/v1")
	api.Use(middleware.OptionalJWTAuth(s.jwtSecret))
	api.Use(middleware.RateLimit(s.limiter))
	api.Any("/*proxyPath", s.handleProxy())
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// getEnvInt は整数型の環境変数を取得する。未設定・不正な値の場合はデフォルト値を返す。
func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("環境変数 %s の値 %q が不正なためデフォルト値 %d を使用します", key, v, defaultValue)
		return defaultValue
	}
	return n
}

package auth

import (
	"crypto/rand"
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
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	authdb "github.com/nao1215/bookshelf/internal/auth/db"
	"github.com/nao1215/bookshelf/pkg/cache"
	"github.com/nao1215/bookshelf/pkg/middleware"
	"github.com/nao1215/bookshelf/pkg/pubsub"
)

// accessTokenTTL はアクセストークンの有効期間。
const accessTokenTTL = 60 * time.Minute

// refreshTokenTTL はリフレッシュトークンの有効期間。
const refreshTokenTTL = 7 * 24 * time.Hour

// profileCacheTTL はプロフィールキャッシュの有効期間。
const profileCacheTTL = 10 * time.Minute

// Server は認証サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はsqlcが生成したクエリ実行オブジェクト。
	queries *authdb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// cache はプロフィールのRedisキャッシュ。
	cache *cache.Cache
	// publisher はドメインイベントの発行先。
	publisher pubsub.Publisher
	// jwtSecret はJWT署名用の秘密鍵。
	jwtSecret string
}

// NewServer は新しい認証サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "/data/auth.db"
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

	profileCache, err := cache.NewFromURL(os.Getenv("REDIS_URL"))
	if err != nil {
		return nil, fmt.Errorf("キャッシュの初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:    router,
		port:      port,
		queries:   authdb.New(sqlDB),
		db:        sqlDB,
		cache:     profileCache,
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
		auth := api.Group("/auth")
		{
			// ユーザー登録
			auth.POST("/register", s.handleRegister())
			// ログイン
			auth.POST("/login", s.handleLogin())
			// アクセストークンの再発行
			auth.POST("/refresh", s.handleRefresh())

			authed := auth.Group("")
			authed.Use(middleware.JWTAuth(s.jwtSecret))
			{
				// ログアウト
				authed.POST("/logout", s.handleLogout())
				// 自分のプロフィール取得
				authed.GET("/me", s.handleGetMe())
				// 自分のプロフィール更新
				authed.PUT("/me", s.handleUpdateMe())
			}
		}

		users := api.Group("/users")
		users.Use(middleware.JWTAuth(s.jwtSecret), middleware.AdminRequired())
		{
			// ユーザー一覧取得（管理者のみ）
			users.GET("", s.handleListUsers())
			// ユーザー詳細取得（管理者のみ）
			users.GET("/:id", s.handleGetUser())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "auth"})
	})
}

// registerRequest はユーザー登録リクエストのJSON構造。
type registerRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Username はユーザー名。
	Username string `json:"username" binding:"required,min=3,max=50"`
	// Password は平文パスワード。
	Password string `json:"password" binding:"required,min=8"`
	// FullName は表示名。
	FullName string `json:"full_name"`
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Password は平文パスワード。
	Password string `json:"password" binding:"required"`
}

// refreshRequest はトークン再発行リクエストのJSON構造。
type refreshRequest struct {
	// RefreshToken は再発行に使用するリフレッシュトークン。
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// logoutRequest はログアウトリクエストのJSON構造。
type logoutRequest struct {
	// RefreshToken は失効させるリフレッシュトークン。
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// updateProfileRequest はプロフィール更新リクエストのJSON構造。
type updateProfileRequest struct {
	// FullName は表示名。
	FullName string `json:"full_name" binding:"required,max=100"`
}

// userResponse はユーザーのJSONレスポンス構造。
type userResponse struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// Username はユーザー名。
	Username string `json:"username"`
	// FullName は表示名。
	FullName string `json:"full_name"`
	// IsAdmin は管理者フラグ。
	IsAdmin bool `json:"is_admin"`
	// IsActive はアカウント有効フラグ。
	IsActive bool `json:"is_active"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
	// UpdatedAt は更新日時。
	UpdatedAt string `json:"updated_at"`
}

// tokenResponse はトークン発行のJSONレスポンス構造。
type tokenResponse struct {
	// AccessToken はJWTアクセストークン。
	AccessToken string `json:"access_token"`
	// RefreshToken はリフレッシュトークン。
	RefreshToken string `json:"refresh_token"`
	// TokenType はトークン種別。常に"bearer"。
	TokenType string `json:"token_type"`
	// ExpiresIn はアクセストークンの有効期間（秒）。
	ExpiresIn int64 `json:"expires_in"`
}

// toUserResponse はDB行をJSONレスポンスに変換する。
func toUserResponse(u authdb.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		FullName:  u.FullName,
		IsAdmin:   u.IsAdmin != 0,
		IsActive:  u.IsActive != 0,
		CreatedAt: u.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt: u.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// profileCacheKey はプロフィールキャッシュのキーを返す。
func profileCacheKey(userID string) string {
	return "user:profile:" + userID
}

// handleRegister はユーザー登録を処理するハンドラを返す。
// パスワードをbcryptでハッシュ化して保存し、user.registeredイベントを発行する。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "パスワードのハッシュ化に失敗しました"})
			log.Printf("パスワードハッシュ化エラー: %v", err)
			return
		}

		userID := uuid.New().String()
		if err := s.queries.CreateUser(c.Request.Context(), authdb.CreateUserParams{
			ID:             userID,
			Email:          strings.ToLower(req.Email),
			Username:       req.Username,
			HashedPassword: string(hashed),
			FullName:       req.FullName,
			IsAdmin:        0,
		}); err != nil {
			if isUniqueViolation(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "メールアドレスまたはユーザー名は既に登録されています"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの作成に失敗しました"})
			log.Printf("ユーザー作成エラー: %v", err)
			return
		}

		pubsub.Emit(c.Request.Context(), s.publisher, pubsub.TopicUserRegistered, map[string]string{
			"user_id":  userID,
			"email":    strings.ToLower(req.Email),
			"username": req.Username,
		})

		created, err := s.queries.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "作成したユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, toUserResponse(created))
	}
}

// handleLogin はログインを処理するハンドラを返す。
// 認証に成功するとアクセストークンとリフレッシュトークンを発行する。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		u, err := s.queries.GetUserByEmail(c.Request.Context(), strings.ToLower(req.Email))
		if errors.Is(err, sql.ErrNoRows) {
			// 存在しないメールアドレスとパスワード不一致は同じ応答にする
			c.JSON(http.StatusUnauthorized, gin.H{"error": "メールアドレスまたはパスワードが正しくありません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		if u.IsActive == 0 {
			c.JSON(http.StatusForbidden, gin.H{"error": "アカウントが無効化されています"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "メールアドレスまたはパスワードが正しくありません"})
			return
		}

		tokens, err := s.issueTokens(c, u)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの発行に失敗しました"})
			log.Printf("トークン発行エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, tokens)
	}
}

// handleRefresh はアクセストークンの再発行を処理するハンドラを返す。
// リフレッシュトークンをローテーションし、古いトークンは失効させる。
func (s *Server) handleRefresh() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		rt, err := s.queries.GetRefreshToken(c.Request.Context(), req.RefreshToken)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "リフレッシュトークンが無効です"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "リフレッシュトークンの取得に失敗しました"})
			log.Printf("リフレッシュトークン取得エラー: %v", err)
			return
		}

		if rt.Revoked != 0 || time.Now().After(rt.ExpiresAt) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "リフレッシュトークンが無効です"})
			return
		}

		u, err := s.queries.GetUserByID(c.Request.Context(), rt.UserID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "リフレッシュトークンが無効です"})
			return
		}
		if u.IsActive == 0 {
			c.JSON(http.StatusForbidden, gin.H{"error": "アカウントが無効化されています"})
			return
		}

		// 使用済みトークンは失効させてローテーションする
		if err := s.queries.RevokeRefreshToken(c.Request.Context(), rt.Token); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "リフレッシュトークンの失効に失敗しました"})
			log.Printf("リフレッシュトークン失効エラー: %v", err)
			return
		}

		tokens, err := s.issueTokens(c, u)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの発行に失敗しました"})
			log.Printf("トークン発行エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, tokens)
	}
}

// handleLogout はログアウトを処理するハンドラを返す。
// 指定されたリフレッシュトークンを失効させる。
func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var req logoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		rt, err := s.queries.GetRefreshToken(c.Request.Context(), req.RefreshToken)
		if errors.Is(err, sql.ErrNoRows) {
			// 存在しないトークンのログアウトは成功として扱う
			c.JSON(http.StatusOK, gin.H{"message": "ログアウトしました"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "リフレッシュトークンの取得に失敗しました"})
			log.Printf("リフレッシュトークン取得エラー: %v", err)
			return
		}

		// 他人のトークンは失効させない
		if rt.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "このトークンへのアクセス権がありません"})
			return
		}

		if err := s.queries.RevokeRefreshToken(c.Request.Context(), rt.Token); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "リフレッシュトークンの失効に失敗しました"})
			log.Printf("リフレッシュトークン失効エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "ログアウトしました"})
	}
}

// handleGetMe は自分のプロフィール取得を処理するハンドラを返す。
// プロフィールはRedisにキャッシュされる。
func (s *Server) handleGetMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var cached userResponse
		if s.cache.GetJSON(c.Request.Context(), profileCacheKey(userID), &cached) {
			c.JSON(http.StatusOK, cached)
			return
		}

		u, err := s.queries.GetUserByID(c.Request.Context(), userID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		resp := toUserResponse(u)
		s.cache.SetJSON(c.Request.Context(), profileCacheKey(userID), resp, profileCacheTTL)
		c.JSON(http.StatusOK, resp)
	}
}

// handleUpdateMe は自分のプロフィール更新を処理するハンドラを返す。
// 更新後はキャッシュを破棄し、user.updatedイベントを発行する。
func (s *Server) handleUpdateMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var req updateProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		if _, err := s.queries.GetUserByID(c.Request.Context(), userID); errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		if err := s.queries.UpdateUserProfile(c.Request.Context(), authdb.UpdateUserProfileParams{
			FullName: req.FullName,
			ID:       userID,
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロフィールの更新に失敗しました"})
			log.Printf("プロフィール更新エラー: %v", err)
			return
		}

		s.cache.Delete(c.Request.Context(), profileCacheKey(userID))
		pubsub.Emit(c.Request.Context(), s.publisher, pubsub.TopicUserUpdated, map[string]string{
			"user_id": userID,
		})

		updated, err := s.queries.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "更新後のユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toUserResponse(updated))
	}
}

// handleListUsers は管理者向けのユーザー一覧取得を処理するハンドラを返す。
func (s *Server) handleListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		page := parsePositiveInt(c.Query("page"), 1)
		limit := parsePositiveInt(c.Query("limit"), 20)
		if limit > 100 {
			limit = 100
		}

		users, err := s.queries.ListUsers(c.Request.Context(), authdb.ListUsersParams{
			Limit:  int64(limit),
			Offset: int64((page - 1) * limit),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー一覧の取得に失敗しました"})
			log.Printf("ユーザー一覧取得エラー: %v", err)
			return
		}

		total, err := s.queries.CountUsers(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー数の取得に失敗しました"})
			log.Printf("ユーザー数取得エラー: %v", err)
			return
		}

		responses := make([]userResponse, 0, len(users))
		for _, u := range users {
			responses = append(responses, toUserResponse(u))
		}

		c.JSON(http.StatusOK, gin.H{
			"items": responses,
			"total": total,
			"page":  page,
			"limit": limit,
		})
	}
}

// handleGetUser は管理者向けのユーザー詳細取得を処理するハンドラを返す。
func (s *Server) handleGetUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := s.queries.GetUserByID(c.Request.Context(), c.Param("id"))
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toUserResponse(u))
	}
}

// issueTokens はアクセストークンとリフレッシュトークンを発行し、
// リフレッシュトークンをDBに保存する。
func (s *Server) issueTokens(c *gin.Context, u authdb.User) (tokenResponse, error) {
	accessToken, err := middleware.GenerateJWT(s.jwtSecret, u.ID, u.Email, u.IsAdmin != 0)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("アクセストークンの生成に失敗: %w", err)
	}

	refreshToken, err := newRefreshToken()
	if err != nil {
		return tokenResponse{}, fmt.Errorf("リフレッシュトークンの生成に失敗: %w", err)
	}

	if err := s.queries.CreateRefreshToken(c.Request.Context(), authdb.CreateRefreshTokenParams{
		Token:     refreshToken,
		UserID:    u.ID,
		ExpiresAt: time.Now().Add(refreshTokenTTL),
	}); err != nil {
		return tokenResponse{}, fmt.Errorf("リフレッシュトークンの保存に失敗: %w", err)
	}

	return tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

// newRefreshToken は暗号論的乱数からリフレッシュトークンを生成する。
func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
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

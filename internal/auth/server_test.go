package auth

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	authdb "github.com/nao1215/bookshelf/internal/auth/db"
	"github.com/nao1215/bookshelf/pkg/cache"
	"github.com/nao1215/bookshelf/pkg/middleware"
	"github.com/nao1215/bookshelf/pkg/pubsub"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testJWTSecret はテスト用のJWT秘密鍵。
const testJWTSecret = "test-secret-key-for-unit-tests"

// setupTestServer はテスト用の認証サーバーをインメモリSQLiteで構築する。
func setupTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:?_foreign_keys=ON")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := initSchema(sqlDB); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}

	router := gin.New()
	s := &Server{
		router:    router,
		port:      "0",
		queries:   authdb.New(sqlDB),
		db:        sqlDB,
		cache:     cache.New(nil),
		publisher: &pubsub.StubPublisher{},
		jwtSecret: testJWTSecret,
	}
	s.setupRoutes()

	return s, router
}

// doRequest はテスト用のHTTPリクエストを実行し、レスポンスを返すヘルパー関数。
func doRequest(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// parseJSON はレスポンスボディをmapにデコードするヘルパー関数。
func parseJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSONのデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// registerTestUser はテスト用ユーザーを登録し、レスポンスのユーザーIDを返すヘルパー関数。
func registerTestUser(t *testing.T, router *gin.Engine, email, username, password string) string {
	t.Helper()

	w := doRequest(router, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("テスト用ユーザーの登録に失敗: status=%d, body=%s", w.Code, w.Body.String())
	}
	return parseJSON(t, w)["id"].(string)
}

// loginTestUser はログインしてトークンレスポンスを返すヘルパー関数。
func loginTestUser(t *testing.T, router *gin.Engine, email, password string) map[string]any {
	t.Helper()

	w := doRequest(router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("テスト用ユーザーのログインに失敗: status=%d, body=%s", w.Code, w.Body.String())
	}
	return parseJSON(t, w)
}

// TestHealthCheck はヘルスチェックエンドポイントの正常動作を検証する。
func TestHealthCheck(t *testing.T) {
	t.Parallel()

	_, router := setupTestServer(t)

	w := doRequest(router, http.MethodGet, "/health", "", nil)

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}

	result := parseJSON(t, w)
	if result["status"] != "ok" {
		t.Errorf("status: got %v, want ok", result["status"])
	}
	if result["service"] != "auth" {
		t.Errorf("service: got %v, want auth", result["service"])
	}
}

// TestHandleRegister はユーザー登録ハンドラのテスト。
func TestHandleRegister(t *testing.T) {
	t.Parallel()

	t.Run("正常にユーザーを登録できる", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"email":     "reader@example.com",
			"username":  "reader",
			"password":  "secret-password",
			"full_name": "読書 太郎",
		})

		if w.Code != http.StatusCreated {
			t.Errorf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}

		result := parseJSON(t, w)
		if result["email"] != "reader@example.com" {
			t.Errorf("email: got %v, want reader@example.com", result["email"])
		}
		if result["username"] != "reader" {
			t.Errorf("username: got %v, want reader", result["username"])
		}
		if result["is_admin"] != false {
			t.Errorf("is_admin: got %v, want false", result["is_admin"])
		}
		if result["id"] == nil || result["id"] == "" {
			t.Error("idが空です")
		}
		if _, ok := result["hashed_password"]; ok {
			t.Error("ハッシュ化パスワードはレスポンスに含まれないべき")
		}
	})

	t.Run("メールアドレスは小文字に正規化されること", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"email":    "Reader@Example.COM",
			"username": "reader",
			"password": "secret-password",
		})

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusCreated)
		}
		if got := parseJSON(t, w)["email"]; got != "reader@example.com" {
			t.Errorf("email: got %v, want reader@example.com", got)
		}
	})

	t.Run("メールアドレスが重複する場合はConflict", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		registerTestUser(t, router, "reader@example.com", "reader", "secret-password")

		w := doRequest(router, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"email":    "reader@example.com",
			"username": "another",
			"password": "secret-password",
		})

		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("パスワードが短すぎる場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"email":    "reader@example.com",
			"username": "reader",
			"password": "short",
		})

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleLogin はログインハンドラのテスト。
func TestHandleLogin(t *testing.T) {
	t.Parallel()

	t.Run("正しい認証情報でトークンが発行されること", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		registerTestUser(t, router, "reader@example.com", "reader", "secret-password")
		result := loginTestUser(t, router, "reader@example.com", "secret-password")

		if result["access_token"] == nil || result["access_token"] == "" {
			t.Error("access_tokenが空です")
		}
		if result["refresh_token"] == nil || result["refresh_token"] == "" {
			t.Error("refresh_tokenが空です")
		}
		if result["token_type"] != "bearer" {
			t.Errorf("token_type: got %v, want bearer", result["token_type"])
		}
		if result["expires_in"] != float64(3600) {
			t.Errorf("expires_in: got %v, want 3600", result["expires_in"])
		}
	})

	t.Run("パスワードが間違っている場合はUnauthorized", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		registerTestUser(t, router, "reader@example.com", "reader", "secret-password")

		w := doRequest(router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email":    "reader@example.com",
			"password": "wrong-password",
		})

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("存在しないユーザーの場合はUnauthorized", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email":    "nobody@example.com",
			"password": "secret-password",
		})

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestHandleRefresh はトークン再発行ハンドラのテスト。
func TestHandleRefresh(t *testing.T) {
	t.Parallel()

	t.Run("有効なリフレッシュトークンで新しいトークンが発行されること", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		registerTestUser(t, router, "reader@example.com", "reader", "secret-password")
		tokens := loginTestUser(t, router, "reader@example.com", "secret-password")

		w := doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
			"refresh_token": tokens["refresh_token"].(string),
		})

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		result := parseJSON(t, w)
		if result["access_token"] == nil || result["access_token"] == "" {
			t.Error("access_tokenが空です")
		}
		if result["refresh_token"] == tokens["refresh_token"] {
			t.Error("リフレッシュトークンはローテーションされるべき")
		}
	})

	t.Run("使用済みのリフレッシュトークンは再利用できないこと", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		registerTestUser(t, router, "reader@example.com", "reader", "secret-password")
		tokens := loginTestUser(t, router, "reader@example.com", "secret-password")
		refreshToken := tokens["refresh_token"].(string)

		first := doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
			"refresh_token": refreshToken,
		})
		if first.Code != http.StatusOK {
			t.Fatalf("1回目のステータスコード: got %d, want %d", first.Code, http.StatusOK)
		}

		second := doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
			"refresh_token": refreshToken,
		})
		if second.Code != http.StatusUnauthorized {
			t.Errorf("2回目のステータスコード: got %d, want %d", second.Code, http.StatusUnauthorized)
		}
	})

	t.Run("存在しないリフレッシュトークンはUnauthorized", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
			"refresh_token": "no-such-token",
		})

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestHandleLogout はログアウトハンドラのテスト。
func TestHandleLogout(t *testing.T) {
	t.Parallel()

	t.Run("ログアウト後のリフレッシュトークンは無効になること", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		registerTestUser(t, router, "reader@example.com", "reader", "secret-password")
		tokens := loginTestUser(t, router, "reader@example.com", "secret-password")

		w := doRequest(router, http.MethodPost, "/api/v1/auth/logout", tokens["access_token"].(string), map[string]string{
			"refresh_token": tokens["refresh_token"].(string),
		})
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		refresh := doRequest(router, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
			"refresh_token": tokens["refresh_token"].(string),
		})
		if refresh.Code != http.StatusUnauthorized {
			t.Errorf("失効後のステータスコード: got %d, want %d", refresh.Code, http.StatusUnauthorized)
		}
	})

	t.Run("認証なしのログアウトはUnauthorized", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodPost, "/api/v1/auth/logout", "", map[string]string{
			"refresh_token": "whatever",
		})

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestHandleMe はプロフィール取得・更新ハンドラのテスト。
func TestHandleMe(t *testing.T) {
	t.Parallel()

	t.Run("自分のプロフィールを取得できる", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		userID := registerTestUser(t, router, "reader@example.com", "reader", "secret-password")
		tokens := loginTestUser(t, router, "reader@example.com", "secret-password")

		w := doRequest(router, http.MethodGet, "/api/v1/auth/me", tokens["access_token"].(string), nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSON(t, w)
		if result["id"] != userID {
			t.Errorf("id: got %v, want %v", result["id"], userID)
		}
		if result["email"] != "reader@example.com" {
			t.Errorf("email: got %v, want reader@example.com", result["email"])
		}
	})

	t.Run("プロフィールを更新できる", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		registerTestUser(t, router, "reader@example.com", "reader", "secret-password")
		tokens := loginTestUser(t, router, "reader@example.com", "secret-password")

		w := doRequest(router, http.MethodPut, "/api/v1/auth/me", tokens["access_token"].(string), map[string]string{
			"full_name": "読書 花子",
		})

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		if got := parseJSON(t, w)["full_name"]; got != "読書 花子" {
			t.Errorf("full_name: got %v, want 読書 花子", got)
		}
	})

	t.Run("認証なしのプロフィール取得はUnauthorized", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodGet, "/api/v1/auth/me", "", nil)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestHandleUsers は管理者向けユーザー一覧・詳細ハンドラのテスト。
func TestHandleUsers(t *testing.T) {
	t.Parallel()

	// adminToken は管理者ユーザーをDBに直接作成してトークンを返す。
	adminToken := func(t *testing.T, s *Server) string {
		t.Helper()
		if err := s.queries.CreateUser(t.Context(), authdb.CreateUserParams{
			ID:             "admin-1",
			Email:          "admin@example.com",
			Username:       "admin",
			HashedPassword: "unused",
			IsAdmin:        1,
		}); err != nil {
			t.Fatalf("管理者ユーザーの作成に失敗: %v", err)
		}
		token, err := middleware.GenerateJWT(testJWTSecret, "admin-1", "admin@example.com", true)
		if err != nil {
			t.Fatalf("JWTの生成に失敗: %v", err)
		}
		return token
	}

	t.Run("管理者はユーザー一覧を取得できる", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)

		token := adminToken(t, s)
		registerTestUser(t, router, "reader@example.com", "reader", "secret-password")

		w := doRequest(router, http.MethodGet, "/api/v1/users?page=1&limit=10", token, nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		result := parseJSON(t, w)
		if result["total"] != float64(2) {
			t.Errorf("total: got %v, want 2", result["total"])
		}
	})

	t.Run("一般ユーザーのユーザー一覧取得はForbidden", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		registerTestUser(t, router, "reader@example.com", "reader", "secret-password")
		tokens := loginTestUser(t, router, "reader@example.com", "secret-password")

		w := doRequest(router, http.MethodGet, "/api/v1/users", tokens["access_token"].(string), nil)

		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("管理者はユーザー詳細を取得できる", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)

		token := adminToken(t, s)
		userID := registerTestUser(t, router, "reader@example.com", "reader", "secret-password")

		w := doRequest(router, http.MethodGet, "/api/v1/users/"+userID, token, nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if got := parseJSON(t, w)["id"]; got != userID {
			t.Errorf("id: got %v, want %v", got, userID)
		}
	})

	t.Run("存在しないユーザーの詳細取得はNotFound", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)

		token := adminToken(t, s)

		w := doRequest(router, http.MethodGet, "/api/v1/users/no-such-user", token, nil)

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

package orders

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	ordersdb "github.com/nao1215/bookshelf/internal/orders/db"
	"github.com/nao1215/bookshelf/pkg/cache"
	"github.com/nao1215/bookshelf/pkg/httpclient"
	"github.com/nao1215/bookshelf/pkg/middleware"
	"github.com/nao1215/bookshelf/pkg/pubsub"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testJWTSecret はテスト用のJWT秘密鍵。
const testJWTSecret = "test-secret-key-for-unit-tests"

// mockBooks はbooksサービスのモック。在庫の増減を記録する。
type mockBooks struct {
	mu sync.Mutex
	// books は書籍ID→書籍情報のマップ。
	books map[string]*bookInfo
}

// newMockBooks はモックbooksサービスのHTTPサーバーを起動する。
func newMockBooks(t *testing.T, books map[string]*bookInfo) (*mockBooks, *httptest.Server) {
	t.Helper()

	m := &mockBooks{books: books}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()

		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/books/"), "/")
		bookID := parts[0]
		book, ok := m.books[bookID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"not found"}`)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(book)
		case r.Method == http.MethodPatch && len(parts) == 2 && parts[1] == "stock":
			var body struct {
				Delta int64 `json:"delta"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if book.Stock+body.Delta < 0 {
				w.WriteHeader(http.StatusConflict)
				fmt.Fprint(w, `{"error":"insufficient stock"}`)
				return
			}
			book.Stock += body.Delta
			json.NewEncoder(w).Encode(book)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(server.Close)

	return m, server
}

// stockOf はモック内の在庫数を返すヘルパー関数。
func (m *mockBooks) stockOf(bookID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.books[bookID].Stock
}

// setupTestServer はテスト用の注文サーバーをインメモリSQLiteとモックbooksで構築する。
func setupTestServer(t *testing.T, books map[string]*bookInfo) (*Server, *gin.Engine, *mockBooks) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:?_foreign_keys=ON")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := initSchema(sqlDB); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}

	mock, mockServer := newMockBooks(t, books)

	router := gin.New()
	s := &Server{
		router:      router,
		port:        "0",
		queries:     ordersdb.New(sqlDB),
		db:          sqlDB,
		cache:       cache.New(nil),
		publisher:   &pubsub.StubPublisher{},
		booksClient: httpclient.New(mockServer.URL),
		jwtSecret:   testJWTSecret,
	}
	s.setupRoutes()

	return s, router, mock
}

// userToken は一般ユーザーのJWTを生成するヘルパー関数。
func userToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := middleware.GenerateJWT(testJWTSecret, userID, userID+"@example.com", false)
	if err != nil {
		t.Fatalf("JWTの生成に失敗: %v", err)
	}
	return token
}

// adminToken は管理者のJWTを生成するヘルパー関数。
func adminToken(t *testing.T) string {
	t.Helper()
	token, err := middleware.GenerateJWT(testJWTSecret, "admin-1", "admin@example.com", true)
	if err != nil {
		t.Fatalf("JWTの生成に失敗: %v", err)
	}
	return token
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

// defaultBooks はテスト用の書籍カタログを返す。
func defaultBooks() map[string]*bookInfo {
	return map[string]*bookInfo{
		"book-1": {ID: "book-1", Title: "Go入門", Price: 2500, Stock: 10},
		"book-2": {ID: "book-2", Title: "実践Go", Price: 3200, Stock: 3},
	}
}

// createOrder は注文を作成して注文IDを返すヘルパー関数。
func createOrder(t *testing.T, router *gin.Engine, token string, items []map[string]any) string {
	t.Helper()

	w := doRequest(router, http.MethodPost, "/api/v1/orders", token, map[string]any{"items": items})
	if w.Code != http.StatusCreated {
		t.Fatalf("テスト用注文の作成に失敗: status=%d, body=%s", w.Code, w.Body.String())
	}
	return parseJSON(t, w)["id"].(string)
}

// TestHealthCheck はヘルスチェックエンドポイントの正常動作を検証する。
func TestHealthCheck(t *testing.T) {
	t.Parallel()

	_, router, _ := setupTestServer(t, defaultBooks())

	w := doRequest(router, http.MethodGet, "/health", "", nil)

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}
	if got := parseJSON(t, w)["service"]; got != "orders" {
		t.Errorf("service: got %v, want orders", got)
	}
}

// TestHandleCreateOrder は注文作成ハンドラのテスト。
func TestHandleCreateOrder(t *testing.T) {
	t.Parallel()

	t.Run("在庫があれば注文を作成し在庫が減ること", func(t *testing.T) {
		t.Parallel()
		_, router, mock := setupTestServer(t, defaultBooks())

		w := doRequest(router, http.MethodPost, "/api/v1/orders", userToken(t, "user-1"), map[string]any{
			"items": []map[string]any{
				{"book_id": "book-1", "quantity": 2},
				{"book_id": "book-2", "quantity": 1},
			},
		})

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}
		result := parseJSON(t, w)
		if result["status"] != "pending" {
			t.Errorf("status: got %v, want pending", result["status"])
		}
		if result["total_amount"] != float64(2500*2+3200) {
			t.Errorf("total_amount: got %v, want %d", result["total_amount"], 2500*2+3200)
		}
		if got := len(result["items"].([]any)); got != 2 {
			t.Errorf("items数: got %d, want 2", got)
		}
		if got := mock.stockOf("book-1"); got != 8 {
			t.Errorf("book-1の在庫: got %d, want 8", got)
		}
		if got := mock.stockOf("book-2"); got != 2 {
			t.Errorf("book-2の在庫: got %d, want 2", got)
		}
	})

	t.Run("在庫不足の場合はConflictで在庫は変化しないこと", func(t *testing.T) {
		t.Parallel()
		_, router, mock := setupTestServer(t, defaultBooks())

		w := doRequest(router, http.MethodPost, "/api/v1/orders", userToken(t, "user-1"), map[string]any{
			"items": []map[string]any{
				{"book_id": "book-2", "quantity": 5},
			},
		})

		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusConflict)
		}
		if got := mock.stockOf("book-2"); got != 3 {
			t.Errorf("book-2の在庫: got %d, want 3", got)
		}
	})

	t.Run("存在しない書籍の注文はNotFound", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		w := doRequest(router, http.MethodPost, "/api/v1/orders", userToken(t, "user-1"), map[string]any{
			"items": []map[string]any{
				{"book_id": "no-such-book", "quantity": 1},
			},
		})

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("明細が空の注文はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		w := doRequest(router, http.MethodPost, "/api/v1/orders", userToken(t, "user-1"), map[string]any{
			"items": []map[string]any{},
		})

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("同じ書籍の重複明細はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		w := doRequest(router, http.MethodPost, "/api/v1/orders", userToken(t, "user-1"), map[string]any{
			"items": []map[string]any{
				{"book_id": "book-1", "quantity": 1},
				{"book_id": "book-1", "quantity": 2},
			},
		})

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("認証なしの注文作成はUnauthorized", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		w := doRequest(router, http.MethodPost, "/api/v1/orders", "", map[string]any{
			"items": []map[string]any{{"book_id": "book-1", "quantity": 1}},
		})

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestHandleListOrders は注文一覧取得ハンドラのテスト。
func TestHandleListOrders(t *testing.T) {
	t.Parallel()

	t.Run("自分の注文のみが返ること", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		createOrder(t, router, userToken(t, "user-1"), []map[string]any{{"book_id": "book-1", "quantity": 1}})
		createOrder(t, router, userToken(t, "user-2"), []map[string]any{{"book_id": "book-1", "quantity": 1}})

		w := doRequest(router, http.MethodGet, "/api/v1/orders", userToken(t, "user-1"), nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSON(t, w)
		if result["total"] != float64(1) {
			t.Errorf("total: got %v, want 1", result["total"])
		}
	})

	t.Run("ステータスで絞り込めること", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		first := createOrder(t, router, userToken(t, "user-1"), []map[string]any{{"book_id": "book-1", "quantity": 1}})
		createOrder(t, router, userToken(t, "user-1"), []map[string]any{{"book_id": "book-2", "quantity": 1}})
		doRequest(router, http.MethodDelete, "/api/v1/orders/"+first, userToken(t, "user-1"), nil)

		w := doRequest(router, http.MethodGet, "/api/v1/orders?status=cancelled", userToken(t, "user-1"), nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSON(t, w)
		if result["total"] != float64(1) {
			t.Errorf("total: got %v, want 1", result["total"])
		}
		items := result["items"].([]any)
		if got := items[0].(map[string]any)["status"]; got != "cancelled" {
			t.Errorf("status: got %v, want cancelled", got)
		}
	})

	t.Run("不正なステータスの指定はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		w := doRequest(router, http.MethodGet, "/api/v1/orders?status=shipped", userToken(t, "user-1"), nil)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleGetOrder は注文詳細取得ハンドラのテスト。
func TestHandleGetOrder(t *testing.T) {
	t.Parallel()

	t.Run("所有者は注文詳細を取得できる", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		orderID := createOrder(t, router, userToken(t, "user-1"), []map[string]any{{"book_id": "book-1", "quantity": 1}})

		w := doRequest(router, http.MethodGet, "/api/v1/orders/"+orderID, userToken(t, "user-1"), nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if got := parseJSON(t, w)["id"]; got != orderID {
			t.Errorf("id: got %v, want %v", got, orderID)
		}
	})

	t.Run("他人の注文の取得はForbidden", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		orderID := createOrder(t, router, userToken(t, "user-1"), []map[string]any{{"book_id": "book-1", "quantity": 1}})

		w := doRequest(router, http.MethodGet, "/api/v1/orders/"+orderID, userToken(t, "user-2"), nil)

		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("管理者は他人の注文を取得できる", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		orderID := createOrder(t, router, userToken(t, "user-1"), []map[string]any{{"book_id": "book-1", "quantity": 1}})

		w := doRequest(router, http.MethodGet, "/api/v1/orders/"+orderID, adminToken(t), nil)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("存在しない注文はNotFound", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		w := doRequest(router, http.MethodGet, "/api/v1/orders/no-such-order", userToken(t, "user-1"), nil)

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

// TestHandleUpdateStatus はステータス遷移ハンドラのテスト。
func TestHandleUpdateStatus(t *testing.T) {
	t.Parallel()

	t.Run("許可された遷移が順に成功すること", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		orderID := createOrder(t, router, userToken(t, "user-1"), []map[string]any{{"book_id": "book-1", "quantity": 1}})

		processing := doRequest(router, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", adminToken(t), map[string]string{
			"status": "processing",
		})
		if processing.Code != http.StatusOK {
			t.Fatalf("processingへの遷移: got %d, want %d, body=%s", processing.Code, http.StatusOK, processing.Body.String())
		}

		completed := doRequest(router, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", adminToken(t), map[string]string{
			"status": "completed",
		})
		if completed.Code != http.StatusOK {
			t.Fatalf("completedへの遷移: got %d, want %d", completed.Code, http.StatusOK)
		}
		if got := parseJSON(t, completed)["status"]; got != "completed" {
			t.Errorf("status: got %v, want completed", got)
		}
	})

	t.Run("許可されない遷移はConflict", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		orderID := createOrder(t, router, userToken(t, "user-1"), []map[string]any{{"book_id": "book-1", "quantity": 1}})

		w := doRequest(router, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", adminToken(t), map[string]string{
			"status": "completed",
		})

		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("一般ユーザーのステータス変更はForbidden", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		orderID := createOrder(t, router, userToken(t, "user-1"), []map[string]any{{"book_id": "book-1", "quantity": 1}})

		w := doRequest(router, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", userToken(t, "user-1"), map[string]string{
			"status": "processing",
		})

		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}

// TestHandleCancelOrder は注文キャンセルハンドラのテスト。
func TestHandleCancelOrder(t *testing.T) {
	t.Parallel()

	t.Run("所有者はpendingの注文をキャンセルできる", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		orderID := createOrder(t, router, userToken(t, "user-1"), []map[string]any{{"book_id": "book-1", "quantity": 1}})

		w := doRequest(router, http.MethodDelete, "/api/v1/orders/"+orderID, userToken(t, "user-1"), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		get := doRequest(router, http.MethodGet, "/api/v1/orders/"+orderID, userToken(t, "user-1"), nil)
		if got := parseJSON(t, get)["status"]; got != "cancelled" {
			t.Errorf("status: got %v, want cancelled", got)
		}
	})

	t.Run("pending以外の注文のキャンセルはConflict", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		orderID := createOrder(t, router, userToken(t, "user-1"), []map[string]any{{"book_id": "book-1", "quantity": 1}})
		doRequest(router, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", adminToken(t), map[string]string{
			"status": "processing",
		})

		w := doRequest(router, http.MethodDelete, "/api/v1/orders/"+orderID, userToken(t, "user-1"), nil)

		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("他人の注文のキャンセルはForbidden", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		orderID := createOrder(t, router, userToken(t, "user-1"), []map[string]any{{"book_id": "book-1", "quantity": 1}})

		w := doRequest(router, http.MethodDelete, "/api/v1/orders/"+orderID, userToken(t, "user-2"), nil)

		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}

// TestHandleStats は注文統計ハンドラのテスト。
func TestHandleStats(t *testing.T) {
	t.Parallel()

	t.Run("管理者は注文統計を取得できる", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		first := createOrder(t, router, userToken(t, "user-1"), []map[string]any{{"book_id": "book-1", "quantity": 1}})
		createOrder(t, router, userToken(t, "user-2"), []map[string]any{{"book_id": "book-1", "quantity": 2}})
		doRequest(router, http.MethodDelete, "/api/v1/orders/"+first, userToken(t, "user-1"), nil)

		w := doRequest(router, http.MethodGet, "/api/v1/orders/stats", adminToken(t), nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		result := parseJSON(t, w)
		if result["total_orders"] != float64(2) {
			t.Errorf("total_orders: got %v, want 2", result["total_orders"])
		}
		// キャンセル済みの注文は売上に含まれない
		if result["total_revenue"] != float64(5000) {
			t.Errorf("total_revenue: got %v, want 5000", result["total_revenue"])
		}
		byStatus := result["orders_by_status"].(map[string]any)
		if byStatus["cancelled"] != float64(1) {
			t.Errorf("cancelled数: got %v, want 1", byStatus["cancelled"])
		}
	})

	t.Run("一般ユーザーの統計取得はForbidden", func(t *testing.T) {
		t.Parallel()
		_, router, _ := setupTestServer(t, defaultBooks())

		w := doRequest(router, http.MethodGet, "/api/v1/orders/stats", userToken(t, "user-1"), nil)

		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}

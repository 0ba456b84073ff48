package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// healthProbeTimeout は各バックエンドへのヘルスチェックのタイムアウト。
const healthProbeTimeout = 2 * time.Second

// upstream はヘルスチェック対象のバックエンドサービス。
type upstream struct {
	name    string
	baseURL string
}

// healthReport はゲートウェイのヘルスチェック応答。
type healthReport struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Services  map[string]string `json:"services"`
	Timestamp string            `json:"timestamp"`
}

// handleHealth は全バックエンドのヘルスチェックを集約するハンドラを返す。
// 各サービスへのチェックは並行して行い、一部のサービスが停止していても
// ゲートウェイ自身は200で応答する。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		results := make(map[string]string, len(s.upstreams))
		var mu sync.Mutex
		var wg sync.WaitGroup

		for _, u := range s.upstreams {
			wg.Add(1)
			go func(u upstream) {
				defer wg.Done()
				status := s.probe(c.Request.Context(), u)
				mu.Lock()
				results[u.name] = status
				mu.Unlock()
			}(u)
		}
		wg.Wait()

		c.JSON(http.StatusOK, healthReport{
			Status:    "healthy",
			Service:   "gateway",
			Services:  results,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// probe は単一のバックエンドにヘルスチェックを行い、状態文字列を返す。
func (s *Server) probe(ctx context.Context, u upstream) string {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+"/health", nil)
	if err != nil {
		return "unreachable"
	}

	resp, err := s.proxyClient.Do(req)
	if err != nil {
		return "unreachable"
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "unhealthy"
	}
	return "healthy"
}

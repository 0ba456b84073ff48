package gateway

import (
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// route はパスプレフィックスと転送先ベースURLの対応。
// targetにはプレフィックスを含む転送先URL（例: "http://books:8002/api/v1/books"）を指定する。
type route struct {
	prefix string
	target string
}

// resolveRoute はリクエストパスに対応する転送先を解決する。
// プレフィックステーブルを設定順に走査し、最初に一致したルートを返す。
func (s *Server) resolveRoute(path string) (route, bool) {
	for _, r := range s.routes {
		if strings.HasPrefix(path, r.prefix) {
			return r, true
		}
	}
	return route{}, false
}

// handleProxy はバックエンドサービスへのプロキシハンドラを返す。
// リクエストのメソッド・ヘッダー・クエリ・ボディをそのまま転送し、
// バックエンドのレスポンスを変換せずに中継する。
func (s *Server) handleProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := "/api/v1" + c.Param("proxyPath")

		r, ok := s.resolveRoute(path)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "ルートが見つかりません"})
			return
		}

		// プレフィックス以降の残りパスを転送先に連結する
		targetURL := r.target + strings.TrimPrefix(path, r.prefix)
		if rawQuery := c.Request.URL.RawQuery; rawQuery != "" {
			targetURL += "?" + rawQuery
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディの読み取りに失敗しました"})
			return
		}

		req, err := http.NewRequestWithContext(
			c.Request.Context(), c.Request.Method, targetURL, strings.NewReader(string(body)))
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "転送リクエストの作成に失敗しました"})
			return
		}

		// Hostヘッダーは転送先のものを使うため除外する
		for key, values := range c.Request.Header {
			if strings.EqualFold(key, "Host") {
				continue
			}
			for _, v := range values {
				req.Header.Add(key, v)
			}
		}

		resp, err := s.proxyClient.Do(req)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Printf("バックエンドへの転送がタイムアウト: %s %s: %v", c.Request.Method, targetURL, err)
				c.JSON(http.StatusGatewayTimeout, gin.H{"error": "バックエンドサービスが応答しませんでした"})
				return
			}
			log.Printf("バックエンドへの転送に失敗: %s %s: %v", c.Request.Method, targetURL, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "バックエンドサービスに接続できませんでした"})
			return
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "バックエンドからの応答の読み取りに失敗しました"})
			return
		}

		for key, values := range resp.Header {
			for _, v := range values {
				c.Writer.Header().Add(key, v)
			}
		}
		c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
	}
}

package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/bookshelf/pkg/ratelimit"
)

// Identity はレート制限カウンタのキーとなる文字列と適用区分を導出する。
// OptionalJWTAuthが事前に認証情報を設定していればユーザーID単位、
// そうでなければクライアントIP単位で判定する。
func Identity(c *gin.Context) (string, ratelimit.Tier) {
	if userID := GetUserID(c); userID != "" {
		if IsAdmin(c) {
			return "user:" + userID, ratelimit.TierAdmin
		}
		return "user:" + userID, ratelimit.TierAuthenticated
	}
	return "ip:" + c.ClientIP(), ratelimit.TierAnonymous
}

// RateLimit はレート制限を適用するGinミドルウェアを返す。
// 上限超過時は429を返し、許可時はX-RateLimit-*ヘッダーを付与する。
// カウンタストア障害時はリミッタ側でフェイルオープンするため、
// このミドルウェアがリクエストを落とすことはない。
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, tier := Identity(c)
		decision := limiter.Allow(c.Request.Context(), identity, tier)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", decision.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))

		if !decision.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(decision.RetryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "リクエスト数が上限を超えました",
			})
			return
		}
		c.Next()
	}
}

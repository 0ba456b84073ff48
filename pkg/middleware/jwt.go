package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
// ユーザーID等の情報をサービス間で伝播するために使用する。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"user_id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
	// IsAdmin は管理者権限を持つかどうか。
	IsAdmin bool `json:"is_admin"`
}

// headerKeyUserID はサービス間でユーザーIDを伝播するためのHTTPヘッダーキー。
const headerKeyUserID = "X-User-ID"

// GenerateJWT はユーザー情報からJWTトークンを生成する。
// authサービスがログイン成功後に呼び出す。有効期限は60分。
func GenerateJWT(secret, userID, email string, isAdmin bool) (string, error) {
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(60 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "bookshelf-auth",
		},
		UserID:  userID,
		Email:   email,
		IsAdmin: isAdmin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// parseClaims はAuthorizationヘッダーからJWTクレームを取り出す。
// ヘッダーが無い・形式不正・署名不正の場合はnilを返す。
func parseClaims(c *gin.Context, secret string) *JWTClaims {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil
	}

	tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found {
		return nil
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil
	}
	return claims
}

// JWTAuth はJWTトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに "user_id"、"email"、"is_admin" を設定する。
// トークンが無い・無効な場合は401で処理を打ち切る。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := parseClaims(c, secret)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "認証トークンが無効です",
			})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("is_admin", claims.IsAdmin)
		c.Header(headerKeyUserID, claims.UserID)
		c.Next()
	}
}

// OptionalJWTAuth はJWTトークンがあれば検証するGinミドルウェアを返す。
// トークンが無い・無効でもリクエストを拒否せず、認証情報を設定しないまま
// 処理を続行する。gatewayのレート制限区分判定で使用する。
func OptionalJWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims := parseClaims(c, secret); claims != nil {
			c.Set("user_id", claims.UserID)
			c.Set("email", claims.Email)
			c.Set("is_admin", claims.IsAdmin)
		}
		c.Next()
	}
}

// AdminRequired は管理者権限を要求するGinミドルウェアを返す。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "管理者権限が必要です",
			})
			return
		}
		c.Next()
	}
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// BearerToken はAuthorizationヘッダーからベアラートークンを取り出す。
// サービス間通信で呼び出し元の認証情報を転送するために使用する。
func BearerToken(c *gin.Context) string {
	token, _ := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	return token
}

// IsAdmin はGinコンテキストから管理者権限の有無を取得する。
func IsAdmin(c *gin.Context) bool {
	isAdmin, _ := c.Get("is_admin")
	if b, ok := isAdmin.(bool); ok {
		return b
	}
	return false
}

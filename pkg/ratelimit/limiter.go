package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Tier はレート制限の適用区分を表す。
// リクエスト元の認証状態に応じて異なる上限が適用される。
type Tier string

const (
	// TierAnonymous は未認証リクエスト（IPアドレス単位）の区分。
	TierAnonymous Tier = "anonymous"
	// TierAuthenticated は認証済みユーザーの区分。
	TierAuthenticated Tier = "authenticated"
	// TierAdmin は管理者ユーザーの区分。
	TierAdmin Tier = "admin"
)

// Rule は1つの区分に適用される上限値を表す。
type Rule struct {
	// MaxRequests はウィンドウ内で許可されるリクエスト数の上限。
	MaxRequests int64
	// Window はカウンタがリセットされるまでの期間。
	Window time.Duration
}

// DefaultRules は区分ごとのデフォルトの上限値を返す。
// 未認証: 20回/分、認証済み: 100回/分、管理者: 500回/分。
func DefaultRules() map[Tier]Rule {
	return map[Tier]Rule{
		TierAnonymous:     {MaxRequests: 20, Window: time.Minute},
		TierAuthenticated: {MaxRequests: 100, Window: time.Minute},
		TierAdmin:         {MaxRequests: 500, Window: time.Minute},
	}
}

// Store はレートリミットカウンタの保存先を表す。
type Store interface {
	// Increment はキーに対応するカウンタをアトミックにインクリメントし、
	// インクリメント後の値を返す。ウィンドウ内で最初のインクリメントの場合、
	// キーの有効期限としてwindowを設定する。
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Decision はレート制限の判定結果を表す。
type Decision struct {
	// Allowed はリクエストを許可するかどうか。
	Allowed bool
	// Limit は適用された上限値。
	Limit int64
	// Remaining はウィンドウ内の残りリクエスト数。
	Remaining int64
	// RetryAfter は拒否された場合に再試行まで待つべき期間。
	RetryAfter time.Duration
}

// Limiter は区分ごとの上限値に基づいてリクエストの許可・拒否を判定する。
type Limiter struct {
	// store はカウンタの保存先。
	store Store
	// rules は区分ごとの上限値。
	rules map[Tier]Rule
}

// NewLimiter は新しいレートリミッタを生成する。
// rulesがnilの場合はDefaultRulesが使用される。
func NewLimiter(store Store, rules map[Tier]Rule) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("ストアが指定されていません")
	}
	if rules == nil {
		rules = DefaultRules()
	}
	for tier, rule := range rules {
		if rule.MaxRequests <= 0 || rule.Window <= 0 {
			return nil, fmt.Errorf("区分 %s の上限値が不正です: %+v", tier, rule)
		}
	}
	return &Limiter{store: store, rules: rules}, nil
}

// Allow は指定されたアイデンティティの新しいリクエストを許可するか判定する。
// カウンタをアトミックにインクリメントし、区分の上限と比較する。
// ストアがエラーを返した場合はフェイルオープン（許可）する。
// ストア障害でゲートウェイ全体が停止することを避けるための意図的な挙動。
func (l *Limiter) Allow(ctx context.Context, identity string, tier Tier) Decision {
	rule, ok := l.rules[tier]
	if !ok {
		rule = l.rules[TierAnonymous]
	}

	count, err := l.store.Increment(ctx, "rl:"+identity, rule.Window)
	if err != nil {
		log.Printf("レートリミットストアへのアクセスに失敗（フェイルオープン）: identity=%s, error=%v", identity, err)
		return Decision{Allowed: true, Limit: rule.MaxRequests, Remaining: rule.MaxRequests}
	}

	if count > rule.MaxRequests {
		return Decision{
			Allowed:    false,
			Limit:      rule.MaxRequests,
			Remaining:  0,
			RetryAfter: rule.Window,
		}
	}

	return Decision{
		Allowed:   true,
		Limit:     rule.MaxRequests,
		Remaining: rule.MaxRequests - count,
	}
}

// Package auth は認証サービスの内部実装を提供する。
//
// ユーザー登録・ログイン・JWTアクセストークンの発行・リフレッシュトークンの
// 管理・プロフィールの取得と更新・管理者向けユーザー一覧を担当する。
// パスワードはbcryptでハッシュ化して保存する。
package auth

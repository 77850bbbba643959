// Package security はアプリケーションのセキュリティ機能を提供する。
//
// MessageSanitizerService はチャットメッセージ本文からHTMLを除去し、
// ダッシュボード表示時のXSSからユーザーを保護する。
// bluemondayのStrictPolicyを使用し、タグを一切許可しない。
package security

import "github.com/microcosm-cc/bluemonday"

// MessageSanitizerService はチャット本文のサニタイズ機能のインターフェースを定義する。
// メッセージの永続化および配信の前に使用される。
type MessageSanitizerService interface {
	// Sanitize はメッセージ本文からすべてのHTMLタグを除去したテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(body string) string
}

// messageSanitizer はMessageSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type messageSanitizer struct {
	policy *bluemonday.Policy
}

// NewMessageSanitizer はMessageSanitizerServiceの新しいインスタンスを生成する。
// チャットはプレーンテキストのみを扱うため、許可タグを持たないStrictPolicyを使用する。
func NewMessageSanitizer() *messageSanitizer {
	return &messageSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はメッセージ本文からすべてのHTMLタグを除去したテキストを返す。
func (s *messageSanitizer) Sanitize(body string) string {
	return s.policy.Sanitize(body)
}

// compile-time interface check
var _ MessageSanitizerService = (*messageSanitizer)(nil)

// Package model はドメインモデルを定義する。
package model

import "time"

// ChatMessage はアパートグループ内のチャットメッセージを表す。
// 作成後は不変。CreatedAtはサーバー側で採番され、
// 同一アパート内では表示順として単調非減少になる。
type ChatMessage struct {
	ID          string
	ApartmentID string
	AuthorEmail string // 送信者の識別子（メールアドレス）
	Body        string
	CreatedAt   time.Time
}

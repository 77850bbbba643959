// Package model はドメインモデルを定義する。
package model

import "time"

// Apartment はチャットグループと設備予約の隔離単位となるアパートを表す。
// ApartmentIDは人間が扱う識別子（例: "apt123"）で、一意である。
type Apartment struct {
	ApartmentID string
	CreatedAt   time.Time
}

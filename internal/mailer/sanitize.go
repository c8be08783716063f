package mailer

import "github.com/microcosm-cc/bluemonday"

// sanitizePolicy はメール本文に埋め込むユーザー由来テキストの
// サニタイズポリシー。UGCポリシーをベースに許可タグを制限する。
var sanitizePolicy = bluemonday.UGCPolicy()

// Sanitize はHTML本文に埋め込む前のユーザー由来テキストを無害化する。
// イベントの説明文や件名など、外部入力がメールHTMLに混入する箇所で使う。
func Sanitize(s string) string {
	return sanitizePolicy.Sanitize(s)
}

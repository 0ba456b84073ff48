package pubsub

// Topic はドメインイベントの配信先チャネル名を表す。
type Topic string

const (
	// TopicUserRegistered はユーザーが新規登録されたことを表す。
	TopicUserRegistered Topic = "user.registered"
	// TopicUserUpdated はユーザープロフィールが更新されたことを表す。
	TopicUserUpdated Topic = "user.updated"

	// TopicBookCreated は書籍が登録されたことを表す。
	TopicBookCreated Topic = "book.created"
	// TopicBookUpdated は書籍情報が更新されたことを表す。
	TopicBookUpdated Topic = "book.updated"
	// TopicBookDeleted は書籍が削除されたことを表す。
	TopicBookDeleted Topic = "book.deleted"
	// TopicBookStockLow は書籍の在庫が閾値を下回ったことを表す。
	TopicBookStockLow Topic = "book.stock_low"

	// TopicOrderCreated は注文が作成されたことを表す。
	TopicOrderCreated Topic = "order.created"
	// TopicOrderCompleted は注文が完了したことを表す。
	TopicOrderCompleted Topic = "order.completed"
	// TopicOrderCancelled は注文がキャンセルされたことを表す。
	TopicOrderCancelled Topic = "order.cancelled"

	// TopicReviewCreated はレビューが投稿されたことを表す。
	TopicReviewCreated Topic = "review.created"
	// TopicReviewUpdated はレビューが更新されたことを表す。
	TopicReviewUpdated Topic = "review.updated"
	// TopicReviewDeleted はレビューが削除されたことを表す。
	TopicReviewDeleted Topic = "review.deleted"
)

package db

import (
	"context"
	"fmt"
	"strings"
)

// ListReviewsByBookParams は書籍単位のレビュー一覧の絞り込み条件。
type ListReviewsByBookParams struct {
	// BookID は対象書籍のID。
	BookID string
	// Rating は評価の完全一致条件。0は条件に含めない。
	Rating int64
	// SortBy はソート対象カラム。created_at / rating のいずれか。
	SortBy string
	// SortOrder はソート方向。asc / desc のいずれか。
	SortOrder string
	// Limit は取得件数の上限。
	Limit int64
	// Offset は取得開始位置。
	Offset int64
}

// sortColumns は外部入力をそのままSQLに連結しないためのホワイトリスト。
var sortColumns = map[string]string{
	"created_at": "created_at",
	"rating":     "rating",
}

// ListReviewsByBook は書籍単位のレビュー一覧と総件数を返す。
// 動的なWHERE句を組み立てるためsqlcではなく手書きで実装している。
func (q *Queries) ListReviewsByBook(ctx context.Context, arg ListReviewsByBookParams) ([]Review, int64, error) {
	conds := []string{"book_id = ?"}
	args := []any{arg.BookID}

	if arg.Rating > 0 {
		conds = append(conds, "rating = ?")
		args = append(args, arg.Rating)
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int64
	countQuery := "SELECT COUNT(*) FROM reviews" + where
	if err := q.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("レビュー数の取得に失敗: %w", err)
	}

	sortBy, ok := sortColumns[arg.SortBy]
	if !ok {
		sortBy = "created_at"
	}
	sortOrder := "DESC"
	if strings.EqualFold(arg.SortOrder, "asc") {
		sortOrder = "ASC"
	}

	listQuery := fmt.Sprintf(
		"SELECT id, book_id, user_id, rating, comment, created_at, updated_at FROM reviews%s ORDER BY %s %s LIMIT ? OFFSET ?",
		where, sortBy, sortOrder,
	)
	args = append(args, arg.Limit, arg.Offset)

	rows, err := q.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("レビュー一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	var items []Review
	for rows.Next() {
		var i Review
		if err := rows.Scan(
			&i.ID,
			&i.BookID,
			&i.UserID,
			&i.Rating,
			&i.Comment,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("レビュー行の読み取りに失敗: %w", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("レビュー一覧の走査に失敗: %w", err)
	}
	return items, total, nil
}

package db

import (
	"context"
	"fmt"
	"strings"
)

// ListBooksFilteredParams は書籍一覧の絞り込み条件。
// ゼロ値のフィールドは条件に含めない。
type ListBooksFilteredParams struct {
	// Category はカテゴリの完全一致条件。
	Category string
	// Author は著者名の完全一致条件。
	Author string
	// Search はタイトル・著者への部分一致条件。
	Search string
	// MinPrice は価格の下限。負の値は条件に含めない。
	MinPrice float64
	// MaxPrice は価格の上限。0以下は条件に含めない。
	MaxPrice float64
	// SortBy はソート対象カラム。title / price / created_at のいずれか。
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
	"title":      "title",
	"price":      "price",
	"created_at": "created_at",
}

// ListBooksFiltered は絞り込み条件付きの書籍一覧と総件数を返す。
// 動的なWHERE句を組み立てるためsqlcではなく手書きで実装している。
func (q *Queries) ListBooksFiltered(ctx context.Context, arg ListBooksFilteredParams) ([]Book, int64, error) {
	var conds []string
	var args []any

	if arg.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, arg.Category)
	}
	if arg.Author != "" {
		conds = append(conds, "author = ?")
		args = append(args, arg.Author)
	}
	if arg.Search != "" {
		conds = append(conds, "(title LIKE ? OR author LIKE ?)")
		pattern := "%" + arg.Search + "%"
		args = append(args, pattern, pattern)
	}
	if arg.MinPrice > 0 {
		conds = append(conds, "price >= ?")
		args = append(args, arg.MinPrice)
	}
	if arg.MaxPrice > 0 {
		conds = append(conds, "price <= ?")
		args = append(args, arg.MaxPrice)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM books" + where
	if err := q.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("書籍数の取得に失敗: %w", err)
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
		"SELECT id, title, author, description, isbn, price, stock, category, created_at, updated_at FROM books%s ORDER BY %s %s LIMIT ? OFFSET ?",
		where, sortBy, sortOrder,
	)
	args = append(args, arg.Limit, arg.Offset)

	rows, err := q.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("書籍一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	var items []Book
	for rows.Next() {
		var i Book
		if err := rows.Scan(
			&i.ID,
			&i.Title,
			&i.Author,
			&i.Description,
			&i.Isbn,
			&i.Price,
			&i.Stock,
			&i.Category,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("書籍行の読み取りに失敗: %w", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("書籍一覧の走査に失敗: %w", err)
	}
	return items, total, nil
}

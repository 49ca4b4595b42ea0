package repo

import (
	"context"

	"gorm.io/gorm"

	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
	"github.com/seahsky/joho-erp-sub004/pkg/pagination"
)

// Base is embedded by the domain repositories. It carries the connection (or the
// open transaction) every query runs against.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// WithTx returns a copy bound to tx.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Paginate applies newest-first keyset pagination over (created_at, id) and
// fetches one extra row so callers can detect the next page.
func Paginate(query *gorm.DB, params pagination.Params, createdCol, idCol string) (*gorm.DB, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		query = query.Where("("+createdCol+" < ?) OR ("+createdCol+" = ? AND "+idCol+" < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	return query.
		Order(createdCol + " DESC").
		Order(idCol + " DESC").
		Limit(params.Fetch()), nil
}

package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("catalog: product not found")

type Product struct {
	ID            int64
	Name          string
	Price         decimal.Decimal
	StockQuantity int
	Image         string
	CategoryID    int64
}

// InStock reports whether at least one unit can be sold.
func (p *Product) InStock() bool { return p.StockQuantity > 0 }

type Repository interface {
	FindProduct(ctx context.Context, id int64) (*Product, error)
}

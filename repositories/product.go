//go:generate go run go.uber.org/mock/mockgen -source=product.go -destination=../mocks/mock_product_repository.go -package=mocks
package repositories

import (
	"context"
	"group-cart/domain"
	"group-cart/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type IProductRepository interface {
	UpsertProduct(ctx context.Context, product domain.Product) error
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	// ListProducts returns the catalog ordered by product ID.
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

type ProductRepository struct {
	db *badger.DB
}

func NewProductRepository(db *badger.DB) ProductRepository {
	return ProductRepository{db: db}
}

type DiskProduct struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"image_url"`
	Description string  `json:"description"`
}

func (p ProductRepository) UpsertProduct(ctx context.Context, product domain.Product) error {
	if err := ctx.Err(); err != nil {
		return errors.Persistence("upsert product", err)
	}
	if product.Price < 0 {
		return errors.Validation("product %q has a negative price", product.ID)
	}
	err := p.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, productKey(product.ID), DiskProduct(product))
	})
	if err != nil {
		return errors.Persistence("upsert product", err)
	}
	return nil
}

func (p ProductRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, errors.Persistence("get product", err)
	}
	var stored DiskProduct
	err := p.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, productKey(id), &stored)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Product{}, errors.NotFound("product %q", id)
	}
	if err != nil {
		return domain.Product{}, errors.Persistence("get product", err)
	}
	return domain.Product(stored), nil
}

func (p ProductRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Persistence("list products", err)
	}
	var stored []DiskProduct
	err := p.db.View(func(txn *badger.Txn) error {
		var err error
		stored, err = scanJSON[DiskProduct](txn, []byte("product:"), false, 0)
		return err
	})
	if err != nil {
		return nil, errors.Persistence("list products", err)
	}
	return lo.Map(stored, func(d DiskProduct, _ int) domain.Product {
		return domain.Product(d)
	}), nil
}

func productKey(id string) []byte {
	return []byte("product:" + id)
}

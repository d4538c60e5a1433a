//go:generate go run go.uber.org/mock/mockgen -source=cart.go -destination=../mocks/mock_cart_repository.go -package=mocks
package repositories

import (
	"context"
	"fmt"
	"group-cart/domain"
	"group-cart/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type ICartRepository interface {
	// AddCartItem appends one row per call: identical adds are kept as separate items.
	AddCartItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error)
	// GetCart returns the items of the group in insertion order.
	GetCart(ctx context.Context, groupID domain.GroupID) ([]domain.CartItem, error)
}

type CartRepository struct {
	db  *badger.DB
	seq *badger.Sequence
}

func NewCartRepository(db *badger.DB, seq *badger.Sequence) CartRepository {
	return CartRepository{db: db, seq: seq}
}

type DiskCartItem struct {
	ID          uint64    `json:"id"`
	GroupID     string    `json:"group_id"`
	ProductID   string    `json:"product_id"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	ImageURL    string    `json:"image_url"`
	Description string    `json:"description"`
	AddedBy     string    `json:"added_by"`
	AddedAt     time.Time `json:"added_at"`
}

// AddCartItem persists the item under "cart:{group_hex}:{id_padded}".
// The badger sequence hands out distinct IDs to concurrent writers.
func (c CartRepository) AddCartItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	if err := ctx.Err(); err != nil {
		return domain.CartItem{}, errors.Persistence("add cart item", err)
	}
	next, err := c.seq.Next()
	if err != nil {
		return domain.CartItem{}, errors.Persistence("add cart item", err)
	}
	item.ID = next + 1
	item.AddedAt = time.Now().UTC()

	err = c.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, cartKey(item.GroupID, item.ID), fromCartItem(item))
	})
	if err != nil {
		return domain.CartItem{}, errors.Persistence("add cart item", err)
	}
	return item, nil
}

func (c CartRepository) GetCart(ctx context.Context, groupID domain.GroupID) ([]domain.CartItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Persistence("get cart", err)
	}
	var stored []DiskCartItem
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		stored, err = scanJSON[DiskCartItem](txn, cartPrefix(groupID), false, 0)
		return err
	})
	if err != nil {
		return nil, errors.Persistence("get cart", err)
	}
	return lo.Map(stored, func(d DiskCartItem, _ int) domain.CartItem {
		return toCartItem(d)
	}), nil
}

func cartPrefix(groupID domain.GroupID) []byte {
	return []byte(fmt.Sprintf("cart:%s:", groupKey(groupID)))
}

func cartKey(groupID domain.GroupID, id uint64) []byte {
	return []byte(fmt.Sprintf("cart:%s:%020d", groupKey(groupID), id))
}

func fromCartItem(item domain.CartItem) DiskCartItem {
	return DiskCartItem{
		ID:          item.ID,
		GroupID:     string(item.GroupID),
		ProductID:   item.ProductID,
		Name:        item.Name,
		Price:       item.Price,
		ImageURL:    item.ImageURL,
		Description: item.Description,
		AddedBy:     string(item.AddedBy),
		AddedAt:     item.AddedAt,
	}
}

func toCartItem(d DiskCartItem) domain.CartItem {
	return domain.CartItem{
		ID:          d.ID,
		GroupID:     domain.GroupID(d.GroupID),
		ProductID:   d.ProductID,
		Name:        d.Name,
		Price:       d.Price,
		ImageURL:    d.ImageURL,
		Description: d.Description,
		AddedBy:     domain.UserID(d.AddedBy),
		AddedAt:     d.AddedAt.UTC(),
	}
}

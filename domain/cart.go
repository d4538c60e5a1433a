package domain

import "time"

// CartItem is one "add" action in a group cart.
// Product fields are copied at insert time so catalog edits never rewrite history.
type CartItem struct {
	ID          uint64
	GroupID     GroupID
	ProductID   string
	Name        string
	Price       float64
	ImageURL    string
	Description string
	AddedBy     UserID
	AddedAt     time.Time
}

func NewCartItem(groupID GroupID, product Product, addedBy UserID) CartItem {
	return CartItem{
		GroupID:     groupID,
		ProductID:   product.ID,
		Name:        product.Name,
		Price:       product.Price,
		ImageURL:    product.ImageURL,
		Description: product.Description,
		AddedBy:     addedBy,
	}
}

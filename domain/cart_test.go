package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCartItem_Copies_Product_Fields(t *testing.T) {
	req := require.New(t)
	product := Product{ID: "p1", Name: "Linen shirt", Price: 39.9, ImageURL: "/img/p1.png", Description: "Breathable"}

	// When an item is created from a product
	item := NewCartItem("g1", product, "u1")

	// Then the product is denormalized into the item
	req.Equal(GroupID("g1"), item.GroupID)
	req.Equal("p1", item.ProductID)
	req.Equal("Linen shirt", item.Name)
	req.Equal(39.9, item.Price)
	req.Equal("/img/p1.png", item.ImageURL)
	req.Equal("Breathable", item.Description)
	req.Equal(UserID("u1"), item.AddedBy)

	// And later catalog edits don't leak into it
	product.Name = "Renamed"
	req.Equal("Linen shirt", item.Name)
}

func TestSession_Bound(t *testing.T) {
	req := require.New(t)
	req.False(Session{ConnectionID: "c1"}.Bound())
	req.True(Session{ConnectionID: "c1", GroupID: "g1"}.Bound())
}

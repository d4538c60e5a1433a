package services

import (
	"context"
	"group-cart/contract"
	"group-cart/domain"
	"group-cart/domain/event"
	"group-cart/repositories"
	"group-cart/runtime"
	"log/slog"
)

type ICartService interface {
	AddToCart(ctx context.Context, req runtime.Request, payload event.AddToCartPayload) error
	GetCart(ctx context.Context, req runtime.Request, payload event.GetCartPayload) error
	SendCart(ctx context.Context, connID domain.ConnectionID, groupID domain.GroupID) error
	Products(ctx context.Context) ([]domain.Product, error)
}

type CartService struct {
	log         *slog.Logger
	registry    contract.IRegistry
	broadcaster contract.IBroadcaster
	products    repositories.IProductRepository
	users       repositories.IUserRepository
	carts       repositories.ICartRepository
}

func NewCartService(log *slog.Logger, registry contract.IRegistry, broadcaster contract.IBroadcaster,
	products repositories.IProductRepository, users repositories.IUserRepository, carts repositories.ICartRepository) *CartService {
	return &CartService{
		log:         log,
		registry:    registry,
		broadcaster: broadcaster,
		products:    products,
		users:       users,
		carts:       carts,
	}
}

// AddToCart appends one item and broadcasts the full cart reloaded after the write.
// Unknown products or adders are rejected before anything is written.
func (s *CartService) AddToCart(ctx context.Context, req runtime.Request, payload event.AddToCartPayload) error {
	groupID := domain.GroupID(payload.GroupID)
	product, err := s.products.GetProduct(ctx, payload.ProductID)
	if err != nil {
		return err
	}
	if _, err = s.users.GetUser(ctx, domain.UserID(payload.AddedBy)); err != nil {
		return err
	}

	item, err := s.carts.AddCartItem(ctx, domain.NewCartItem(groupID, product, domain.UserID(payload.AddedBy)))
	if err != nil {
		return err
	}
	s.log.Debug("Cart item added", "group_id", groupID, "item_id", item.ID, "product_id", product.ID)

	inGroup := req.Session.GroupID == groupID
	if !req.Session.Bound() {
		s.registry.Bind(req.ConnectionID(), groupID, req.Session.UserID)
		inGroup = true
	}

	cart, err := s.carts.GetCart(ctx, groupID)
	if err != nil {
		return err
	}
	payloadOut := event.FromCart(cart)
	s.broadcaster.BroadcastToGroup(ctx, groupID, event.CartUpdated, payloadOut)
	if !inGroup {
		s.broadcaster.SendTo(ctx, req.ConnectionID(), event.CartUpdated, payloadOut)
	}
	return nil
}

func (s *CartService) GetCart(ctx context.Context, req runtime.Request, payload event.GetCartPayload) error {
	return s.SendCart(ctx, req.ConnectionID(), domain.GroupID(payload.GroupID))
}

func (s *CartService) SendCart(ctx context.Context, connID domain.ConnectionID, groupID domain.GroupID) error {
	cart, err := s.carts.GetCart(ctx, groupID)
	if err != nil {
		return err
	}
	s.broadcaster.SendTo(ctx, connID, event.CartUpdated, event.FromCart(cart))
	return nil
}

func (s *CartService) Products(ctx context.Context) ([]domain.Product, error) {
	return s.products.ListProducts(ctx)
}

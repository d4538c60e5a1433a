package event

import (
	"group-cart/domain"
	"strconv"

	"github.com/samber/lo"
)

// ClockLayout renders message times and join times, e.g. "03:04 PM".
const ClockLayout = "03:04 PM"

// Empty is the schema of events that carry no payload.
type Empty struct{}

type JoinGroupPayload struct {
	GroupID string `json:"group_id" validate:"required,max=128"`
	UserID  string `json:"user_id" validate:"required,max=128"`
	Name    string `json:"name" validate:"max=64"`
	Avatar  string `json:"avatar" validate:"max=32"`
}

type SendMessagePayload struct {
	Sender  string `json:"sender" validate:"required"`
	Message string `json:"message" validate:"required"`
	IsAI    bool   `json:"isAI"`
}

type AddToCartPayload struct {
	GroupID   string `json:"group_id" validate:"required,max=128"`
	ProductID string `json:"product_id" validate:"required,max=128"`
	AddedBy   string `json:"added_by" validate:"required,max=128"`
}

type GetCartPayload struct {
	GroupID string `json:"group_id" validate:"required,max=128"`
}

type SearchMessagesPayload struct {
	Query string `json:"query" validate:"required,max=256"`
}

type MessagePayload struct {
	ID      string `json:"id"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
	Time    string `json:"time"`
	IsAI    bool   `json:"isAI"`
}

type CartItemPayload struct {
	ID          string  `json:"id"`
	ProductID   string  `json:"product_id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"image_url"`
	Description string  `json:"description"`
	AddedBy     string  `json:"added_by"`
}

type MemberPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	IsOnline bool   `json:"isOnline"`
	JoinedAt string `json:"joinedAt"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

func FromMessage(m domain.Message) MessagePayload {
	return MessagePayload{
		ID:      strconv.FormatUint(m.ID, 10),
		Sender:  m.SenderName,
		Message: m.Content,
		Time:    m.CreatedAt.UTC().Format(ClockLayout),
		IsAI:    m.IsAI,
	}
}

// FromMessages never returns nil so that empty histories encode as [].
func FromMessages(messages []domain.Message) []MessagePayload {
	return lo.Map(messages, func(item domain.Message, _ int) MessagePayload {
		return FromMessage(item)
	})
}

func FromCart(items []domain.CartItem) []CartItemPayload {
	return lo.Map(items, func(item domain.CartItem, _ int) CartItemPayload {
		return CartItemPayload{
			ID:          strconv.FormatUint(item.ID, 10),
			ProductID:   item.ProductID,
			Name:        item.Name,
			Price:       item.Price,
			ImageURL:    item.ImageURL,
			Description: item.Description,
			AddedBy:     string(item.AddedBy),
		}
	})
}

func FromMembers(members []domain.Member) []MemberPayload {
	return lo.Map(members, func(item domain.Member, _ int) MemberPayload {
		return MemberPayload{
			ID:       string(item.ID),
			Name:     item.Name,
			Avatar:   item.Avatar,
			IsOnline: item.IsOnline,
			JoinedAt: item.JoinedAt.UTC().Format(ClockLayout),
		}
	})
}

type SearchResultsPayload struct {
	Query    string           `json:"query"`
	Total    uint64           `json:"total"`
	Messages []MessagePayload `json:"messages"`
}

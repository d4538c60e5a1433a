package sqlstore

import (
	"context"
	"database/sql"
	"group-cart/domain"
	"group-cart/errors"
	"group-cart/repositories"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
)

// Store implements repositories.Store on SQLite.
// Timestamps are stored as unix nanoseconds in UTC.
type Store struct {
	db            *sqlx.DB
	log           *slog.Logger
	limitMessages *int
}

var _ repositories.Store = (*Store)(nil)

func NewStore(db *sqlx.DB, log *slog.Logger, limitMessages *int) *Store {
	return &Store{db: db, log: log.With("component", "sqlstore"), limitMessages: limitMessages}
}

type userRow struct {
	ID       string `db:"id"`
	Name     string `db:"name"`
	Avatar   string `db:"avatar"`
	Online   bool   `db:"online"`
	JoinedAt int64  `db:"joined_at"`
}

type messageRow struct {
	ID         uint64 `db:"id"`
	GroupID    string `db:"group_id"`
	SenderID   string `db:"sender_id"`
	SenderName string `db:"sender_name"`
	Content    string `db:"content"`
	CreatedAt  int64  `db:"created_at"`
	IsAI       bool   `db:"is_ai"`
}

type productRow struct {
	ID          string  `db:"id"`
	Name        string  `db:"name"`
	Price       float64 `db:"price"`
	ImageURL    string  `db:"image_url"`
	Description string  `db:"description"`
}

type cartItemRow struct {
	ID          uint64  `db:"id"`
	GroupID     string  `db:"group_id"`
	ProductID   string  `db:"product_id"`
	Name        string  `db:"name"`
	Price       float64 `db:"price"`
	ImageURL    string  `db:"image_url"`
	Description string  `db:"description"`
	AddedBy     string  `db:"added_by"`
	AddedAt     int64   `db:"added_at"`
}

func (s *Store) UpsertUser(ctx context.Context, user domain.User) (domain.User, error) {
	joinedAt := user.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now().UTC()
	}
	query := `
        INSERT INTO users (id, name, avatar, online, joined_at)
        VALUES (:id, :name, :avatar, :online, :joined_at)
        ON CONFLICT (id) DO UPDATE SET
            name   = CASE WHEN excluded.name <> '' THEN excluded.name ELSE users.name END,
            avatar = CASE WHEN excluded.avatar <> '' THEN excluded.avatar ELSE users.avatar END,
            online = excluded.online;
    `
	row := userRow{
		ID:       string(user.ID),
		Name:     user.Name,
		Avatar:   user.Avatar,
		Online:   user.Online,
		JoinedAt: joinedAt.UnixNano(),
	}
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		s.log.ErrorContext(ctx, "Error saving user", "user_id", user.ID, "error", err)
		return domain.User{}, errors.Persistence("upsert user", err)
	}
	return s.GetUser(ctx, user.ID)
}

func (s *Store) GetUser(ctx context.Context, id domain.UserID) (domain.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT id, name, avatar, online, joined_at FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, errors.NotFound("user %q", id)
	}
	if err != nil {
		return domain.User{}, errors.Persistence("get user", err)
	}
	return toUser(row), nil
}

func (s *Store) SetOnline(ctx context.Context, id domain.UserID, online bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET online = ? WHERE id = ?`, online, id)
	if err != nil {
		return errors.Persistence("set online", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Persistence("set online", err)
	}
	if affected == 0 {
		return errors.NotFound("user %q", id)
	}
	return nil
}

func (s *Store) AddMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)`,
		groupID, userID, at.UTC().UnixNano())
	if err != nil {
		return errors.Persistence("add member", err)
	}
	return nil
}

func (s *Store) ListMembers(ctx context.Context, groupID domain.GroupID) ([]domain.User, error) {
	var rows []userRow
	err := s.db.SelectContext(ctx, &rows, `
        SELECT u.id, u.name, u.avatar, u.online, m.joined_at
        FROM group_members m
        JOIN users u ON u.id = m.user_id
        WHERE m.group_id = ?
        ORDER BY m.joined_at, u.id`, groupID)
	if err != nil {
		return nil, errors.Persistence("list members", err)
	}
	return lo.Map(rows, func(row userRow, _ int) domain.User { return toUser(row) }), nil
}

func (s *Store) StoreMessage(ctx context.Context, message domain.Message) (domain.Message, error) {
	message.CreatedAt = time.Now().UTC()
	query := `
        INSERT INTO messages (group_id, sender_id, sender_name, content, created_at, is_ai)
        VALUES (:group_id, :sender_id, :sender_name, :content, :created_at, :is_ai);
    `
	result, err := s.db.NamedExecContext(ctx, query, fromMessage(message))
	if err != nil {
		s.log.ErrorContext(ctx, "Error saving message", "group_id", message.GroupID, "error", err)
		return domain.Message{}, errors.Persistence("store message", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return domain.Message{}, errors.Persistence("store message", err)
	}
	message.ID = uint64(id)
	return message, nil
}

// GetMessages returns the group history in ascending order, or its most recent
// part when a limit is configured.
func (s *Store) GetMessages(ctx context.Context, groupID domain.GroupID) ([]domain.Message, error) {
	var rows []messageRow
	var err error
	if s.limitMessages != nil && *s.limitMessages > 0 {
		err = s.db.SelectContext(ctx, &rows, `
            SELECT * FROM (
                SELECT id, group_id, sender_id, sender_name, content, created_at, is_ai
                FROM messages WHERE group_id = ? ORDER BY id DESC LIMIT ?
            ) ORDER BY id`, groupID, *s.limitMessages)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
            SELECT id, group_id, sender_id, sender_name, content, created_at, is_ai
            FROM messages WHERE group_id = ? ORDER BY id`, groupID)
	}
	if err != nil {
		return nil, errors.Persistence("get messages", err)
	}
	return lo.Map(rows, func(row messageRow, _ int) domain.Message { return toMessage(row) }), nil
}

func (s *Store) GetMessagesByIDs(ctx context.Context, groupID domain.GroupID, ids []uint64) ([]domain.Message, error) {
	if len(ids) == 0 {
		return []domain.Message{}, nil
	}
	query, args, err := sqlx.In(`
        SELECT id, group_id, sender_id, sender_name, content, created_at, is_ai
        FROM messages WHERE group_id = ? AND id IN (?) ORDER BY id`, groupID, ids)
	if err != nil {
		return nil, errors.Persistence("get messages", err)
	}
	var rows []messageRow
	if err = s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, errors.Persistence("get messages", err)
	}
	return lo.Map(rows, func(row messageRow, _ int) domain.Message { return toMessage(row) }), nil
}

func (s *Store) EachMessage(ctx context.Context, fn func(domain.Message) error) error {
	rows, err := s.db.QueryxContext(ctx, `
        SELECT id, group_id, sender_id, sender_name, content, created_at, is_ai
        FROM messages ORDER BY id`)
	if err != nil {
		return errors.Persistence("walk messages", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var row messageRow
		if err = rows.StructScan(&row); err != nil {
			return errors.Persistence("walk messages", err)
		}
		if err = fn(toMessage(row)); err != nil {
			return err
		}
	}
	if err = rows.Err(); err != nil {
		return errors.Persistence("walk messages", err)
	}
	return nil
}

func (s *Store) UpsertProduct(ctx context.Context, product domain.Product) error {
	if product.Price < 0 {
		return errors.Validation("product %q has a negative price", product.ID)
	}
	query := `
        INSERT INTO products (id, name, price, image_url, description)
        VALUES (:id, :name, :price, :image_url, :description)
        ON CONFLICT (id) DO UPDATE SET
            name = excluded.name,
            price = excluded.price,
            image_url = excluded.image_url,
            description = excluded.description;
    `
	if _, err := s.db.NamedExecContext(ctx, query, productRow(product)); err != nil {
		return errors.Persistence("upsert product", err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var row productRow
	err := s.db.GetContext(ctx, &row, `SELECT id, name, price, image_url, description FROM products WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, errors.NotFound("product %q", id)
	}
	if err != nil {
		return domain.Product{}, errors.Persistence("get product", err)
	}
	return domain.Product(row), nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, name, price, image_url, description FROM products ORDER BY id`); err != nil {
		return nil, errors.Persistence("list products", err)
	}
	return lo.Map(rows, func(row productRow, _ int) domain.Product { return domain.Product(row) }), nil
}

func (s *Store) AddCartItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	item.AddedAt = time.Now().UTC()
	query := `
        INSERT INTO cart_items (group_id, product_id, name, price, image_url, description, added_by, added_at)
        VALUES (:group_id, :product_id, :name, :price, :image_url, :description, :added_by, :added_at);
    `
	result, err := s.db.NamedExecContext(ctx, query, fromCartItem(item))
	if err != nil {
		s.log.ErrorContext(ctx, "Error saving cart item", "group_id", item.GroupID, "error", err)
		return domain.CartItem{}, errors.Persistence("add cart item", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return domain.CartItem{}, errors.Persistence("add cart item", err)
	}
	item.ID = uint64(id)
	return item, nil
}

func (s *Store) GetCart(ctx context.Context, groupID domain.GroupID) ([]domain.CartItem, error) {
	var rows []cartItemRow
	err := s.db.SelectContext(ctx, &rows, `
        SELECT id, group_id, product_id, name, price, image_url, description, added_by, added_at
        FROM cart_items WHERE group_id = ? ORDER BY id`, groupID)
	if err != nil {
		return nil, errors.Persistence("get cart", err)
	}
	return lo.Map(rows, func(row cartItemRow, _ int) domain.CartItem { return toCartItem(row) }), nil
}

// Maintain compacts the database file.
func (s *Store) Maintain(ctx context.Context) error {
	s.log.DebugContext(ctx, "Running SQL maintenance")
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		return errors.Persistence("vacuum", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func toUser(row userRow) domain.User {
	return domain.User{
		ID:       domain.UserID(row.ID),
		Name:     row.Name,
		Avatar:   row.Avatar,
		Online:   row.Online,
		JoinedAt: fromNanos(row.JoinedAt),
	}
}

func fromMessage(message domain.Message) messageRow {
	return messageRow{
		ID:         message.ID,
		GroupID:    string(message.GroupID),
		SenderID:   string(message.SenderID),
		SenderName: message.SenderName,
		Content:    message.Content,
		CreatedAt:  message.CreatedAt.UnixNano(),
		IsAI:       message.IsAI,
	}
}

func toMessage(row messageRow) domain.Message {
	return domain.Message{
		ID:         row.ID,
		GroupID:    domain.GroupID(row.GroupID),
		SenderID:   domain.UserID(row.SenderID),
		SenderName: row.SenderName,
		Content:    row.Content,
		CreatedAt:  fromNanos(row.CreatedAt),
		IsAI:       row.IsAI,
	}
}

func fromCartItem(item domain.CartItem) cartItemRow {
	return cartItemRow{
		GroupID:     string(item.GroupID),
		ProductID:   item.ProductID,
		Name:        item.Name,
		Price:       item.Price,
		ImageURL:    item.ImageURL,
		Description: item.Description,
		AddedBy:     string(item.AddedBy),
		AddedAt:     item.AddedAt.UnixNano(),
	}
}

func toCartItem(row cartItemRow) domain.CartItem {
	return domain.CartItem{
		ID:          row.ID,
		GroupID:     domain.GroupID(row.GroupID),
		ProductID:   row.ProductID,
		Name:        row.Name,
		Price:       row.Price,
		ImageURL:    row.ImageURL,
		Description: row.Description,
		AddedBy:     domain.UserID(row.AddedBy),
		AddedAt:     fromNanos(row.AddedAt),
	}
}

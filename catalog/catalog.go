// Package catalog loads the product catalog from a YAML file and seeds the store with it.
package catalog

import (
	"context"
	"fmt"
	"group-cart/domain"
	"group-cart/errors"
	"io"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Entry struct {
	ID          string  `yaml:"id" validate:"required"`
	Name        string  `yaml:"name" validate:"required"`
	Price       float64 `yaml:"price" validate:"gte=0"`
	ImageURL    string  `yaml:"image_url"`
	Description string  `yaml:"description"`
}

type File struct {
	Products []Entry `yaml:"products" validate:"dive"`
}

// ProductWriter is the part of the store the seeding needs.
type ProductWriter interface {
	UpsertProduct(ctx context.Context, product domain.Product) error
}

// Load reads and validates a catalog file.
func Load(path string) ([]domain.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a catalog document. Duplicate IDs are rejected.
func Decode(r io.Reader) ([]domain.Product, error) {
	var file File
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Validation("catalog: %v", err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, errors.Validation("catalog: %v", err)
	}

	seen := make(map[string]struct{}, len(file.Products))
	products := make([]domain.Product, 0, len(file.Products))
	for _, entry := range file.Products {
		if _, dup := seen[entry.ID]; dup {
			return nil, errors.Validation("catalog: duplicate product %q", entry.ID)
		}
		seen[entry.ID] = struct{}{}
		products = append(products, domain.Product(entry))
	}
	return products, nil
}

// Seed upserts every product, so that restarting with an edited file updates the catalog.
func Seed(ctx context.Context, store ProductWriter, products []domain.Product, log *slog.Logger) error {
	for _, product := range products {
		if err := store.UpsertProduct(ctx, product); err != nil {
			return fmt.Errorf("seed product %q: %w", product.ID, err)
		}
	}
	log.Info("Catalog seeded", "products", len(products))
	return nil
}

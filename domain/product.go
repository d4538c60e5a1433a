package domain

// Product is a read-mostly catalog entry. Chat and cart flows never mutate it.
type Product struct {
	ID          string
	Name        string
	Price       float64
	ImageURL    string
	Description string
}

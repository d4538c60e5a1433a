package search

import (
	"strconv"
	"strings"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Query represents the structured parameters of a message search.
// It decouples the raw client input from the index requirements.
type Query struct {
	RawInput string // The original text sent by the client
	Terms    string // The actual text to search in the index
	Limit    int
	Offset   int
}

// NewSearchQuery parses a raw string to extract command-line style arguments.
// Example: /find "invoice" --limit 5 --offset 10
func NewSearchQuery(input string) Query {
	query := Query{RawInput: input, Limit: DefaultLimit}

	parts := strings.Fields(input)
	var textTerms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		// Handle flags like --limit 5 or --offset 10
		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			key := strings.TrimPrefix(part, "--")
			if n, err := strconv.Atoi(parts[i+1]); err == nil && n >= 0 {
				switch key {
				case "limit":
					query.Limit = min(max(n, 1), MaxLimit)
				case "offset":
					query.Offset = n
				}
			}
			i++
			continue
		}

		// If it's not a flag or a command, it's a search term
		if !strings.HasPrefix(part, "/") {
			textTerms = append(textTerms, strings.Trim(part, `"`))
		}
	}

	query.Terms = strings.TrimSpace(strings.Join(textTerms, " "))
	return query
}

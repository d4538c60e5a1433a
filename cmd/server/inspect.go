package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mama165/sdk-go/database"
)

// StoreMapper renders group-cart badger keys in the debug inspector.
// Keys look like msg:{hex group}:{seq}, member:{hex group}:{user}, user:{id}.
func StoreMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	parts := strings.SplitN(key, ":", 3)
	row.Type = strings.ToUpper(parts[0])

	detail := parts[len(parts)-1]
	if len(parts) == 3 {
		if group, err := hex.DecodeString(parts[1]); err == nil {
			detail = fmt.Sprintf("[%s] %s", group, detail)
		}
	}

	var fields map[string]any
	if err := json.Unmarshal(val, &fields); err == nil {
		for _, name := range []string{"content", "name", "product_id"} {
			if v, ok := fields[name]; ok {
				detail = fmt.Sprintf("%s: %v", detail, v)
				break
			}
		}
	}
	row.Detail = detail
	return row
}

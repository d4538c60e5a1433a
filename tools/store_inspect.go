package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

// record holds the fields shared by every stored value worth showing.
type record struct {
	ID         any       `json:"id"`
	Name       string    `json:"name"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	ProductID  string    `json:"product_id"`
	AddedBy    string    `json:"added_by"`
	At         time.Time `json:"at"`
	AddedAt    time.Time `json:"added_at"`
	JoinedAt   time.Time `json:"joined_at"`
}

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	// Sequences are binary, start from the messages by default.
	prefix := flag.String("prefix", "msg:", "Prefix to scan: msg:, cart:, member:, user:, product:")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Group", "Time", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if strings.HasPrefix(key, "seq:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				var r record
				if err := json.Unmarshal(v, &r); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
					return nil
				}
				table.Append(toRow(key, r))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func toRow(key string, r record) []string {
	parts := strings.SplitN(key, ":", 3)
	kind := strings.ToUpper(parts[0])
	group := "-"
	if len(parts) == 3 {
		if decoded, err := hex.DecodeString(parts[1]); err == nil {
			group = string(decoded)
		}
	}

	var (
		at     time.Time
		detail string
	)
	switch kind {
	case "MSG":
		at, detail = r.At, fmt.Sprintf("%s: %s", r.SenderName, r.Content)
	case "CART":
		at, detail = r.AddedAt, fmt.Sprintf("%s (%s) by %s", r.Name, r.ProductID, r.AddedBy)
	case "MEMBER":
		at, detail = r.JoinedAt, parts[len(parts)-1]
	default:
		at, detail = r.JoinedAt, fmt.Sprintf("%v %s", r.ID, r.Name)
	}

	clock := "--:--:--"
	if !at.IsZero() {
		clock = at.UTC().Format("15:04:05")
	}
	return []string{key, kind, group, clock, detail}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}

package main

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreMapper(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		val    string
		typ    string
		detail string
	}{
		{
			name:   "message",
			key:    "msg:" + hex.EncodeToString([]byte("family")) + ":00000000000000000007",
			val:    `{"id":7,"content":"hello"}`,
			typ:    "MSG",
			detail: "[family] 00000000000000000007: hello",
		},
		{name: "user", key: "user:u1", val: `{"name":"Ana"}`, typ: "USER", detail: "u1: Ana"},
		{name: "sequence", key: "seq:msg", val: "\x00\x01", typ: "SEQ", detail: "msg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := StoreMapper(tt.key, []byte(tt.val))

			require.Equal(t, tt.typ, row.Type)
			require.Equal(t, tt.detail, row.Detail)
		})
	}
}

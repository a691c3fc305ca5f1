package stream

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, in string) []string {
	t.Helper()
	fr := newFrameReader(strings.NewReader(in))
	var out []string
	for {
		p, err := fr.Next()
		if err != nil {
			require.True(t, errors.Is(err, io.EOF), "unexpected error %v", err)
			return out
		}
		out = append(out, p)
	}
}

func TestFrameReader(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"single", "data: {\"type\":\"connected\"}\n\n", []string{`{"type":"connected"}`}},
		{"no space after colon", "data:abc\n\n", []string{"abc"}},
		{"multi line joined", "data: a\ndata: b\n\n", []string{"a\nb"}},
		{"crlf", "data: a\r\n\r\ndata: b\r\n\r\n", []string{"a", "b"}},
		{"comments and fields ignored", ": keepalive\nevent: progress\nid: 7\nretry: 1000\ndata: x\n\n", []string{"x"}},
		{"blank lines without data", "\n\n\ndata: y\n\n\n", []string{"y"}},
		{"unterminated frame dropped", "data: one\n\ndata: two\n", []string{"one"}},
		{"partial line dropped", "data: one\n\ndata: tw", []string{"one"}},
		{"empty data line", "data:\n\n", []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, readAll(t, tt.in))
		})
	}
}

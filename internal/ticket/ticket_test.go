package ticket_test

import (
	"strings"
	"testing"

	"github.com/beamspace/beam/internal/ticket"
	"github.com/stretchr/testify/assert"
)

var oracle = ticket.Ticket{
	Hash: strings.Repeat("ab", 32),
	Size: 10_000_000,
	Addr: "127.0.0.1:4545",
}

func TestRoundTrip(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		parsed, err := ticket.Parse(oracle.String())
		assert.Nil(t, err)
		assert.Equal(t, oracle, parsed)
	})
	t.Run("zero size", func(t *testing.T) {
		tk := oracle
		tk.Size = 0
		parsed, err := ticket.Parse(tk.String())
		assert.Nil(t, err)
		assert.Equal(t, tk, parsed)
	})
	t.Run("surrounding whitespace", func(t *testing.T) {
		parsed, err := ticket.Parse("  " + oracle.String() + "\n")
		assert.Nil(t, err)
		assert.Equal(t, oracle, parsed)
	})
}

func TestParse(t *testing.T) {
	t.Run("negative", func(t *testing.T) {
		cases := map[string]string{
			"empty":           "",
			"wrong prefix":    "blob" + strings.TrimPrefix(oracle.String(), "beam"),
			"not a ticket":    "not-a-ticket",
			"truncated":       oracle.String()[:len(oracle.String())/2],
			"non-decodable":   "beam!!!!",
			"prefix only":     "beam",
			"garbage body":    "beam" + strings.ToLower("MZXW6YTBOI"), // valid base32, not json
			"hash too short":  ticket.Ticket{Hash: "abcd", Size: 1, Addr: "a:1"}.String(),
			"hash not hex":    ticket.Ticket{Hash: strings.Repeat("zz", 32), Size: 1, Addr: "a:1"}.String(),
			"negative size":   ticket.Ticket{Hash: strings.Repeat("ab", 32), Size: -1, Addr: "a:1"}.String(),
			"missing address": ticket.Ticket{Hash: strings.Repeat("ab", 32), Size: 1}.String(),
		}
		for name, text := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := ticket.Parse(text)
				assert.NotNil(t, err)
				var parseErr *ticket.ParseError
				assert.ErrorAs(t, err, &parseErr)
				assert.Equal(t, text, parseErr.Text)
			})
		}
	})
}

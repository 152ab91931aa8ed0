// Package ticket implements the user-copyable ticket format that a provider
// hands out after a share and a fetcher redeems to locate the content.
package ticket

import (
	"encoding/base32"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Prefix marks a string as a beam ticket.
const Prefix = "beam"

// encoding is unpadded as tickets are rendered lowercase.
var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Ticket bundles everything a fetcher needs to locate and verify a payload:
// the content hash, the payload size and the provider address.
type Ticket struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
	Addr string `json:"addr"`
}

// String renders the ticket to its opaque text form.
func (t Ticket) String() string {
	b, err := json.Marshal(t)
	if err != nil {
		// Ticket only contains marshallable fields.
		panic(fmt.Sprintf("marshaling ticket: %v", err))
	}
	return Prefix + strings.ToLower(encoding.EncodeToString(b))
}

// ParseError is returned when ticket text cannot be decoded into a Ticket.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing ticket: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse decodes ticket text into a Ticket. It is pure and side-effect free;
// for any ticket t, Parse(t.String()) returns a ticket equal to t. All
// failures are reported as a *ParseError.
func Parse(text string) (Ticket, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, Prefix) {
		return Ticket{}, &ParseError{Text: text, Err: fmt.Errorf("missing %q prefix", Prefix)}
	}
	raw, err := encoding.DecodeString(strings.ToUpper(strings.TrimPrefix(trimmed, Prefix)))
	if err != nil {
		return Ticket{}, &ParseError{Text: text, Err: fmt.Errorf("decoding body: %w", err)}
	}
	var t Ticket
	if err := json.Unmarshal(raw, &t); err != nil {
		return Ticket{}, &ParseError{Text: text, Err: fmt.Errorf("unmarshaling body: %w", err)}
	}
	if err := t.validate(); err != nil {
		return Ticket{}, &ParseError{Text: text, Err: err}
	}
	return t, nil
}

func (t Ticket) validate() error {
	h, err := hex.DecodeString(t.Hash)
	if err != nil {
		return fmt.Errorf("decoding content hash: %w", err)
	}
	if len(h) != 32 {
		return fmt.Errorf("content hash is %d bytes, expected 32", len(h))
	}
	if t.Size < 0 {
		return fmt.Errorf("negative payload size %d", t.Size)
	}
	if len(t.Addr) == 0 {
		return errors.New("missing provider address")
	}
	return nil
}

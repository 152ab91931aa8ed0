// transfer.go specifies the necessary messaging needed for the beam transfer protocol.
package transfer

import (
	"fmt"
	"strings"
)

// MsgType specifies the message type for the messages in the transfer protocol.
type MsgType int

const (
	TransferError         MsgType = iota // An error has occurred in the transfer protocol
	ProviderPAKE                         // Provider starts the key exchange with its PAKE bytes
	FetcherPAKE                          // Fetcher continues the key exchange with its PAKE bytes
	ProviderSalt                         // Provider sends the session salt and payload size, completing the handshake
	FetcherRequestPayload                // Fetcher requests the payload from the provider
	ProviderPayloadSent                  // Provider announces that the entire payload has been transferred
	FetcherPayloadAck                    // Fetcher ACKs that it has received and verified the payload
	ProviderClosing                      // Provider announces that it is closing the connection
	FetcherClosingAck                    // Fetcher ACKs the closing of the connection
)

// Msg specifies a message in the transfer protocol.
type Msg struct {
	Type    MsgType `json:"type"`
	Payload Payload `json:"payload,omitempty"`
}

type Payload struct {
	PAKEBytes   []byte `json:"pake_bytes,omitempty"`
	Salt        []byte `json:"salt,omitempty"`
	PayloadSize int64  `json:"payload_size,omitempty"`
}

type Error struct {
	Expected []MsgType
	Got      MsgType
}

func (e Error) Error() string {
	var expected []string
	for _, typ := range e.Expected {
		expected = append(expected, typ.Name())
	}
	oneOfExpected := strings.Join(expected, ", ")
	return fmt.Sprintf("wrong message type, expected one of: (%s), got: (%s)", oneOfExpected, e.Got.Name())
}

func (t MsgType) Name() string {
	switch t {
	case TransferError:
		return "TransferError"
	case ProviderPAKE:
		return "ProviderPAKE"
	case FetcherPAKE:
		return "FetcherPAKE"
	case ProviderSalt:
		return "ProviderSalt"
	case FetcherRequestPayload:
		return "FetcherRequestPayload"
	case ProviderPayloadSent:
		return "ProviderPayloadSent"
	case FetcherPayloadAck:
		return "FetcherPayloadAck"
	case ProviderClosing:
		return "ProviderClosing"
	case FetcherClosingAck:
		return "FetcherClosingAck"
	default:
		return ""
	}
}

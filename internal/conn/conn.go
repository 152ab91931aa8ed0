package conn

import (
	"context"
	"encoding/json"

	"github.com/beamspace/beam/protocol/transfer"
	"nhooyr.io/websocket"
)

// Conn is an interface that wraps a network connection.
type Conn interface {
	Write(ctx context.Context, payload []byte) error
	Read(ctx context.Context) ([]byte, error)
}

// ------------------------------------------------ Conn implementations -----------------------------------------------

// WS is a wrapper around a websocket connection.
type WS struct {
	Conn *websocket.Conn
}

func (ws *WS) Write(ctx context.Context, payload []byte) error {
	return ws.Conn.Write(ctx, websocket.MessageBinary, payload)
}

func (ws *WS) Read(ctx context.Context) ([]byte, error) {
	_, payload, err := ws.Conn.Read(ctx)
	return payload, err
}

// --------------------------------------------------- Handshake Conn --------------------------------------------------

// Handshake specifies an unencrypted connection used during the key
// exchange, before a Transfer connection can be resolved.
type Handshake struct {
	Conn Conn
}

// WriteMsg writes a transfer message to the underlying connection.
func (h Handshake) WriteMsg(ctx context.Context, msg transfer.Msg) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.Conn.Write(ctx, payload)
}

// ReadMsg reads a transfer message from the underlying connection, and
// errors if it does not match the expected type.
func (h Handshake) ReadMsg(ctx context.Context, expected ...transfer.MsgType) (transfer.Msg, error) {
	b, err := h.Conn.Read(ctx)
	if err != nil {
		return transfer.Msg{}, err
	}
	var msg transfer.Msg
	if err := json.Unmarshal(b, &msg); err != nil {
		return transfer.Msg{}, err
	}
	if len(expected) != 0 && expected[0] != msg.Type {
		return transfer.Msg{}, transfer.Error{Expected: expected, Got: msg.Type}
	}
	return msg, nil
}

// ---------------------------------------------------- Transfer Conn --------------------------------------------------

// Transfer specifies an encrypted connection safe to transfer a payload over.
type Transfer struct {
	Conn  Conn
	crypt crypt
}

// TransferFromSession returns a secure connection using the provided session
// key and salt.
func TransferFromSession(conn Conn, sessionkey, salt []byte) Transfer {
	return Transfer{
		Conn:  conn,
		crypt: NewCrypt(sessionkey, salt),
	}
}

// TransferFromKey returns a secure connection using the provided cryptographic key.
func TransferFromKey(conn Conn, key []byte) Transfer {
	return Transfer{
		Conn:  conn,
		crypt: crypt{Key: key},
	}
}

// Key returns the cryptographic key associated with this connection.
func (tc Transfer) Key() []byte {
	return tc.crypt.Key
}

// WriteMsg encrypts and writes the specified transfer message to the underlying connection.
func (tc Transfer) WriteMsg(ctx context.Context, msg transfer.Msg) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return tc.WriteRaw(ctx, b)
}

// ReadMsg reads and decrypts a transfer message from the underlying
// connection, and errors if it does not match the expected type.
func (tc Transfer) ReadMsg(ctx context.Context, expected ...transfer.MsgType) (transfer.Msg, error) {
	dec, err := tc.ReadRaw(ctx)
	if err != nil {
		return transfer.Msg{}, err
	}
	var msg transfer.Msg
	if err := json.Unmarshal(dec, &msg); err != nil {
		return transfer.Msg{}, err
	}
	if len(expected) != 0 && expected[0] != msg.Type {
		return transfer.Msg{}, transfer.Error{Expected: expected, Got: msg.Type}
	}
	return msg, nil
}

// WriteRaw encrypts and writes the specified bytes to the underlying connection.
func (tc Transfer) WriteRaw(ctx context.Context, b []byte) error {
	enc, err := tc.crypt.Encrypt(b)
	if err != nil {
		return err
	}
	return tc.Conn.Write(ctx, enc)
}

// ReadRaw reads and decrypts bytes from the underlying connection.
func (tc Transfer) ReadRaw(ctx context.Context) ([]byte, error) {
	b, err := tc.Conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return tc.crypt.Decrypt(b)
}

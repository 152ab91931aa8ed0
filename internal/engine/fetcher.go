package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/beamspace/beam/internal/archive"
	"github.com/beamspace/beam/internal/conn"
	"github.com/beamspace/beam/internal/progress"
	"github.com/beamspace/beam/internal/ticket"
	"github.com/beamspace/beam/protocol/transfer"
	"github.com/schollz/pake/v3"
	"nhooyr.io/websocket"
)

// Fetch redeems the ticket against its provider, verifies the payload hash
// and unpacks the content into dest. Progress events are emitted per chunk,
// followed by a terminal Done marker.
func (b *Beam) Fetch(ctx context.Context, t ticket.Ticket, dest string, events chan<- progress.Event) error {
	events <- progress.Event{Type: progress.DeclaredSize, Bytes: t.Size}

	ws, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/beam", t.Addr), nil)
	if err != nil {
		return fmt.Errorf("dialing provider: %w", err)
	}
	c := &conn.WS{Conn: ws}

	tc, err := secureConnection(ctx, c, t)
	if err != nil {
		ws.Close(websocket.StatusInternalError, "handshake failed")
		return fmt.Errorf("securing connection: %w", err)
	}

	payload, err := receivePayload(ctx, tc, t, events)
	if err != nil {
		ws.Close(websocket.StatusInternalError, "transfer failed")
		return err
	}
	defer payload.Close()
	defer archive.RemoveTemporaryFiles(archive.RECEIVE_TEMP_FILE_NAME_PREFIX)

	// Closing handshake.
	if err := tc.WriteMsg(ctx, transfer.Msg{Type: transfer.FetcherPayloadAck}); err != nil {
		return fmt.Errorf("acking payload: %w", err)
	}
	if _, err := tc.ReadMsg(ctx, transfer.ProviderClosing); err != nil {
		return fmt.Errorf("awaiting provider close: %w", err)
	}
	if err := tc.WriteMsg(ctx, transfer.Msg{Type: transfer.FetcherClosingAck}); err != nil {
		return fmt.Errorf("acking provider close: %w", err)
	}
	ws.Close(websocket.StatusNormalClosure, "transfer completed")

	events <- progress.Event{Type: progress.Done}

	if err := b.unpackPayload(payload, dest); err != nil {
		return fmt.Errorf("unpacking payload: %w", err)
	}
	return nil
}

// secureConnection performs the fetcher side of the PAKE handshake, keyed on
// the content hash carried by the ticket.
func secureConnection(ctx context.Context, c conn.Conn, t ticket.Ticket) (conn.Transfer, error) {
	hc := conn.Handshake{Conn: c}

	msg, err := hc.ReadMsg(ctx, transfer.ProviderPAKE)
	if err != nil {
		return conn.Transfer{}, err
	}

	pk, err := pake.InitCurve([]byte(t.Hash), 1, "p256")
	if err != nil {
		return conn.Transfer{}, err
	}
	if err := pk.Update(msg.Payload.PAKEBytes); err != nil {
		return conn.Transfer{}, err
	}

	if err := hc.WriteMsg(ctx, transfer.Msg{
		Type:    transfer.FetcherPAKE,
		Payload: transfer.Payload{PAKEBytes: pk.Bytes()},
	}); err != nil {
		return conn.Transfer{}, err
	}

	msg, err = hc.ReadMsg(ctx, transfer.ProviderSalt)
	if err != nil {
		return conn.Transfer{}, err
	}
	session, err := pk.SessionKey()
	if err != nil {
		return conn.Transfer{}, err
	}
	return conn.TransferFromSession(c, session, msg.Payload.Salt), nil
}

// receivePayload requests the payload and streams it into a temporary file,
// verifying the content hash against the ticket.
func receivePayload(ctx context.Context, tc conn.Transfer, t ticket.Ticket, events chan<- progress.Event) (*os.File, error) {
	tempFile, err := os.CreateTemp(os.TempDir(), archive.RECEIVE_TEMP_FILE_NAME_PREFIX)
	if err != nil {
		return nil, fmt.Errorf("creating receive file: %w", err)
	}

	if err := tc.WriteMsg(ctx, transfer.Msg{Type: transfer.FetcherRequestPayload}); err != nil {
		tempFile.Close()
		return nil, fmt.Errorf("requesting payload: %w", err)
	}

	h := sha256.New()
	for {
		b, err := tc.ReadRaw(ctx)
		if err != nil {
			tempFile.Close()
			return nil, fmt.Errorf("reading payload chunk: %w", err)
		}

		var msg transfer.Msg
		if err := json.Unmarshal(b, &msg); err == nil && msg.Type != 0 {
			if msg.Type != transfer.ProviderPayloadSent {
				tempFile.Close()
				return nil, transfer.Error{Expected: []transfer.MsgType{transfer.ProviderPayloadSent}, Got: msg.Type}
			}
			break
		}

		n, err := tempFile.Write(b)
		if err != nil {
			tempFile.Close()
			return nil, fmt.Errorf("writing payload chunk: %w", err)
		}
		h.Write(b[:n])
		events <- progress.Event{Type: progress.Processed, Bytes: int64(n)}
	}

	if sum := hex.EncodeToString(h.Sum(nil)); sum != t.Hash {
		tempFile.Close()
		return nil, fmt.Errorf("content hash mismatch: got %s, ticket says %s", sum, t.Hash)
	}

	if _, err := tempFile.Seek(0, io.SeekStart); err != nil {
		tempFile.Close()
		return nil, err
	}
	return tempFile, nil
}

// unpackPayload unpacks the received archive into the destination directory,
// consulting the overwrite prompt for files that already exist.
func (b *Beam) unpackPayload(payload *os.File, dest string) error {
	unpacker, err := archive.NewUnpacker(dest, b.overwritePrompt != nil, payload)
	if err != nil {
		return err
	}
	defer unpacker.Close()
	for {
		committer, err := unpacker.Unpack()
		switch {
		case err == io.EOF:
			return nil
		case err == archive.ErrUnpackFileExists:
			overwrite, err := b.overwritePrompt(committer.FileName())
			if err != nil {
				return err
			}
			if !overwrite {
				continue
			}
		case err != nil:
			return err
		}
		if _, err := committer.Commit(); err != nil {
			return err
		}
	}
}

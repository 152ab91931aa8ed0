package engine

import (
	"context"
	crypto_rand "crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/beamspace/beam/internal/archive"
	"github.com/beamspace/beam/internal/conn"
	"github.com/beamspace/beam/internal/logger"
	"github.com/beamspace/beam/internal/progress"
	"github.com/beamspace/beam/internal/ticket"
	"github.com/beamspace/beam/protocol/transfer"
	"github.com/gorilla/mux"
	"github.com/schollz/pake/v3"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Provide packs and hashes the file at path, then starts serving it on a
// local websocket endpoint. Import progress (declared size, then processed
// bytes while hashing) is emitted on the events channel. The returned ticket
// stays redeemable until a new Provide supersedes it or the engine is closed.
func (b *Beam) Provide(ctx context.Context, path string, events chan<- progress.Event) (ticket.Ticket, error) {
	files, err := archive.Open([]string{path})
	if err != nil {
		return ticket.Ticket{}, fmt.Errorf("opening source: %w", err)
	}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	payload, payloadSize, err := archive.Pack(files)
	if err != nil {
		return ticket.Ticket{}, fmt.Errorf("packing source: %w", err)
	}

	events <- progress.Event{Type: progress.DeclaredSize, Bytes: payloadSize}

	hash, err := hashPayload(ctx, payload, events)
	if err != nil {
		payload.Close()
		return ticket.Ticket{}, fmt.Errorf("hashing payload: %w", err)
	}

	p, err := newProvider(b.logger, b.listenAddr, payload, payloadSize, hash)
	if err != nil {
		payload.Close()
		return ticket.Ticket{}, fmt.Errorf("starting provider: %w", err)
	}
	b.swapProvider(p)

	return ticket.Ticket{
		Hash: hash,
		Size: payloadSize,
		Addr: p.addr,
	}, nil
}

// hashPayload computes the payload hash, reporting processed bytes per chunk.
func hashPayload(ctx context.Context, payload *os.File, events chan<- progress.Event) (string, error) {
	h := sha256.New()
	buf := make([]byte, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := payload.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			events <- progress.Event{Type: progress.Processed, Bytes: int64(n)}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	if _, err := payload.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// provider serves one packed payload to any number of fetchers.
type provider struct {
	addr        string
	payload     *os.File
	payloadSize int64
	hash        string

	httpServer *http.Server
	logger     *zap.Logger
}

func newProvider(lgr *zap.Logger, listenAddr string, payload *os.File, payloadSize int64, hash string) (*provider, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	p := &provider{
		addr:        ln.Addr().String(),
		payload:     payload,
		payloadSize: payloadSize,
		hash:        hash,
		logger:      lgr,
		httpServer: &http.Server{
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Handler:      router,
		},
	}
	p.routes(router)

	go func() {
		if err := p.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			lgr.Error("serving provider", zap.Error(err))
		}
	}()
	return p, nil
}

func (p *provider) routes(router *mux.Router) {
	router.Use(logger.Middleware(p.logger))
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/beam", conn.Middleware()(http.HandlerFunc(p.handleTransfer)))
}

func (p *provider) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.httpServer.Shutdown(ctx)
	p.payload.Close()
	archive.RemoveTemporaryFiles(archive.SEND_TEMP_FILE_NAME_PREFIX)
	return err
}

// handleTransfer performs the provider side of the transfer sequence on an
// upgraded websocket connection.
func (p *provider) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lgr, err := logger.FromContext(ctx)
	if err != nil {
		return
	}
	c, err := conn.FromContext(ctx)
	if err != nil {
		lgr.Error("getting Conn from request context", zap.Error(err))
		return
	}
	lgr.Info("fetcher connected")

	ws, _ := c.(*conn.WS)
	closeWith := func(status websocket.StatusCode, reason string) {
		if ws != nil {
			ws.Conn.Close(status, reason)
		}
	}

	tc, err := p.secureConnection(ctx, c)
	if err != nil {
		lgr.Error("securing connection", zap.Error(err))
		closeWith(websocket.StatusInternalError, "handshake failed")
		return
	}

	if err := p.transfer(ctx, tc); err != nil {
		lgr.Error("transferring payload", zap.Error(err))
		closeWith(websocket.StatusInternalError, "transfer failed")
		return
	}
	lgr.Info("transfer completed")
	closeWith(websocket.StatusNormalClosure, "transfer completed")
}

// secureConnection does the PAKE handshake, keyed on the content hash that
// both sides know, to resolve an encrypted connection.
func (p *provider) secureConnection(ctx context.Context, c conn.Conn) (conn.Transfer, error) {
	hc := conn.Handshake{Conn: c}

	pk, err := pake.InitCurve([]byte(p.hash), 0, "p256")
	if err != nil {
		return conn.Transfer{}, err
	}

	if err := hc.WriteMsg(ctx, transfer.Msg{
		Type:    transfer.ProviderPAKE,
		Payload: transfer.Payload{PAKEBytes: pk.Bytes()},
	}); err != nil {
		return conn.Transfer{}, err
	}

	msg, err := hc.ReadMsg(ctx, transfer.FetcherPAKE)
	if err != nil {
		return conn.Transfer{}, err
	}
	if err := pk.Update(msg.Payload.PAKEBytes); err != nil {
		return conn.Transfer{}, err
	}

	salt := make([]byte, 8)
	if _, err := crypto_rand.Read(salt); err != nil {
		return conn.Transfer{}, err
	}
	session, err := pk.SessionKey()
	if err != nil {
		return conn.Transfer{}, err
	}

	if err := hc.WriteMsg(ctx, transfer.Msg{
		Type: transfer.ProviderSalt,
		Payload: transfer.Payload{
			Salt:        salt,
			PayloadSize: p.payloadSize,
		},
	}); err != nil {
		return conn.Transfer{}, err
	}

	return conn.TransferFromSession(c, session, salt), nil
}

// transfer performs the payload transfer sequence.
func (p *provider) transfer(ctx context.Context, tc conn.Transfer) error {
	if _, err := tc.ReadMsg(ctx, transfer.FetcherRequestPayload); err != nil {
		return err
	}

	// Section reader keeps concurrent fetchers from disturbing each
	// other's read offsets.
	payload := io.NewSectionReader(p.payload, 0, p.payloadSize)
	buffer := make([]byte, chunkSize(p.payloadSize))
	for {
		n, err := payload.Read(buffer)
		if n > 0 {
			if err := tc.WriteRaw(ctx, buffer[:n]); err != nil {
				return err
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	if err := tc.WriteMsg(ctx, transfer.Msg{Type: transfer.ProviderPayloadSent}); err != nil {
		return err
	}
	if _, err := tc.ReadMsg(ctx, transfer.FetcherPayloadAck); err != nil {
		return err
	}
	if err := tc.WriteMsg(ctx, transfer.Msg{Type: transfer.ProviderClosing}); err != nil {
		return err
	}
	_, err := tc.ReadMsg(ctx, transfer.FetcherClosingAck)
	return err
}

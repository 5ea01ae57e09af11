package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/handshape-backend/internal/lobby"
	"github.com/DoyleJ11/handshape-backend/internal/types"
	wire "github.com/DoyleJ11/handshape-backend/pkg/types"
)

var errDropped = errors.New("connection dropped by the lobby")

type Options struct {
	OriginPatterns []string
	PingInterval   time.Duration // 0 disables pings
	WriteTimeout   time.Duration
	OutboxSize     int
	ReadLimit      int64 // captured photos arrive inline
	Logger         *zap.Logger
}

func (o *Options) defaults() {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = 16
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 8 << 20
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

func Handler(lb *lobby.Lobby, opts Options) http.HandlerFunc {
	opts.defaults()
	log := opts.Logger.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(opts.ReadLimit)

		clientID := uuid.NewString()
		out := make(chan wire.Message, opts.OutboxSize)
		if err := register(r.Context(), lb, clientID, out); err != nil {
			log.Warn("register failed", zap.String("client_id", clientID), zap.Error(err))
			_ = lb.Send(context.Background(), lobby.Disconnect{ClientID: clientID})
			_ = conn.Close(websocket.StatusTryAgainLater, "server unavailable")
			return
		}
		log.Info("client connected", zap.String("client_id", clientID), zap.String("remote", r.RemoteAddr))

		g, ctx := errgroup.WithContext(r.Context())

		// Writer goroutine
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case msg, ok := <-out:
					if !ok {
						return errDropped
					}
					wctx, cancel := context.WithTimeout(ctx, opts.WriteTimeout)
					err := wsjson.Write(wctx, conn, msg)
					cancel()
					if err != nil {
						return err
					}
				}
			}
		})

		if opts.PingInterval > 0 {
			g.Go(func() error {
				t := time.NewTicker(opts.PingInterval)
				defer t.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-t.C:
						pctx, cancel := context.WithTimeout(ctx, opts.PingInterval)
						err := conn.Ping(pctx)
						cancel()
						if err != nil {
							return err
						}
						lb.Touch(clientID)
					}
				}
			})
		}

		// Reader loop
		g.Go(func() error {
			for {
				_, data, err := conn.Read(ctx)
				if err != nil {
					return err
				}
				lb.Touch(clientID)

				in, err := types.Decode(data)
				if err != nil {
					lb.Reject(clientID, err)
					continue
				}
				if err := lb.Send(ctx, lobby.FromClient{ClientID: clientID, In: in}); err != nil {
					return err
				}
			}
		})

		err = g.Wait()

		_ = lb.Send(context.Background(), lobby.Disconnect{ClientID: clientID})

		switch {
		case errors.Is(err, errDropped):
			_ = conn.Close(websocket.StatusPolicyViolation, "connection dropped")
		case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
			websocket.CloseStatus(err) == websocket.StatusGoingAway:
			// client went away cleanly
		default:
			log.Debug("connection ended", zap.String("client_id", clientID), zap.Error(err))
		}
		log.Info("client disconnected", zap.String("client_id", clientID))
	}
}

func register(ctx context.Context, lb *lobby.Lobby, clientID string, out chan wire.Message) error {
	reply := make(chan error, 1)
	if err := lb.Send(ctx, lobby.Connect{ClientID: clientID, Outbox: out, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-lb.Done():
		return lobby.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

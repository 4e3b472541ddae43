package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/curaai/internal/engine"
	"github.com/MrWong99/curaai/internal/observe"
	"github.com/MrWong99/curaai/internal/segment"
	"github.com/MrWong99/curaai/pkg/audio/playback"
)

// SessionHeader carries the session identifier back to clients.
const SessionHeader = observe.SessionHeader

// wsSink writes synthesized replies back to the client as binary messages.
type wsSink struct {
	conn *websocket.Conn
}

var _ playback.Sink = (*wsSink)(nil)

func (s *wsSink) SendAudio(ctx context.Context, wav []byte) error {
	return s.conn.Write(ctx, websocket.MessageBinary, wav)
}

// wsSource returns the binary messages of conn. Text messages are skipped.
func wsSource(conn *websocket.Conn) segment.Source {
	return segment.SourceFunc(func(ctx context.Context) ([]byte, error) {
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return nil, err
			}
			if typ == websocket.MessageBinary {
				return data, nil
			}
		}
	})
}

func (s *Server) serveAudio(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(SessionHeader, s.sessions.Resolve(id))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		// Accept already wrote the HTTP error.
		s.logger.Warn("server: websocket upgrade failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(s.readLimit)

	ctx := observe.WithSession(r.Context(), s.sessions.Resolve(id))
	log := observe.Enrich(ctx, s.logger)
	if s.metrics != nil {
		defer s.metrics.ConnectionOpened(ctx)()
	}

	ledger, release := s.sessions.Acquire(id)
	defer release()

	log.Info("server: audio connection opened", "remote", r.RemoteAddr)
	ctx = playback.WithSink(ctx, &wsSink{conn: conn})
	seg := segment.New(segment.WithIdleTimeout(s.idleTimeout), segment.WithLogger(log))
	err = seg.Run(ctx, wsSource(conn), s.engine.Handler(ledger))

	switch {
	case errors.Is(err, engine.ErrConversationEnded):
		log.Info("server: conversation ended", "turns", ledger.Len())
		_ = conn.Close(websocket.StatusNormalClosure, "conversation ended")
	case errors.Is(err, segment.ErrConnectionClosed):
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			log.Debug("server: client closed connection", "err", err)
		default:
			log.Warn("server: connection lost", "err", err)
		}
	case ctx.Err() != nil:
		log.Debug("server: connection cancelled", "err", ctx.Err())
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	default:
		log.Error("server: audio loop failed", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
	}
}

package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/PatGB5/codeforces-submission-bot/internal/notify"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = (feedPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleFeedWS streams the notifications of one session over a websocket
func (s *Server) handleFeedWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusNotImplemented, "feed_disabled", "live feed is not enabled")
		return
	}

	sess, err := s.sessions.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		respondSessionError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(sess.ChatID)
	defer sub.Close()

	slog.Info("feed websocket connected", "session_id", sess.ID, "chat_id", sess.ChatID)

	if err := s.sendFeedMessage(conn, notify.FeedMessage{
		Type:   "connected",
		ChatID: sess.ChatID,
		Text:   "Following " + sess.Handle,
		SentAt: time.Now().UTC(),
	}); err != nil {
		return
	}

	// Reader only handles control frames and detects disconnects
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(feedPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(feedPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			slog.Info("feed websocket disconnected", "session_id", sess.ID)
			return
		case msg, ok := <-sub.C:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(feedWriteWait))
				return
			}
			if err := s.sendFeedMessage(conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendFeedMessage(conn *websocket.Conn, msg notify.FeedMessage) error {
	conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		slog.Debug("failed to send feed message", "error", err)
		return err
	}
	return nil
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"petpals/internal/identity"
	"petpals/internal/models"
	"petpals/internal/observability"
	"petpals/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	streamWriteWait    = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

// streamEvent is the envelope written to live-stream clients. Every data
// event carries the complete current list, never a delta.
type streamEvent struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

func errorEvent(err error) streamEvent {
	ev := streamEvent{Type: "error", Error: "stream unavailable"}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		ev.Error = appErr.Message
		ev.Code = appErr.Code
	}
	return ev
}

// requireUpgrade rejects plain HTTP requests to stream endpoints.
func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// streamSession ties one WebSocket connection to a context that is cancelled
// when the client goes away.
type streamSession struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	userID string
	stream string
	topic  string
	logger *observability.StreamLogger
}

func openStream(conn *websocket.Conn, stream, topic string) *streamSession {
	userID, _ := conn.Locals("userID").(string)
	ctx, cancel := context.WithCancel(identity.WithUserID(context.Background(), userID))
	sess := &streamSession{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		userID: userID,
		stream: stream,
		topic:  topic,
		logger: observability.NewStreamLogger(stream),
	}

	// Clients only ever send close frames; any read error means they are gone.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sess.logger.LogConnect(ctx, userID, topic)
	observability.RecordWebSocketEvent(stream + "_connect")
	return sess
}

func (s *streamSession) write(ev streamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// fail reports err to the client and ends the session.
func (s *streamSession) fail(err error) {
	s.logger.LogError(s.ctx, s.userID, s.topic, err)
	_ = s.write(errorEvent(err))
}

func (s *streamSession) close(reason string) {
	s.cancel()
	s.logger.LogDisconnect(s.ctx, s.userID, s.topic, reason)
	observability.RecordWebSocketEvent(s.stream + "_disconnect")
}

// pump forwards updates until the client disconnects, the source closes or
// a write fails. It returns the reason the stream ended.
func pump[T any](s *streamSession, updates <-chan T, encode func(T) streamEvent) string {
	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return "client_closed"
		case <-ping.C:
			deadline := time.Now().Add(streamWriteWait)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return "ping_failed"
			}
		case u, ok := <-updates:
			if !ok {
				return "source_closed"
			}
			ev := encode(u)
			if err := s.write(ev); err != nil {
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					observability.WebSocketBackpressureDrops.WithLabelValues(s.stream, "write_timeout").Inc()
					return "slow_client"
				}
				return "write_failed"
			}
			observability.RecordWebSocketEvent(s.stream + "_" + ev.Type)
		}
	}
}

// FeedStream handles GET /ws/feed. Each message is the full feed, sent once
// on connect and again whenever posts change.
func (s *Server) FeedStream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		sess := openStream(conn, "feed", "posts")
		reason := "subscribe_failed"
		defer func() { sess.close(reason) }()

		sub, err := s.services.Feed.SubscribeFeed(sess.ctx)
		if err != nil {
			sess.fail(err)
			return
		}
		defer sub.Cancel()

		reason = pump(sess, sub.Updates(), func(u service.FeedUpdate) streamEvent {
			if u.Err != nil {
				return errorEvent(u.Err)
			}
			return streamEvent{Type: "feed", Data: u.Entries}
		})
	})
}

// CommentStream handles GET /ws/posts/:id/comments. Each message is the
// post's full comment list, oldest first.
func (s *Server) CommentStream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		postID := conn.Params("id")
		sess := openStream(conn, "comments", postID)
		reason := "subscribe_failed"
		defer func() { sess.close(reason) }()

		if _, err := s.services.Post.GetPost(sess.ctx, postID); err != nil {
			sess.fail(err)
			return
		}
		sub, err := s.services.Comment.SubscribeComments(sess.ctx, postID)
		if err != nil {
			sess.fail(err)
			return
		}
		defer sub.Cancel()

		reason = pump(sess, sub.Updates(), func(u service.CommentUpdate) streamEvent {
			if u.Err != nil {
				return errorEvent(u.Err)
			}
			return streamEvent{Type: "comments", Data: u.Comments}
		})
	})
}

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

// Event is a realtime notification as received by the client. Data keeps the
// raw payload; its shape depends on Type.
type Event struct {
	Type           chat.EventType  `json:"type"`
	ConversationID string          `json:"conversationId"`
	Data           json.RawMessage `json:"data,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Events opens the user's websocket event stream. The returned channel is
// closed when ctx ends or the connection drops.
func (s *Session) Events(ctx context.Context) (<-chan Event, error) {
	target := s.c.baseURL + s.path("events")
	switch {
	case strings.HasPrefix(target, "https://"):
		target = "wss://" + strings.TrimPrefix(target, "https://")
	case strings.HasPrefix(target, "http://"):
		target = "ws://" + strings.TrimPrefix(target, "http://")
	}

	probe, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build events request: %w", err)
	}
	s.cred.Authorize(probe)

	dialCtx := ctx
	if s.c.timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.c.timeout)
		defer cancel()
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, target, probe.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("open events stream: %w", statusError(resp))
		}
		return nil, transportError(dialCtx, err)
	}

	out := make(chan Event, 16)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					s.c.logger.Debug("events_stream_closed", zap.Error(err))
				}
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

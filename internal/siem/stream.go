package siem

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"alertguard/internal/alert"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	readLimit    = 512 * 1024
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// Handler processes one alert from the feed.
type Handler func(rec alert.Record) error

// StreamMetrics defines the metrics methods the stream reports to.
type StreamMetrics interface {
	WSReconnectsInc()
	ErrorsInc()
}

// Stream subscribes to the SIEM's live alert feed over WebSocket.
type Stream struct {
	url     string
	token   string
	metrics StreamMetrics
}

// NewStream creates an alert feed subscriber. metrics may be nil.
func NewStream(url, token string, metrics StreamMetrics) *Stream {
	return &Stream{url: url, token: token, metrics: metrics}
}

// Run consumes the feed until ctx is canceled, reconnecting with exponential
// backoff on failure. Handler errors are logged, not fatal: one bad alert
// must not drop the connection.
func (s *Stream) Run(ctx context.Context, ping time.Duration, handle Handler) error {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.runOnce(ctx, ping, handle); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Err(err).Dur("backoff", backoff).Msg("alert feed connection failed, reconnecting")
				if s.metrics != nil {
					s.metrics.WSReconnectsInc()
				}

				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return ctx.Err()
				}

				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			backoff = time.Second
		}
	}
}

func (s *Stream) runOnce(ctx context.Context, ping time.Duration, handle Handler) error {
	log.Info().Str("url", s.url).Msg("connecting to alert feed")

	header := map[string][]string{}
	if s.token != "" {
		header["Authorization"] = []string{"Bearer " + s.token}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer func() {
		conn.Close()
		log.Debug().Msg("alert feed connection closed")
	}()

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "channel": "alerts"}); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	pingTicker := time.NewTicker(ping)
	defer pingTicker.Stop()

	msgs := make(chan []byte)
	readErrs := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErrs <- err
				return
			}
			select {
			case msgs <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
		case err := <-readErrs:
			return fmt.Errorf("read failed: %w", err)
		case data := <-msgs:
			conn.SetReadDeadline(time.Now().Add(readTimeout))
			var rec alert.Record
			if err := json.Unmarshal(data, &rec); err != nil {
				log.Warn().Err(err).Msg("dropping malformed alert feed message")
				if s.metrics != nil {
					s.metrics.ErrorsInc()
				}
				continue
			}
			if len(rec) == 0 {
				continue
			}
			if err := handle(rec); err != nil {
				log.Error().Err(err).Msg("alert handler failed")
				if s.metrics != nil {
					s.metrics.ErrorsInc()
				}
			}
		}
	}
}

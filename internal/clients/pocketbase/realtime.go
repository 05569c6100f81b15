package pocketbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/r3labs/sse/v2"
)

const (
	connectEvent   = "PB_CONNECT"
	reconnectDelay = 2 * time.Second
)

// Event is one realtime message. Action is "create", "update", "delete",
// or "reconnect" after the stream was re-established and events may have been missed.
type Event struct {
	Action string `json:"action"`
	Record Record `json:"record"`
}

// Topic builds a wildcard subscription on collection, narrowed by a filter.
func Topic(collection, filter string) string {
	topic := collection + "/*"
	if filter == "" {
		return topic
	}
	options, _ := json.Marshal(map[string]any{"query": map[string]string{"filter": filter}})
	return topic + "?options=" + url.QueryEscape(string(options))
}

// Subscribe opens a realtime stream for a single topic and calls fn for each event.
// The stream reconnects on its own until the returned function is called.
func (c *Client) Subscribe(ctx context.Context, topic string, fn func(Event)) (func(), error) {
	const op = "clients.pocketbase.Subscribe"

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	var connected atomic.Bool

	stream := sse.NewClient(c.baseURL + "/api/realtime")
	stream.Connection = c.stream
	stream.ReconnectStrategy = noRetry{}
	stream.ResponseValidator = func(_ *sse.Client, resp *http.Response) error {
		if resp.StatusCode == http.StatusOK {
			return nil
		}
		resp.Body.Close()
		return &APIError{Status: resp.StatusCode, Message: "realtime connect failed"}
	}

	ready := make(chan error, 1)
	done := make(chan error, 1)

	handle := func(msg *sse.Event) {
		switch string(msg.Event) {
		case connectEvent:
			if !connected.Load() {
				err := c.register(ctx, topic, msg)
				connected.Store(err == nil)
				select {
				case ready <- err:
				default:
				}
				return
			}
			if err := c.register(streamCtx, topic, msg); err != nil {
				c.log.Warn("realtime resubscribe failed", slog.String("operation", op), slog.String("error", err.Error()))
				return
			}
			fn(Event{Action: "reconnect"})
		case topic:
			var ev Event
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				c.log.Warn("bad realtime message", slog.String("operation", op), slog.String("error", err.Error()))
				return
			}
			fn(ev)
		}
	}

	go func() {
		for {
			err := stream.SubscribeRawWithContext(streamCtx, handle)
			if !connected.Load() {
				done <- err
				return
			}
			if streamCtx.Err() != nil {
				return
			}

			log := c.log.With(slog.String("operation", op), slog.String("topic", topic))
			if err != nil {
				log = log.With(slog.String("error", err.Error()))
			}
			log.Warn("realtime stream closed, reconnecting")

			select {
			case <-streamCtx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	case err := <-done:
		cancel()
		if err == nil {
			err = errors.New("realtime stream did not send a client id")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	case <-ctx.Done():
		cancel()
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	}

	return cancel, nil
}

// register binds the topic to the client id announced by PB_CONNECT.
// PocketBase hands out a new id on every connection.
func (c *Client) register(ctx context.Context, topic string, msg *sse.Event) error {
	var payload struct {
		ClientID string `json:"clientId"`
	}
	clientID := string(msg.ID)
	if err := json.Unmarshal(msg.Data, &payload); err == nil && payload.ClientID != "" {
		clientID = payload.ClientID
	}
	if clientID == "" {
		return errors.New("realtime stream did not send a client id")
	}

	body := map[string]any{"clientId": clientID, "subscriptions": []string{topic}}
	return c.do(ctx, http.MethodPost, "/api/realtime", nil, body, nil)
}

// noRetry leaves reconnects to Subscribe, which has to resubscribe
// under a fresh client id each time.
type noRetry struct{}

// stopRetry is the backoff package's Stop value.
const stopRetry time.Duration = -1

func (noRetry) NextBackOff() time.Duration { return stopRetry }

func (noRetry) Reset() {}

package remote

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/pkg/backend/api"
	"github.com/grovetools/rulesync/pkg/models"
)

// SubscribeConfigChanges implements backend.Subscriber.
func (c *Client) SubscribeConfigChanges(ctx context.Context) (<-chan models.ConfigChange, error) {
	return subscribe[models.ConfigChange](ctx, c, api.TopicConfig)
}

// SubscribeOperations implements backend.Subscriber.
func (c *Client) SubscribeOperations(ctx context.Context) (<-chan models.OperationProgressEvent, error) {
	return subscribe[models.OperationProgressEvent](ctx, c, api.TopicOperations)
}

// SubscribeJobs implements backend.Subscriber.
func (c *Client) SubscribeJobs(ctx context.Context) (<-chan models.JobEvent, error) {
	return subscribe[models.JobEvent](ctx, c, api.TopicJobs)
}

// subscribe opens the websocket for topic. The returned channel is closed
// when ctx is done or the connection drops.
func subscribe[T any](ctx context.Context, c *Client, topic string) (<-chan T, error) {
	conn, resp, err := c.dialer.DialContext(ctx, "ws://unix"+api.PathEvents+"/"+topic, nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			defer resp.Body.Close()
			return nil, api.DecodeError(resp)
		}
		return nil, errors.StreamDisconnected(topic, err)
	}

	ch := make(chan T, 64)
	done := make(chan struct{})

	// Closing the connection unblocks the reader
	go func() {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteMessage(websocket.CloseMessage, msg)
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(ch)
		defer close(done)
		defer conn.Close()
		for {
			var ev T
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					c.logger.WithError(err).WithField("topic", topic).Debug("Stream closed")
				}
				return
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

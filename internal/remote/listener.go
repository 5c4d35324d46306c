package remote

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Listener holds a websocket to the backend's change feed. Every frame
// received is a hint that remote data changed; the frame body is ignored.
type Listener struct {
	url        string
	token      string
	onChange   func()
	logger     *zap.Logger
	backoffMin time.Duration
	backoffMax time.Duration
}

// Listener returns a change-feed listener for this client's backend.
func (c *Client) Listener(onChange func(), logger *zap.Logger) *Listener {
	u := c.baseURL + "/v1/changes"
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return &Listener{
		url:        u,
		token:      c.token,
		onChange:   onChange,
		logger:     logger,
		backoffMin: time.Second,
		backoffMax: time.Minute,
	}
}

// Run keeps the feed open until ctx is cancelled, reconnecting with capped
// exponential backoff. It always returns ctx.Err().
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.newBackoff()
	for {
		connected, err := l.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = l.newBackoff()
		}
		wait, _ := backoff.Next()
		l.logger.Debug("change feed disconnected", zap.Error(err), zap.Duration("retry_in", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// session reads one connection until it breaks and reports whether the dial succeeded.
func (l *Listener) session(ctx context.Context) (bool, error) {
	opts := &websocket.DialOptions{}
	if l.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + l.token}}
	}
	conn, _, err := websocket.Dial(ctx, l.url, opts)
	if err != nil {
		return false, err
	}
	defer func() { _ = conn.CloseNow() }()
	l.logger.Info("change feed connected", zap.String("url", l.url))

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				_ = conn.Close(websocket.StatusNormalClosure, "")
			}
			return true, err
		}
		l.onChange()
	}
}

func (l *Listener) newBackoff() retry.Backoff {
	return retry.WithCappedDuration(l.backoffMax, retry.NewExponential(l.backoffMin))
}

package remote

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/grovetools/rulesync/errors"
)

// Dial returns a Client when a daemon answers on socketPath.
func Dial(ctx context.Context, socketPath string, timeout time.Duration) (*Client, error) {
	if _, err := os.Stat(socketPath); err != nil {
		return nil, errors.New(errors.ErrCodeBackendFailed, "daemon socket not found").
			WithDetail("socket", socketPath)
	}

	// Socket file exists, try to connect
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	conn, err := d.DialContext(dialCtx, "unix", socketPath)
	if err != nil {
		return nil, errors.BackendFailed("connect to daemon", err).WithDetail("socket", socketPath)
	}
	conn.Close()

	c := New(socketPath, timeout)
	if !c.Ping(ctx) {
		c.Close()
		return nil, errors.New(errors.ErrCodeBackendFailed, "daemon is not responding").
			WithDetail("socket", socketPath)
	}
	return c, nil
}

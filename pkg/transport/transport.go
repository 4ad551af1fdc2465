// Package transport delivers JSON documents to the device API.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStatus is returned when the server answers with a non-2xx status.
var ErrStatus = errors.New("unexpected status")

// Response is the server answer to one exchange.
type Response struct {
	Status int
	Date   time.Time // zero when unknown
	Body   []byte
}

// Transport sends JSON documents to a path of the device API.
type Transport interface {
	Put(ctx context.Context, path string, body []byte) (*Response, error)
	Get(ctx context.Context, path string) (*Response, error)
}

var (
	_ Transport = (*HTTP)(nil)
	_ Transport = (*MQTT)(nil)
)

// StatusError wraps ErrStatus with the received code.
func StatusError(code int) error {
	return fmt.Errorf("%w: %d", ErrStatus, code)
}

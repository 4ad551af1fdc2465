// Package remote is the client of the device API.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itohio/picolimno/pkg/clock"
	"github.com/itohio/picolimno/pkg/sample"
	"github.com/itohio/picolimno/pkg/transport"
)

// Device states pushed with SendStatus.
const (
	StateStarting = "Starting"
	StateStopping = "Stopping"
)

// ErrNoIdentity is returned before the device identity is known.
var ErrNoIdentity = errors.New("device identity unknown")

// Status is the body of a status update.
type Status struct {
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
	IP        string `json:"IP"`
}

// Client builds device API requests on top of a transport.
type Client struct {
	transport transport.Transport
	log       logrus.FieldLogger

	mu   sync.RWMutex
	imei string
}

// New creates an API client.
func New(t transport.Transport, log logrus.FieldLogger) *Client {
	return &Client{transport: t, log: log.WithField("component", "remote")}
}

// SetIMEI sets the device identity used in every path.
func (c *Client) SetIMEI(imei string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.imei = imei
}

// IMEI returns the device identity.
func (c *Client) IMEI() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.imei
}

// DevicePath returns the API path of a device resource.
func DevicePath(imei, resource string) string {
	return "/device/GSM-" + imei + "/" + resource
}

func (c *Client) path(resource string) (string, error) {
	imei := c.IMEI()
	if imei == "" {
		return "", ErrNoIdentity
	}
	return DevicePath(imei, resource), nil
}

// SendStatus pushes the device state.
func (c *Client) SendStatus(ctx context.Context, state, ip string, at time.Time) error {
	path, err := c.path("status")
	if err != nil {
		return err
	}
	body, err := json.Marshal(Status{Timestamp: clock.Timestamp(at), Status: state, IP: ip})
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	if _, err := c.transport.Put(ctx, path, body); err != nil {
		return fmt.Errorf("failed to send status: %w", err)
	}
	c.log.WithFields(logrus.Fields{"status": state, "ip": ip}).Info("status sent")
	return nil
}

// SendSamples pushes a batch of samples.
func (c *Client) SendSamples(ctx context.Context, samples []sample.Sample) error {
	path, err := c.path("samples")
	if err != nil {
		return err
	}
	body, err := sample.Encode(samples)
	if err != nil {
		return err
	}
	if _, err := c.transport.Put(ctx, path, body); err != nil {
		return fmt.Errorf("failed to send samples: %w", err)
	}
	c.log.WithField("count", len(samples)).Debug("samples sent")
	return nil
}

// Parameters fetches the raw parameter document and the server date. The
// date of an error status answer is returned with the error.
func (c *Client) Parameters(ctx context.Context) ([]byte, time.Time, error) {
	path, err := c.path("parameters")
	if err != nil {
		return nil, time.Time{}, err
	}
	resp, err := c.transport.Get(ctx, path)
	if err != nil {
		var date time.Time
		if resp != nil {
			date = resp.Date
		}
		return nil, date, fmt.Errorf("failed to get parameters: %w", err)
	}
	return resp.Body, resp.Date, nil
}

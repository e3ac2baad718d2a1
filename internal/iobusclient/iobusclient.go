// Package iobusclient caches server/info and server/nodes from the
// local expansion-bus server (spec.md §4.6), polling it on a ticker in
// the teacher's poll-and-publish shape and deriving a liveness flag from
// how stale the last successful poll is.
package iobusclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linux-automation/tacd/internal/model"
	"github.com/linux-automation/tacd/internal/topic"
)

func decodeJSON(r io.Reader, out interface{}) error {
	return json.NewDecoder(r).Decode(out)
}

// Backend is whatever can actually reach the bus server. ProductionClient
// below talks to it over HTTP; StubBackend is used by tests.
type Backend interface {
	ServerInfo() (model.IOBusServerInfo, error)
	Nodes() ([]model.IOBusNodeInfo, error)
}

// StubBackend is an in-memory Backend for tests and off-target builds.
type StubBackend struct {
	Info model.IOBusServerInfo
	List []model.IOBusNodeInfo
	Err  error
}

func (s *StubBackend) ServerInfo() (model.IOBusServerInfo, error) { return s.Info, s.Err }
func (s *StubBackend) Nodes() ([]model.IOBusNodeInfo, error)      { return s.List, s.Err }

// HTTPBackend talks to the bus server's REST surface.
type HTTPBackend struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPBackend(baseURL string) *HTTPBackend {
	return &HTTPBackend{BaseURL: baseURL, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (b *HTTPBackend) ServerInfo() (model.IOBusServerInfo, error) {
	var info model.IOBusServerInfo
	if err := b.getJSON("/info", &info); err != nil {
		return info, err
	}
	return info, nil
}

func (b *HTTPBackend) Nodes() ([]model.IOBusNodeInfo, error) {
	var nodes []model.IOBusNodeInfo
	if err := b.getJSON("/nodes", &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (b *HTTPBackend) getJSON(path string, out interface{}) error {
	resp, err := b.Client.Get(b.BaseURL + path)
	if err != nil {
		return fmt.Errorf("iobusclient: request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("iobusclient: %s returned status %d", path, resp.StatusCode)
	}
	return decodeJSON(resp.Body, out)
}

// Client polls Backend on Period and republishes server/info,
// server/nodes, and server/health (a liveness bool derived from how
// long it has been since the last successful poll, per SPEC_FULL's
// supplemented field).
type Client struct {
	Backend Backend
	Period  time.Duration
	// StaleAfter is how long since the last successful poll before
	// Health reports false.
	StaleAfter time.Duration
	Logger     *logrus.Logger

	Info   *topic.Topic[model.IOBusServerInfo]
	Nodes  *topic.Topic[[]model.IOBusNodeInfo]
	Health *topic.Topic[bool]

	lastSuccess time.Time
}

func (c *Client) Run(ctx context.Context) error {
	logger := c.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	staleAfter := c.StaleAfter
	if staleAfter <= 0 {
		staleAfter = c.Period * 3
	}

	ticker := time.NewTicker(c.Period)
	defer ticker.Stop()

	c.poll(logger)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.poll(logger)
			if c.Health != nil {
				c.Health.Publish(time.Since(c.lastSuccess) < staleAfter)
			}
		}
	}
}

func (c *Client) poll(logger *logrus.Logger) {
	info, err := c.Backend.ServerInfo()
	if err != nil {
		logger.WithError(err).Warn("iobusclient: failed to read server info")
		return
	}
	nodes, err := c.Backend.Nodes()
	if err != nil {
		logger.WithError(err).Warn("iobusclient: failed to read nodes")
		return
	}

	c.lastSuccess = time.Now()
	if c.Info != nil {
		c.Info.Publish(info)
	}
	if c.Nodes != nil {
		c.Nodes.Publish(nodes)
	}
	if c.Health != nil {
		c.Health.Publish(true)
	}
}

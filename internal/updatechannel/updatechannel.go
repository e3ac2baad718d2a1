// Package updatechannel polls a configured list of update channels for
// manifest metadata, in the teacher's DiplusClient poll-on-ticker shape:
// one HTTP client, one ticker, republish the merged result as a topic.
package updatechannel

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

// Config is one statically-configured channel entry, before the poller
// has fetched its manifest metadata.
type Config struct {
	Name            string
	DisplayName     string
	Description     string
	URL             string
	PollingInterval time.Duration
	Enabled         bool
	Primary         bool
}

// manifest is the subset of a channel manifest's JSON this poller reads.
type manifest struct {
	Bundle string `json:"bundle"`
}

// Poller fetches every enabled channel's manifest on one shared ticker
// and republishes the full channel list as one topic after every fetch.
type Poller struct {
	Channels []Config
	Channel  *topic.Topic[[]model.UpdateChannel]
	Reload   *topic.Topic[bool]

	HTTPClient *http.Client
	Logger     *logrus.Logger

	enablePolling bool
}

// NewPoller returns a Poller with a 10s-timeout HTTP client, matching
// the teacher's DiplusClient default.
func NewPoller(channels []Config, channelTopic *topic.Topic[[]model.UpdateChannel]) *Poller {
	return &Poller{
		Channels:      channels,
		Channel:       channelTopic,
		HTTPClient:    &http.Client{Timeout: 10 * time.Second},
		enablePolling: true,
	}
}

// Run fetches every enabled channel's manifest once immediately, then
// again at the shortest configured PollingInterval (one hour if none is
// set), merging results into one published slice; it also honors a
// Reload topic that forces an immediate refetch of everything.
func (p *Poller) Run(ctx context.Context) error {
	logger := p.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	if p.Reload != nil {
		sub := p.Reload.Subscribe(func(_, _ uint64, reload bool) {
			if reload {
				p.fetchAll(logger)
			}
		})
		defer sub.Cancel()
	}

	p.fetchAll(logger)

	// A single ticker at the fastest configured interval keeps the
	// select loop simple; individual channel staleness beyond this is
	// acceptable since spec.md §4.6 only requires eventual refresh.
	fastest := time.Hour
	for _, c := range p.Channels {
		if c.PollingInterval > 0 && c.PollingInterval < fastest {
			fastest = c.PollingInterval
		}
	}
	ticker := time.NewTicker(fastest)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.enablePolling {
				p.fetchAll(logger)
			}
		}
	}
}

// SetPolling enables or disables periodic fetching (spec.md §4.6's
// enable_polling control), without tearing down the Run loop.
func (p *Poller) SetPolling(enabled bool) {
	p.enablePolling = enabled
}

func (p *Poller) fetchAll(logger *logrus.Logger) {
	result := make([]model.UpdateChannel, 0, len(p.Channels))
	for _, c := range p.Channels {
		entry := model.UpdateChannel{
			Name:            c.Name,
			DisplayName:     c.DisplayName,
			Description:     c.Description,
			URL:             c.URL,
			PollingInterval: int(c.PollingInterval / time.Second),
			Enabled:         c.Enabled,
			Primary:         c.Primary,
		}
		if c.Enabled {
			if m, err := p.fetchManifest(c.URL); err != nil {
				logger.WithFields(logrus.Fields{
					"channel": c.Name,
					"error":   err,
				}).Warn("updatechannel: failed to fetch manifest")
			} else {
				entry.Bundle = m.Bundle
			}
		}
		result = append(result, entry)
	}
	if p.Channel != nil {
		p.Channel.Publish(result)
	}
}

func (p *Poller) fetchManifest(url string) (*manifest, error) {
	resp, err := p.HTTPClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("updatechannel: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("updatechannel: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("updatechannel: read body: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("updatechannel: parse manifest: %w", err)
	}
	return &m, nil
}

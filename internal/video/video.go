// Package video polls the vehicle's auxiliary video-status endpoint and
// turns the answer into a display label.
package video

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/saviobatista/groundstation/internal/logging"
	"github.com/saviobatista/groundstation/internal/types"
)

// Unavailable is the label shown when the endpoint cannot be reached
const Unavailable = "unavailable"

// Poller fetches GET {base}/api/video-status on an interval
type Poller struct {
	url      string
	token    string
	client   *http.Client
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a poller; a nil logger discards output
func NewPoller(baseURL, token string, interval time.Duration, logger *slog.Logger) *Poller {
	logger = logging.OrDiscard(logger)
	return &Poller{
		url:      strings.TrimRight(baseURL, "/") + "/api/video-status",
		token:    token,
		client:   &http.Client{Timeout: 5 * time.Second},
		interval: interval,
		logger:   logger,
	}
}

// Label renders a video status as "<status> (<source>)"
func Label(s types.VideoStatus) string {
	if s.Source == "" {
		return s.Status
	}
	return fmt.Sprintf("%s (%s)", s.Status, s.Source)
}

// Fetch performs a single status request
func (p *Poller) Fetch(ctx context.Context) (types.VideoStatus, error) {
	var status types.VideoStatus

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return status, fmt.Errorf("failed to create request: %w", err)
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return status, fmt.Errorf("failed to fetch video status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return status, fmt.Errorf("video status: HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("failed to decode video status: %w", err)
	}
	if status.Status == "" {
		return status, fmt.Errorf("video status: empty status")
	}
	return status, nil
}

// Run polls until ctx is done, passing each label to update. The first
// poll happens immediately.
func (p *Poller) Run(ctx context.Context, update func(label string)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		status, err := p.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Debug("video status unavailable", slog.Any("error", err))
			update(Unavailable)
		} else {
			update(Label(status))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Package sectionpurge calls the privileged section delete endpoint of the API.
package sectionpurge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
)

// KeyHeader carries the shared purge key.
const KeyHeader = "X-Purge-Key"

// Request is the body of the purge endpoint.
type Request struct {
	SectionID string `json:"sectionId"`
}

// Client deletes sections through the purge endpoint. It is an archive.SectionDeleter.
type Client struct {
	url  string
	key  string
	http *http.Client
}

func NewClient(conf *core.Config) *Client {
	return &Client{
		url:  conf.Archive.PurgeURL,
		key:  conf.Archive.PurgeKey,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled reports whether a purge endpoint is configured.
func (c *Client) Enabled() bool { return c.url != "" }

func (c *Client) DeleteSection(ctx context.Context, id string) error {
	if !c.Enabled() {
		return errors.New("section purge endpoint not configured")
	}
	body, err := json.Marshal(Request{SectionID: id})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building purge request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(KeyHeader, c.key)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling purge endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("purge endpoint: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

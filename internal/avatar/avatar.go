// Package avatar looks up profile pictures from the external avatar
// provider. Lookups are best-effort; profile rendering degrades to an
// empty URL when the provider is slow or down.
package avatar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type Client struct {
	base string
	http *http.Client
}

func New(base string) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: 3 * time.Second},
	}
}

type userData struct {
	Profile struct {
		Images map[string]string `json:"images"`
	} `json:"profile"`
}

// ProfilePicture returns the 90x90 avatar URL for username, or an empty
// string if the provider has none.
func (c *Client) ProfilePicture(ctx context.Context, username string) (string, error) {
	if username == "" {
		return "", nil
	}

	endpoint := c.base + "/api/users/" + url.PathEscape(username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build avatar request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch avatar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("avatar provider returned %d", resp.StatusCode)
	}

	var data userData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("decode avatar response: %w", err)
	}
	return data.Profile.Images["90x90"], nil
}

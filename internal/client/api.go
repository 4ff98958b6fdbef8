package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"campus-notify-go/internal/models"
)

// HTTPStoreClient is the StoreClient over the server's REST surface. The
// caller supplies headers (session cookie) identifying the recipient.
type HTTPStoreClient struct {
	BaseURL string
	Client  *http.Client
	Header  http.Header
}

type listResponse struct {
	Notifications []models.Notification `json:"notifications"`
	NextCursor    int                   `json:"next_cursor"`
	UnreadCount   int                   `json:"unread_count"`
}

func (c *HTTPStoreClient) List(ctx context.Context, cursor, limit int) ([]models.Notification, int, error) {
	url := c.BaseURL + "/api/notifications?cursor=" + strconv.Itoa(cursor) + "&limit=" + strconv.Itoa(limit)

	var out listResponse
	if err := c.doJSON(ctx, http.MethodGet, url, &out); err != nil {
		return nil, 0, err
	}
	return out.Notifications, out.NextCursor, nil
}

func (c *HTTPStoreClient) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.BaseURL+"/api/notifications/unread-count", &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *HTTPStoreClient) MarkRead(ctx context.Context, notificationID int) (bool, error) {
	var out struct {
		Success bool `json:"success"`
		Changed bool `json:"changed"`
	}
	url := fmt.Sprintf("%s/api/notifications/%d/read", c.BaseURL, notificationID)
	if err := c.doJSON(ctx, http.MethodPost, url, &out); err != nil {
		return false, err
	}
	return out.Changed, nil
}

func (c *HTTPStoreClient) MarkAllRead(ctx context.Context) (int, error) {
	var out struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.BaseURL+"/api/notifications/read-all", &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *HTTPStoreClient) doJSON(ctx context.Context, method, url string, out any) error {
	httpClient := c.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

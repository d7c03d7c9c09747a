// Package client is a client for the node status API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	fspath "path"
	"time"
)

type Client struct {
	httpClient *http.Client

	url *url.URL
}

func NewClient(url *url.URL) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Second * 15,
		},
		url: url,
	}
}

func (c *Client) SetURL(url *url.URL) {
	c.url = url
}

// Request sends a GET request to the given path and returns the response
// body. The caller must close the body.
func (c *Client) Request(path string) (io.ReadCloser, error) {
	return c.do(http.MethodGet, path, nil, http.StatusOK)
}

// Post sends a POST request to the given path with the given body.
func (c *Client) Post(path string, body []byte) (io.ReadCloser, error) {
	return c.do(http.MethodPost, path, bytes.NewReader(body), http.StatusCreated)
}

func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) do(
	method string,
	path string,
	body io.Reader,
	expectedStatus int,
) (io.ReadCloser, error) {
	url := new(url.URL)
	*url = *c.url

	url.Path = fspath.Join(url.Path, path)

	req, err := http.NewRequest(method, url.String(), body)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	if resp.StatusCode != expectedStatus {
		defer resp.Body.Close()

		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("request: bad status: %d: %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("request: bad status: %d", resp.StatusCode)
	}

	return resp.Body, nil
}

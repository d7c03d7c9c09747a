package client

import (
	"encoding/json"
	"fmt"

	"github.com/andydunstall/spread/node/status"
)

type Peers struct {
	client *Client
}

func NewPeers(client *Client) *Peers {
	return &Peers{
		client: client,
	}
}

func (c *Peers) Status() (*status.PeersStatus, error) {
	r, err := c.client.Request("/status/peers")
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var s status.PeersStatus
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

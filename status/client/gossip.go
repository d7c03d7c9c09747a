package client

import (
	"encoding/json"
	"fmt"

	"github.com/andydunstall/spread/node/status"
)

type Gossip struct {
	client *Client
}

func NewGossip(client *Client) *Gossip {
	return &Gossip{
		client: client,
	}
}

func (c *Gossip) Status() (*status.GossipStatus, error) {
	r, err := c.client.Request("/status/gossip")
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var s status.GossipStatus
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

package client

import (
	"encoding/json"
	"fmt"

	"github.com/andydunstall/spread/node/status"
)

type Records struct {
	client *Client
}

func NewRecords(client *Client) *Records {
	return &Records{
		client: client,
	}
}

func (c *Records) List() ([]status.RecordMeta, error) {
	r, err := c.client.Request("/status/records")
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var records []status.RecordMeta
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return records, nil
}

func (c *Records) Get(id string) (*status.Record, error) {
	r, err := c.client.Request("/status/records/" + id)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var record status.Record
	if err := json.NewDecoder(r).Decode(&record); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &record, nil
}

// Publish adds a record with the given payload to the node, which then
// pushes it to its peers.
func (c *Records) Publish(payload []byte) (*status.RecordMeta, error) {
	r, err := c.client.Post("/status/records", payload)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var meta status.RecordMeta
	if err := json.NewDecoder(r).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &meta, nil
}

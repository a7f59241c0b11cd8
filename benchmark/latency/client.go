package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Caller is the identity forwarded on every request. The node trusts these
// headers, so the benchmark can impersonate any supply-chain role.
type Caller struct {
	Address string
	Role    string
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *HTTPClient) GET(endpoint string, caller Caller) (*http.Response, error) {
	req, err := http.NewRequest("GET", c.baseURL+endpoint, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "*/*")
	req.Header.Set("X-Caller-Address", caller.Address)
	req.Header.Set("X-Caller-Role", caller.Role)

	return c.client.Do(req)
}

func (c *HTTPClient) POST(endpoint string, caller Caller, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest("POST", c.baseURL+endpoint, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("X-Caller-Address", caller.Address)
	req.Header.Set("X-Caller-Role", caller.Role)

	return c.client.Do(req)
}

// Envelope is the node's response wrapper.
type Envelope struct {
	RequestID string          `json:"request_id"`
	NodeID    string          `json:"node_id"`
	Data      json.RawMessage `json:"data"`
}

// CommitResult is the body of an accepted write, nested inside the envelope.
type CommitResult struct {
	Data        json.RawMessage `json:"data"`
	TxHash      string          `json:"tx_hash"`
	BlockHeight int64           `json:"block_height"`
}

// UnmarshalData reads the response, unwraps the envelope, and decodes the
// inner data payload into v.
func UnmarshalData(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return json.Unmarshal(env.Data, v)
}

package client

import (
	"fmt"

	"github.com/go-resty/resty/v2"
)

const (
	databases_endpoint = "/databases"
)

// EngineClient talks to a remote engine process over its HTTP API.
type EngineClient struct {
	client    *resty.Client
	serverUrl string
}

func NewEngineClient(serverUrl string) *EngineClient {
	return &EngineClient{
		client:    resty.New(),
		serverUrl: serverUrl,
	}
}

type OpenDatabaseRequest struct {
	Path       string   `json:"path"`
	Passphrase string   `json:"passphrase,omitempty"`
	Flags      []string `json:"flags,omitempty"`
}

type OpenDatabaseResponse struct {
	HandleID string `json:"handle_id"`
	Path     string `json:"path"`
	ReadOnly bool   `json:"read_only"`
}

func (c *EngineClient) Open(req OpenDatabaseRequest) (*OpenDatabaseResponse, error) {
	var resp OpenDatabaseResponse
	uri := c.serverUrl + databases_endpoint
	r, err := c.client.R().SetResult(&resp).SetBody(&req).Post(uri)
	if err != nil {
		return nil, err
	}
	if r.IsError() {
		return nil, fmt.Errorf("open failed: %s", r.String())
	}
	return &resp, nil
}

func (c *EngineClient) Close(handleID string) error {
	uri := fmt.Sprintf("%s%s/%s", c.serverUrl, databases_endpoint, handleID)
	r, err := c.client.R().Delete(uri)
	if err != nil {
		return err
	}
	if r.IsError() {
		return fmt.Errorf("close failed: %s", r.String())
	}
	return nil
}

type QueryRequest struct {
	SQL     string `json:"sql"`
	MaxRows int    `json:"max_rows,omitempty"`
}

type QueryResponse struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

func (c *EngineClient) Query(handleID, sql string) (*QueryResponse, error) {
	var resp QueryResponse
	uri := fmt.Sprintf("%s%s/%s/query", c.serverUrl, databases_endpoint, handleID)
	body := QueryRequest{SQL: sql}
	r, err := c.client.R().SetResult(&resp).SetBody(&body).Post(uri)
	if err != nil {
		return nil, err
	}
	if r.IsError() {
		return nil, fmt.Errorf("query failed: %s", r.String())
	}
	return &resp, nil
}

type ExecuteRequest struct {
	SQL string `json:"sql"`
}

func (c *EngineClient) Execute(handleID, sql string) error {
	uri := fmt.Sprintf("%s%s/%s/execute", c.serverUrl, databases_endpoint, handleID)
	body := ExecuteRequest{SQL: sql}
	r, err := c.client.R().SetBody(&body).Post(uri)
	if err != nil {
		return err
	}
	if r.IsError() {
		return fmt.Errorf("execute failed: %s", r.String())
	}
	return nil
}

type VersionResponse struct {
	Version int64 `json:"version"`
}

func (c *EngineClient) GetVersion(handleID string) (int64, error) {
	var resp VersionResponse
	uri := fmt.Sprintf("%s%s/%s/version", c.serverUrl, databases_endpoint, handleID)
	r, err := c.client.R().SetResult(&resp).Get(uri)
	if err != nil {
		return 0, err
	}
	if r.IsError() {
		return 0, fmt.Errorf("get version failed: %s", r.String())
	}
	return resp.Version, nil
}

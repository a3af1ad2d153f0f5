package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/forgeline-io/forgeline/internal/config"
)

// apiClient talks to the running daemon over HTTP.
type apiClient struct {
	baseURL string
	http    *http.Client
}

// connectDaemon builds a client for the running daemon.
func connectDaemon() (*apiClient, error) {
	info, err := config.LoadDaemonInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to load daemon info: %w", err)
	}
	if info == nil {
		return nil, fmt.Errorf("daemon not running")
	}

	return &apiClient{
		baseURL: fmt.Sprintf("http://%s:%d", info.Host, info.Port),
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// connectDaemonForRun uses no request timeout: batch runs block until every
// ticket settles.
func connectDaemonForRun() (*apiClient, error) {
	c, err := connectDaemon()
	if err != nil {
		return nil, err
	}
	c.http = &http.Client{}
	return c, nil
}

// apiError is a non-2xx response.
type apiError struct {
	Status int
	Body   []byte
}

func (e *apiError) Error() string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(e.Body, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return fmt.Sprintf("daemon returned %d", e.Status)
}

func (c *apiClient) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *apiClient) post(path string, body, out any) error {
	return c.do(http.MethodPost, path, body, out)
}

func (c *apiClient) delete(path string) error {
	return c.do(http.MethodDelete, path, nil, nil)
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apiError{Status: resp.StatusCode, Body: data}
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

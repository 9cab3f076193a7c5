// Package remote implements backend.Backend by calling the rulesync daemon's
// HTTP API over a Unix socket.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/backend"
	"github.com/grovetools/rulesync/pkg/backend/api"
	"github.com/grovetools/rulesync/pkg/models"
	"github.com/grovetools/rulesync/version"
)

// DefaultTimeout bounds request/response calls. Event streams have none.
const DefaultTimeout = 30 * time.Second

// Client implements backend.Backend against a running daemon.
type Client struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	socketPath string
	logger     *logrus.Entry
}

var _ backend.Backend = (*Client)(nil)

// New creates a Client connected to the daemon socket. Nothing is dialed
// until the first call.
func New(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dial := func(ctx context.Context, _, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", socketPath)
	}

	// Create HTTP client that dials Unix socket
	transport := &http.Transport{
		DialContext:     dial,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
		dialer: &websocket.Dialer{
			NetDialContext:   dial,
			HandshakeTimeout: 5 * time.Second,
		},
		socketPath: socketPath,
		logger:     logging.NewLogger("backend.remote"),
	}
}

// Ping reports whether the daemon is available and responding.
func (c *Client) Ping(ctx context.Context) bool {
	_, err := c.DaemonVersion(ctx)
	return err == nil
}

// DaemonVersion returns the build of the daemon behind the socket.
func (c *Client) DaemonVersion(ctx context.Context) (version.Info, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var info version.Info
	err := c.do(ctx, http.MethodGet, api.PathHealth, nil, &info)
	return info, err
}

// do sends body as JSON and decodes the response into out when out is
// non-nil. Non-2xx responses become the SyncError the daemon reported.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, api.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.BackendFailed(method+" "+path, err).WithDetail("socket", c.socketPath)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return api.DecodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.BackendFailed("decode "+path, err)
	}
	return nil
}

func resourcePath(kind models.Kind, name string) string {
	return api.PathResources + "/" + url.PathEscape(string(kind)) + "/" + url.PathEscape(name)
}

// GetFileTree implements backend.Reader.
func (c *Client) GetFileTree(ctx context.Context) (*models.FileTreeNode, error) {
	var tree models.FileTreeNode
	if err := c.do(ctx, http.MethodGet, api.PathTree, nil, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

// GetGitStatus implements backend.Reader.
func (c *Client) GetGitStatus(ctx context.Context) (*models.GitStatus, error) {
	var status models.GitStatus
	if err := c.do(ctx, http.MethodGet, api.PathGitStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetBranches implements backend.Reader.
func (c *Client) GetBranches(ctx context.Context) ([]models.BranchInfo, error) {
	var branches []models.BranchInfo
	if err := c.do(ctx, http.MethodGet, api.PathBranches, nil, &branches); err != nil {
		return nil, err
	}
	return branches, nil
}

// GetResource implements backend.Reader.
func (c *Client) GetResource(ctx context.Context, kind models.Kind, name string) (*models.Resource, error) {
	var res models.Resource
	if err := c.do(ctx, http.MethodGet, resourcePath(kind, name), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListResources implements backend.Reader.
func (c *Client) ListResources(ctx context.Context, kind models.Kind) ([]models.ResourceInfo, error) {
	path := api.PathResources
	if kind != "" {
		path += "?kind=" + url.QueryEscape(string(kind))
	}
	var list []models.ResourceInfo
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ReadRawFile implements backend.Reader.
func (c *Client) ReadRawFile(ctx context.Context, path string) (string, error) {
	var file api.FileContent
	if err := c.do(ctx, http.MethodGet, api.PathFiles+"?path="+url.QueryEscape(path), nil, &file); err != nil {
		return "", err
	}
	return file.Content, nil
}

// CreateResource implements backend.Mutator.
func (c *Client) CreateResource(ctx context.Context, kind models.Kind, name, yaml, path string) (*models.Resource, error) {
	req := api.CreateResourceRequest{Kind: string(kind), Name: name, YAML: yaml, Path: path}
	var res models.Resource
	if err := c.do(ctx, http.MethodPost, api.PathResources, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateResource implements backend.Mutator.
func (c *Client) UpdateResource(ctx context.Context, kind models.Kind, name, yaml string) (*models.Resource, error) {
	var res models.Resource
	if err := c.do(ctx, http.MethodPut, resourcePath(kind, name), api.UpdateResourceRequest{YAML: yaml}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteResource implements backend.Mutator.
func (c *Client) DeleteResource(ctx context.Context, kind models.Kind, name string) error {
	return c.do(ctx, http.MethodDelete, resourcePath(kind, name), nil, nil)
}

func (c *Client) fileOp(ctx context.Context, path string, body interface{}) (models.OperationResult, error) {
	var res models.OperationResult
	err := c.do(ctx, http.MethodPost, path, body, &res)
	return res, err
}

// MoveFile implements backend.Mutator.
func (c *Client) MoveFile(ctx context.Context, src, dst string) (models.OperationResult, error) {
	return c.fileOp(ctx, api.PathFileMove, api.MoveRequest{Src: src, Dst: dst})
}

// CreateDirectory implements backend.Mutator.
func (c *Client) CreateDirectory(ctx context.Context, path string) (models.OperationResult, error) {
	return c.fileOp(ctx, api.PathFileMkdir, api.PathRequest{Path: path})
}

// DeleteFile implements backend.Mutator.
func (c *Client) DeleteFile(ctx context.Context, path string) (models.OperationResult, error) {
	return c.fileOp(ctx, api.PathFileDelete, api.PathRequest{Path: path})
}

// GitCommit implements backend.Mutator.
func (c *Client) GitCommit(ctx context.Context, message string, files []string) error {
	return c.do(ctx, http.MethodPost, api.PathGitCommit, api.CommitRequest{Message: message, Files: files}, nil)
}

// GitPull implements backend.Mutator.
func (c *Client) GitPull(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, api.PathGitPull, nil, nil)
}

// GitCheckout implements backend.Mutator.
func (c *Client) GitCheckout(ctx context.Context, branch string) error {
	return c.do(ctx, http.MethodPost, api.PathGitCheckout, api.CheckoutRequest{Branch: branch}, nil)
}

// GitCreateBranch implements backend.Mutator.
func (c *Client) GitCreateBranch(ctx context.Context, name string, switchTo bool) error {
	return c.do(ctx, http.MethodPost, api.PathGitBranch, api.BranchRequest{Name: name, SwitchTo: switchTo}, nil)
}

// GitInitialize implements backend.Mutator.
func (c *Client) GitInitialize(ctx context.Context) (*models.InitializeResult, error) {
	var res models.InitializeResult
	if err := c.do(ctx, http.MethodPost, api.PathGitInitialize, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// IsRemote implements backend.Backend.
func (c *Client) IsRemote() bool {
	return true
}

// Close releases idle connections. Open streams end with their contexts.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

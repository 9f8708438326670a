/*
Package client is a Go client for the VOSpace HTTP API.

It wraps node CRUD, the service listings and the transfer job protocol,
decoding responses with the same codec the server encodes with. The
caller identity travels in the X-VOSpace-User header.
*/
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/icrar/govospace/pkg/types"
	"github.com/icrar/govospace/pkg/vosxml"
)

// Client talks to one VOSpace service as one identity.
type Client struct {
	baseURL  string
	identity string
	codec    *vosxml.Codec
	http     *http.Client
}

// New returns a client for the service at baseURL, acting as identity
// within the named space.
func New(baseURL, space, identity string) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		identity: identity,
		codec:    vosxml.NewCodec(space),
		http: &http.Client{
			Timeout: 60 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Job creation and phase commands answer with 303; the
				// Location header is the payload.
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *Client) request(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-VOSpace-User", c.identity)
	if len(body) > 0 {
		req.Header.Set("Content-Type", "text/xml")
	}
	return c.http.Do(req)
}

func drain(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// CreateNode creates the node and returns the server's echo, including
// the views the backend grants it.
func (c *Client) CreateNode(ctx context.Context, node *types.Node) (*types.Node, error) {
	body, err := c.codec.EncodeNode(node)
	if err != nil {
		return nil, err
	}
	resp, err := c.request(ctx, http.MethodPut, "/vospace/nodes/"+node.Path, body)
	if err != nil {
		return nil, err
	}
	data, err := drain(resp)
	if err != nil {
		return nil, err
	}
	return c.codec.ParseNode(data)
}

// GetNode reads the node at path. detail may be empty, "min", "max" or
// "properties"; limit caps container children when positive.
func (c *Client) GetNode(ctx context.Context, path, detail string, limit int) (*types.Node, error) {
	q := url.Values{}
	if detail != "" {
		q.Set("detail", detail)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	target := "/vospace/nodes/" + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	resp, err := c.request(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	data, err := drain(resp)
	if err != nil {
		return nil, err
	}
	return c.codec.ParseNode(data)
}

// SetProperties merges the node's property list into the stored node.
func (c *Client) SetProperties(ctx context.Context, node *types.Node) (*types.Node, error) {
	body, err := c.codec.EncodeNode(node)
	if err != nil {
		return nil, err
	}
	resp, err := c.request(ctx, http.MethodPost, "/vospace/nodes/"+node.Path, body)
	if err != nil {
		return nil, err
	}
	data, err := drain(resp)
	if err != nil {
		return nil, err
	}
	return c.codec.ParseNode(data)
}

// DeleteNode removes the node and its subtree.
func (c *Client) DeleteNode(ctx context.Context, path string) error {
	resp, err := c.request(ctx, http.MethodDelete, "/vospace/nodes/"+path, nil)
	if err != nil {
		return err
	}
	_, err = drain(resp)
	return err
}

// CreateTransfer submits an asynchronous transfer job and returns its
// job id.
func (c *Client) CreateTransfer(ctx context.Context, t *types.Transfer) (string, error) {
	body, err := c.codec.EncodeTransfer(t)
	if err != nil {
		return "", err
	}
	resp, err := c.request(ctx, http.MethodPost, "/vospace/transfers", body)
	if err != nil {
		return "", err
	}
	if _, err := drain(resp); err != nil {
		return "", err
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("transfer created without a job location")
	}
	return strings.TrimPrefix(location, "/vospace/transfers/"), nil
}

// Run commands the job to start.
func (c *Client) Run(ctx context.Context, jobID string) error {
	return c.phaseCommand(ctx, jobID, "RUN")
}

// Abort commands the job to abort.
func (c *Client) Abort(ctx context.Context, jobID string) error {
	return c.phaseCommand(ctx, jobID, "ABORT")
}

func (c *Client) phaseCommand(ctx context.Context, jobID, command string) error {
	form := url.Values{"PHASE": {command}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/vospace/transfers/"+jobID+"/phase", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("X-VOSpace-User", c.identity)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	_, err = drain(resp)
	return err
}

// Phase reads the job's current phase.
func (c *Client) Phase(ctx context.Context, jobID string) (types.Phase, error) {
	resp, err := c.request(ctx, http.MethodGet, "/vospace/transfers/"+jobID+"/phase", nil)
	if err != nil {
		return 0, err
	}
	data, err := drain(resp)
	if err != nil {
		return 0, err
	}
	phase, ok := types.ParsePhase(strings.TrimSpace(string(data)))
	if !ok {
		return 0, fmt.Errorf("unknown phase %q", data)
	}
	return phase, nil
}

// WaitPhase polls until the job reaches the wanted phase or any
// terminal phase, or the context expires.
func (c *Client) WaitPhase(ctx context.Context, jobID string, want types.Phase) (types.Phase, error) {
	for {
		phase, err := c.Phase(ctx, jobID)
		if err != nil {
			return 0, err
		}
		if phase == want || phase.Terminal() {
			return phase, nil
		}
		select {
		case <-ctx.Done():
			return phase, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// TransferDetails fetches the negotiated transfer result and returns
// the endpoint of its first protocol.
func (c *Client) TransferDetails(ctx context.Context, jobID string) (*types.Transfer, error) {
	resp, err := c.request(ctx, http.MethodGet, "/vospace/transfers/"+jobID+"/results/transferDetails", nil)
	if err != nil {
		return nil, err
	}
	data, err := drain(resp)
	if err != nil {
		return nil, err
	}
	return c.codec.ParseTransfer(data)
}

// SyncTransfer negotiates a synchronous protocol transfer and returns
// the negotiated result document.
func (c *Client) SyncTransfer(ctx context.Context, t *types.Transfer) (*types.Transfer, error) {
	body, err := c.codec.EncodeTransfer(t)
	if err != nil {
		return nil, err
	}
	resp, err := c.request(ctx, http.MethodPost, "/vospace/synctrans", body)
	if err != nil {
		return nil, err
	}
	data, err := drain(resp)
	if err != nil {
		return nil, err
	}
	return c.codec.ParseTransfer(data)
}

// Protocols fetches the service protocol listing document.
func (c *Client) Protocols(ctx context.Context) (string, error) {
	resp, err := c.request(ctx, http.MethodGet, "/vospace/protocols", nil)
	if err != nil {
		return "", err
	}
	data, err := drain(resp)
	return string(data), err
}

// Properties fetches the service property listing document.
func (c *Client) Properties(ctx context.Context) (string, error) {
	resp, err := c.request(ctx, http.MethodGet, "/vospace/properties", nil)
	if err != nil {
		return "", err
	}
	data, err := drain(resp)
	return string(data), err
}

// Upload pushes bytes to a negotiated data-plane endpoint.
func (c *Client) Upload(ctx context.Context, endpoint string, data io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, data)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	_, err = drain(resp)
	return err
}

// Download pulls bytes from a negotiated data-plane endpoint.
func (c *Client) Download(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	return drain(resp)
}

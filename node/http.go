package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/blockmeshdb/coordinator/errors"
	"github.com/blockmeshdb/coordinator/execution"
	"github.com/blockmeshdb/coordinator/meta"
)

const (
	ErrCodeTransientRPC errors.Code = "TransientRPC"
	ErrCodeNodeGone     errors.Code = "NodeGone"
)

// HTTPClient talks to a worker over plain HTTP+JSON. There's no
// generated-stub RPC layer here: every call is a POST of a JSON body
// to a fixed path, matching the transport the rest of this codebase's
// director already uses.
type HTTPClient struct {
	addr       meta.Address
	httpClient *http.Client
}

// NewHTTPClient returns a Client for addr using a transport tuned the
// same way as this codebase's other HTTP client: short dial timeout,
// bounded idle connections, no surprises from HTTP/1.1-only servers.
func NewHTTPClient(addr meta.Address) *HTTPClient {
	return &HTTPClient{
		addr: addr,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   2 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   3 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}
}

func (c *HTTPClient) url(path string) string {
	return fmt.Sprintf("http://%s%s", c.addr, path)
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "marshaling request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.New(ErrCodeNodeGone, fmt.Sprintf("%s: %s unreachable: %v", path, c.addr, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return errors.New(ErrCodeTransientRPC, fmt.Sprintf("%s: %s returned %d: %s", path, c.addr, resp.StatusCode, respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decoding response body")
	}
	return nil
}

type echoRequest struct {
	Name string `json:"name"`
}

type echoResponse struct {
	Name string `json:"name"`
}

func (c *HTTPClient) Echo(ctx context.Context, name string) (string, error) {
	var resp echoResponse
	if err := c.post(ctx, "/echo", echoRequest{Name: name}, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

func (c *HTTPClient) Update(ctx context.Context) (execution.TableStates, error) {
	var raw map[string][]string
	if err := c.post(ctx, "/poll", struct{}{}, &raw); err != nil {
		return nil, err
	}
	// A worker's poll response reports which spec IDs it holds per
	// table, not block payloads; the coordinator only needs spec
	// presence to do placement and expiry, so each reported ID gets a
	// placeholder block carrying no bytes of its own.
	states := execution.TableStates{}
	for table, specIDs := range raw {
		ts := execution.NewTableState()
		for _, id := range specIDs {
			ts.Add(&execution.BatchBlock{SpecID: id, Table: table})
		}
		states[table] = ts
	}
	return states, nil
}

func (c *HTTPClient) Query(ctx context.Context, plan QueryPlan) (BatchRows, error) {
	var resp BatchRows
	if err := c.post(ctx, "/query", plan, &resp); err != nil {
		return BatchRows{}, err
	}
	return resp, nil
}

type taskResponse struct {
	State TaskState `json:"state"`
	Empty bool      `json:"empty,omitempty"`
}

func (c *HTTPClient) Task(ctx context.Context, t Task) (TaskReply, error) {
	var resp taskResponse
	if err := c.post(ctx, "/task", t, &resp); err != nil {
		return TaskReply{State: Failed}, err
	}
	return TaskReply{State: resp.State, Empty: resp.Empty}, nil
}

// Ensure HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

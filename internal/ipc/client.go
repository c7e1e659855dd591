package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Pixguard.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Pixguard.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Pixguard.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunList returns scan runs optionally filtered by statuses.
func (c *Client) RunList(statuses []string) (*RunListResponse, error) {
	var resp RunListResponse
	req := RunListRequest{Statuses: statuses}
	if err := c.client.Call("Pixguard.RunList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunDescribe returns details for a single run.
func (c *Client) RunDescribe(id int64) (*RunDescribeResponse, error) {
	var resp RunDescribeResponse
	req := RunDescribeRequest{ID: id}
	if err := c.client.Call("Pixguard.RunDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunResult returns the scan result document for a run.
func (c *Client) RunResult(id int64) (*RunResultResponse, error) {
	var resp RunResultResponse
	req := RunResultRequest{ID: id}
	if err := c.client.Call("Pixguard.RunResult", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunClear removes all runs.
func (c *Client) RunClear() (*RunClearResponse, error) {
	var resp RunClearResponse
	if err := c.client.Call("Pixguard.RunClear", RunClearRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunClearCompleted removes only completed runs.
func (c *Client) RunClearCompleted() (*RunClearCompletedResponse, error) {
	var resp RunClearCompletedResponse
	if err := c.client.Call("Pixguard.RunClearCompleted", RunClearCompletedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunClearFailed removes failed runs.
func (c *Client) RunClearFailed() (*RunClearFailedResponse, error) {
	var resp RunClearFailedResponse
	if err := c.client.Call("Pixguard.RunClearFailed", RunClearFailedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunReset resets runs stuck in processing states.
func (c *Client) RunReset() (*RunResetResponse, error) {
	var resp RunResetResponse
	if err := c.client.Call("Pixguard.RunReset", RunResetRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunRetry retries failed runs.
func (c *Client) RunRetry(ids []int64) (*RunRetryResponse, error) {
	var resp RunRetryResponse
	req := RunRetryRequest{IDs: ids}
	if err := c.client.Call("Pixguard.RunRetry", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunHealth returns run diagnostics.
func (c *Client) RunHealth() (*RunHealthResponse, error) {
	var resp RunHealthResponse
	if err := c.client.Call("Pixguard.RunHealth", RunHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.client.Call("Pixguard.DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Pixguard.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Pixguard.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Protect registers a local image file as a protected asset.
func (c *Client) Protect(path, owner string) (*ProtectResponse, error) {
	var resp ProtectResponse
	req := ProtectRequest{Path: path, Owner: owner}
	if err := c.client.Call("Pixguard.Protect", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Scan queues a scan run for a local image file.
func (c *Client) Scan(path, owner string) (*ScanResponse, error) {
	var resp ScanResponse
	req := ScanRequest{Path: path, Owner: owner}
	if err := c.client.Call("Pixguard.Scan", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Rescan queues a fresh run for an already-protected asset.
func (c *Client) Rescan(assetID int64) (*RescanResponse, error) {
	var resp RescanResponse
	req := RescanRequest{AssetID: assetID}
	if err := c.client.Call("Pixguard.Rescan", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AssetList returns protected assets optionally filtered by owner.
func (c *Client) AssetList(owner string) (*AssetListResponse, error) {
	var resp AssetListResponse
	req := AssetListRequest{Owner: owner}
	if err := c.client.Call("Pixguard.AssetList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MatchList returns matches optionally filtered by lifecycle statuses.
func (c *Client) MatchList(statuses []string) (*MatchListResponse, error) {
	var resp MatchListResponse
	req := MatchListRequest{Statuses: statuses}
	if err := c.client.Call("Pixguard.MatchList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MatchDescribe returns details for a single match.
func (c *Client) MatchDescribe(id int64) (*MatchDescribeResponse, error) {
	var resp MatchDescribeResponse
	req := MatchDescribeRequest{ID: id}
	if err := c.client.Call("Pixguard.MatchDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MatchReview applies a confirm or decline decision to a match.
func (c *Client) MatchReview(id int64, action, reviewedBy string) (*MatchReviewResponse, error) {
	var resp MatchReviewResponse
	req := MatchReviewRequest{ID: id, Action: action, ReviewedBy: reviewedBy}
	if err := c.client.Call("Pixguard.MatchReview", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DossierList returns dossiers optionally filtered by delivery status.
func (c *Client) DossierList(statuses []string) (*DossierListResponse, error) {
	var resp DossierListResponse
	req := DossierListRequest{Statuses: statuses}
	if err := c.client.Call("Pixguard.DossierList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DossierDescribe returns a dossier with its delivery attempts.
func (c *Client) DossierDescribe(id int64) (*DossierDescribeResponse, error) {
	var resp DossierDescribeResponse
	req := DossierDescribeRequest{ID: id}
	if err := c.client.Call("Pixguard.DossierDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DossierDeliver triggers an immediate delivery attempt.
func (c *Client) DossierDeliver(id int64) (*DossierDeliverResponse, error) {
	var resp DossierDeliverResponse
	req := DossierDeliverRequest{ID: id}
	if err := c.client.Call("Pixguard.DossierDeliver", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NotificationList returns notification feed entries.
func (c *Client) NotificationList(owner string, unreadOnly bool, limit int) (*NotificationListResponse, error) {
	var resp NotificationListResponse
	req := NotificationListRequest{Owner: owner, UnreadOnly: unreadOnly, Limit: limit}
	if err := c.client.Call("Pixguard.NotificationList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NotificationsRead marks feed entries as read.
func (c *Client) NotificationsRead(ids []int64) (*NotificationsReadResponse, error) {
	var resp NotificationsReadResponse
	req := NotificationsReadRequest{IDs: ids}
	if err := c.client.Call("Pixguard.NotificationsRead", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls the oracle service over gRPC.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to target. Without options the connection is plaintext.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	dialOpts = append(dialOpts, opts...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

var _ OracleServer = (*Client)(nil)

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, fullMethod(method), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SubmitAlert(ctx context.Context, req *SubmitAlertRequest) (*IncidentResponse, error) {
	return invoke[IncidentResponse](ctx, c, "SubmitAlert", req)
}

func (c *Client) IngestMessage(ctx context.Context, req *IngestMessageRequest) (*IngestMessageResponse, error) {
	return invoke[IngestMessageResponse](ctx, c, "IngestMessage", req)
}

func (c *Client) Investigate(ctx context.Context, req *IncidentRequest) (*IncidentResponse, error) {
	return invoke[IncidentResponse](ctx, c, "Investigate", req)
}

func (c *Client) GetIncident(ctx context.Context, req *IncidentRequest) (*IncidentResponse, error) {
	return invoke[IncidentResponse](ctx, c, "GetIncident", req)
}

func (c *Client) ListIncidents(ctx context.Context, req *ListIncidentsRequest) (*ListIncidentsResponse, error) {
	return invoke[ListIncidentsResponse](ctx, c, "ListIncidents", req)
}

func (c *Client) Converse(ctx context.Context, req *ConverseRequest) (*ReplyResponse, error) {
	return invoke[ReplyResponse](ctx, c, "Converse", req)
}

func (c *Client) Ask(ctx context.Context, req *AskRequest) (*ReplyResponse, error) {
	return invoke[ReplyResponse](ctx, c, "Ask", req)
}

func (c *Client) RunTask(ctx context.Context, req *RunTaskRequest) (*ReplyResponse, error) {
	return invoke[ReplyResponse](ctx, c, "RunTask", req)
}

func (c *Client) Remediate(ctx context.Context, req *RemediateRequest) (*RemediateResponse, error) {
	return invoke[RemediateResponse](ctx, c, "Remediate", req)
}

func (c *Client) Decide(ctx context.Context, req *DecideRequest) (*DecideResponse, error) {
	return invoke[DecideResponse](ctx, c, "Decide", req)
}

func (c *Client) PendingApprovals(ctx context.Context, req *PendingApprovalsRequest) (*PendingApprovalsResponse, error) {
	return invoke[PendingApprovalsResponse](ctx, c, "PendingApprovals", req)
}

func (c *Client) ResetSession(ctx context.Context, req *SessionRequest) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c, "ResetSession", req)
}

func (c *Client) SessionInfo(ctx context.Context, req *SessionRequest) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c, "SessionInfo", req)
}

func (c *Client) Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c, "Status", req)
}

func (c *Client) Toggle(ctx context.Context, req *ToggleRequest) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c, "Toggle", req)
}

func (c *Client) Command(ctx context.Context, req *CommandRequest) (*ReplyResponse, error) {
	return invoke[ReplyResponse](ctx, c, "Command", req)
}

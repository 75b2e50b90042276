package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "oracle.v1.Oracle"

// OracleServer is the server API for the oracle service.
type OracleServer interface {
	SubmitAlert(context.Context, *SubmitAlertRequest) (*IncidentResponse, error)
	IngestMessage(context.Context, *IngestMessageRequest) (*IngestMessageResponse, error)
	Investigate(context.Context, *IncidentRequest) (*IncidentResponse, error)
	GetIncident(context.Context, *IncidentRequest) (*IncidentResponse, error)
	ListIncidents(context.Context, *ListIncidentsRequest) (*ListIncidentsResponse, error)
	Converse(context.Context, *ConverseRequest) (*ReplyResponse, error)
	Ask(context.Context, *AskRequest) (*ReplyResponse, error)
	RunTask(context.Context, *RunTaskRequest) (*ReplyResponse, error)
	Remediate(context.Context, *RemediateRequest) (*RemediateResponse, error)
	Decide(context.Context, *DecideRequest) (*DecideResponse, error)
	PendingApprovals(context.Context, *PendingApprovalsRequest) (*PendingApprovalsResponse, error)
	ResetSession(context.Context, *SessionRequest) (*SessionResponse, error)
	SessionInfo(context.Context, *SessionRequest) (*SessionResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Toggle(context.Context, *ToggleRequest) (*StatusResponse, error)
	Command(context.Context, *CommandRequest) (*ReplyResponse, error)
}

// OracleServiceDesc describes the oracle service for grpc.Server.RegisterService.
var OracleServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OracleServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SubmitAlert", OracleServer.SubmitAlert),
		unary("IngestMessage", OracleServer.IngestMessage),
		unary("Investigate", OracleServer.Investigate),
		unary("GetIncident", OracleServer.GetIncident),
		unary("ListIncidents", OracleServer.ListIncidents),
		unary("Converse", OracleServer.Converse),
		unary("Ask", OracleServer.Ask),
		unary("RunTask", OracleServer.RunTask),
		unary("Remediate", OracleServer.Remediate),
		unary("Decide", OracleServer.Decide),
		unary("PendingApprovals", OracleServer.PendingApprovals),
		unary("ResetSession", OracleServer.ResetSession),
		unary("SessionInfo", OracleServer.SessionInfo),
		unary("Status", OracleServer.Status),
		unary("Toggle", OracleServer.Toggle),
		unary("Command", OracleServer.Command),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "oracle/v1/oracle",
}

// RegisterOracleServer attaches srv to s.
func RegisterOracleServer(s grpc.ServiceRegistrar, srv OracleServer) {
	s.RegisterService(&OracleServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, call func(OracleServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(OracleServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(OracleServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// UnimplementedOracleServer answers every call with codes.Unimplemented.
type UnimplementedOracleServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedOracleServer) SubmitAlert(context.Context, *SubmitAlertRequest) (*IncidentResponse, error) {
	return nil, unimplemented("SubmitAlert")
}
func (UnimplementedOracleServer) IngestMessage(context.Context, *IngestMessageRequest) (*IngestMessageResponse, error) {
	return nil, unimplemented("IngestMessage")
}
func (UnimplementedOracleServer) Investigate(context.Context, *IncidentRequest) (*IncidentResponse, error) {
	return nil, unimplemented("Investigate")
}
func (UnimplementedOracleServer) GetIncident(context.Context, *IncidentRequest) (*IncidentResponse, error) {
	return nil, unimplemented("GetIncident")
}
func (UnimplementedOracleServer) ListIncidents(context.Context, *ListIncidentsRequest) (*ListIncidentsResponse, error) {
	return nil, unimplemented("ListIncidents")
}
func (UnimplementedOracleServer) Converse(context.Context, *ConverseRequest) (*ReplyResponse, error) {
	return nil, unimplemented("Converse")
}
func (UnimplementedOracleServer) Ask(context.Context, *AskRequest) (*ReplyResponse, error) {
	return nil, unimplemented("Ask")
}
func (UnimplementedOracleServer) RunTask(context.Context, *RunTaskRequest) (*ReplyResponse, error) {
	return nil, unimplemented("RunTask")
}
func (UnimplementedOracleServer) Remediate(context.Context, *RemediateRequest) (*RemediateResponse, error) {
	return nil, unimplemented("Remediate")
}
func (UnimplementedOracleServer) Decide(context.Context, *DecideRequest) (*DecideResponse, error) {
	return nil, unimplemented("Decide")
}
func (UnimplementedOracleServer) PendingApprovals(context.Context, *PendingApprovalsRequest) (*PendingApprovalsResponse, error) {
	return nil, unimplemented("PendingApprovals")
}
func (UnimplementedOracleServer) ResetSession(context.Context, *SessionRequest) (*SessionResponse, error) {
	return nil, unimplemented("ResetSession")
}
func (UnimplementedOracleServer) SessionInfo(context.Context, *SessionRequest) (*SessionResponse, error) {
	return nil, unimplemented("SessionInfo")
}
func (UnimplementedOracleServer) Status(context.Context, *StatusRequest) (*StatusResponse, error) {
	return nil, unimplemented("Status")
}
func (UnimplementedOracleServer) Toggle(context.Context, *ToggleRequest) (*StatusResponse, error) {
	return nil, unimplemented("Toggle")
}
func (UnimplementedOracleServer) Command(context.Context, *CommandRequest) (*ReplyResponse, error) {
	return nil, unimplemented("Command")
}

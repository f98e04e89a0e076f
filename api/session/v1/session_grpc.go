package sessionv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "authcore.session.v1.SessionService"

const (
	SessionService_SignIn_FullMethodName         = "/authcore.session.v1.SessionService/SignIn"
	SessionService_Refresh_FullMethodName        = "/authcore.session.v1.SessionService/Refresh"
	SessionService_Revoke_FullMethodName         = "/authcore.session.v1.SessionService/Revoke"
	SessionService_RevokeAll_FullMethodName      = "/authcore.session.v1.SessionService/RevokeAll"
	SessionService_DeactivateUser_FullMethodName = "/authcore.session.v1.SessionService/DeactivateUser"
)

// SessionServiceServer is the server API for SessionService.
type SessionServiceServer interface {
	SignIn(context.Context, *SignInRequest) (*TokenResponse, error)
	Refresh(context.Context, *RefreshRequest) (*TokenResponse, error)
	Revoke(context.Context, *RevokeRequest) (*RevokeResponse, error)
	RevokeAll(context.Context, *RevokeAllRequest) (*RevokeAllResponse, error)
	DeactivateUser(context.Context, *DeactivateUserRequest) (*DeactivateUserResponse, error)
}

// UnimplementedSessionServiceServer returns Unimplemented for every method.
type UnimplementedSessionServiceServer struct{}

func (UnimplementedSessionServiceServer) SignIn(context.Context, *SignInRequest) (*TokenResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SignIn not implemented")
}
func (UnimplementedSessionServiceServer) Refresh(context.Context, *RefreshRequest) (*TokenResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Refresh not implemented")
}
func (UnimplementedSessionServiceServer) Revoke(context.Context, *RevokeRequest) (*RevokeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Revoke not implemented")
}
func (UnimplementedSessionServiceServer) RevokeAll(context.Context, *RevokeAllRequest) (*RevokeAllResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RevokeAll not implemented")
}
func (UnimplementedSessionServiceServer) DeactivateUser(context.Context, *DeactivateUserRequest) (*DeactivateUserResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DeactivateUser not implemented")
}

// decode unmarshals the request into a protobuf message and copies it into x.
func decode(dec func(interface{}) error, x wireMessage) error {
	m := newMessage(x.protoName())
	if err := dec(m); err != nil {
		return err
	}
	x.load(m)
	return nil
}

// encode converts a handler response into the protobuf message sent on the wire.
func encode(resp interface{}, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	x, ok := resp.(wireMessage)
	if !ok {
		return nil, status.Errorf(codes.Internal, "unexpected response type %T", resp)
	}
	return toProto(x), nil
}

// RegisterSessionServiceServer registers srv on s.
func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&SessionService_ServiceDesc, srv)
}

func _SessionService_SignIn_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SignInRequest)
	if err := decode(dec, in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return encode(srv.(SessionServiceServer).SignIn(ctx, in))
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SessionService_SignIn_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SessionServiceServer).SignIn(ctx, req.(*SignInRequest))
	}
	return encode(interceptor(ctx, in, info, handler))
}

func _SessionService_Refresh_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RefreshRequest)
	if err := decode(dec, in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return encode(srv.(SessionServiceServer).Refresh(ctx, in))
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SessionService_Refresh_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SessionServiceServer).Refresh(ctx, req.(*RefreshRequest))
	}
	return encode(interceptor(ctx, in, info, handler))
}

func _SessionService_Revoke_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RevokeRequest)
	if err := decode(dec, in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return encode(srv.(SessionServiceServer).Revoke(ctx, in))
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SessionService_Revoke_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SessionServiceServer).Revoke(ctx, req.(*RevokeRequest))
	}
	return encode(interceptor(ctx, in, info, handler))
}

func _SessionService_RevokeAll_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RevokeAllRequest)
	if err := decode(dec, in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return encode(srv.(SessionServiceServer).RevokeAll(ctx, in))
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SessionService_RevokeAll_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SessionServiceServer).RevokeAll(ctx, req.(*RevokeAllRequest))
	}
	return encode(interceptor(ctx, in, info, handler))
}

func _SessionService_DeactivateUser_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DeactivateUserRequest)
	if err := decode(dec, in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return encode(srv.(SessionServiceServer).DeactivateUser(ctx, in))
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SessionService_DeactivateUser_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SessionServiceServer).DeactivateUser(ctx, req.(*DeactivateUserRequest))
	}
	return encode(interceptor(ctx, in, info, handler))
}

// SessionService_ServiceDesc is the grpc.ServiceDesc for SessionService.
var SessionService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SignIn", Handler: _SessionService_SignIn_Handler},
		{MethodName: "Refresh", Handler: _SessionService_Refresh_Handler},
		{MethodName: "Revoke", Handler: _SessionService_Revoke_Handler},
		{MethodName: "RevokeAll", Handler: _SessionService_RevokeAll_Handler},
		{MethodName: "DeactivateUser", Handler: _SessionService_DeactivateUser_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "authcore/session/v1/session.proto",
}

// SessionServiceClient is the client API for SessionService.
type SessionServiceClient interface {
	SignIn(ctx context.Context, in *SignInRequest, opts ...grpc.CallOption) (*TokenResponse, error)
	Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*TokenResponse, error)
	Revoke(ctx context.Context, in *RevokeRequest, opts ...grpc.CallOption) (*RevokeResponse, error)
	RevokeAll(ctx context.Context, in *RevokeAllRequest, opts ...grpc.CallOption) (*RevokeAllResponse, error)
	DeactivateUser(ctx context.Context, in *DeactivateUserRequest, opts ...grpc.CallOption) (*DeactivateUserResponse, error)
}

type sessionServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSessionServiceClient(cc grpc.ClientConnInterface) SessionServiceClient {
	return &sessionServiceClient{cc}
}

func (c *sessionServiceClient) invoke(ctx context.Context, method string, in, out wireMessage, opts []grpc.CallOption) error {
	reply := newMessage(out.protoName())
	if err := c.cc.Invoke(ctx, method, toProto(in), reply, opts...); err != nil {
		return err
	}
	out.load(reply)
	return nil
}

func (c *sessionServiceClient) SignIn(ctx context.Context, in *SignInRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	out := new(TokenResponse)
	if err := c.invoke(ctx, SessionService_SignIn_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sessionServiceClient) Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	out := new(TokenResponse)
	if err := c.invoke(ctx, SessionService_Refresh_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sessionServiceClient) Revoke(ctx context.Context, in *RevokeRequest, opts ...grpc.CallOption) (*RevokeResponse, error) {
	out := new(RevokeResponse)
	if err := c.invoke(ctx, SessionService_Revoke_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sessionServiceClient) RevokeAll(ctx context.Context, in *RevokeAllRequest, opts ...grpc.CallOption) (*RevokeAllResponse, error) {
	out := new(RevokeAllResponse)
	if err := c.invoke(ctx, SessionService_RevokeAll_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sessionServiceClient) DeactivateUser(ctx context.Context, in *DeactivateUserRequest, opts ...grpc.CallOption) (*DeactivateUserResponse, error) {
	out := new(DeactivateUserResponse)
	if err := c.invoke(ctx, SessionService_DeactivateUser_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

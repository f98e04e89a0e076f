package handler

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	sessionv1 "authcore/api/session/v1"
	devicedomain "authcore/internal/device/domain"
	policyengine "authcore/internal/policy/engine"
	"authcore/internal/server/interceptors"
	"authcore/internal/session/service"
	userdomain "authcore/internal/user/domain"
)

// Engine is the session lifecycle the server exposes. Implemented by service.Engine.
type Engine interface {
	SignIn(ctx context.Context, email, password string, device devicedomain.Fingerprint) (*service.TokenPair, error)
	Refresh(ctx context.Context, rawRefreshToken string, device devicedomain.Fingerprint) (*service.TokenPair, error)
	Revoke(ctx context.Context, rawRefreshToken string) error
	RevokeAll(ctx context.Context, userID int64) (int64, error)
	DeactivateUser(ctx context.Context, userID int64) error
}

// UserLookup resolves the target of RevokeAll and DeactivateUser.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*userdomain.User, error)
}

// Server implements SessionService.
// Proto: authcore.session.v1.SessionService → internal/session/handler.
type Server struct {
	sessionv1.UnimplementedSessionServiceServer
	engine Engine
	users  UserLookup
	authz  policyengine.Authorizer
	log    *zap.Logger
}

// NewServer returns a SessionService server. When engine is nil every RPC returns Unimplemented.
func NewServer(engine Engine, users UserLookup, authz policyengine.Authorizer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{engine: engine, users: users, authz: authz, log: log.Named("session_handler")}
}

// PublicMethods are the SessionService RPCs callable without a Bearer token.
func PublicMethods() map[string]bool {
	return map[string]bool{
		sessionv1.SessionService_SignIn_FullMethodName:  true,
		sessionv1.SessionService_Refresh_FullMethodName: true,
		sessionv1.SessionService_Revoke_FullMethodName:  true,
	}
}

// ProtectedMethods are the RPCs gated by the sessions policy.
func ProtectedMethods() map[string]bool {
	return map[string]bool{
		sessionv1.SessionService_RevokeAll_FullMethodName:      true,
		sessionv1.SessionService_DeactivateUser_FullMethodName: true,
	}
}

// SignIn verifies credentials and returns a new token pair for the calling device.
func (s *Server) SignIn(ctx context.Context, req *sessionv1.SignInRequest) (*sessionv1.TokenResponse, error) {
	if s.engine == nil {
		return nil, status.Error(codes.Unimplemented, "method SignIn not implemented")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	pair, err := s.engine.SignIn(ctx, req.Email, req.Password, s.device(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return tokenResponse(pair), nil
}

// Refresh rotates the session behind the refresh token.
func (s *Server) Refresh(ctx context.Context, req *sessionv1.RefreshRequest) (*sessionv1.TokenResponse, error) {
	if s.engine == nil {
		return nil, status.Error(codes.Unimplemented, "method Refresh not implemented")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	pair, err := s.engine.Refresh(ctx, req.RefreshToken, s.device(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return tokenResponse(pair), nil
}

// Revoke signs out the session behind the refresh token.
func (s *Server) Revoke(ctx context.Context, req *sessionv1.RevokeRequest) (*sessionv1.RevokeResponse, error) {
	if s.engine == nil {
		return nil, status.Error(codes.Unimplemented, "method Revoke not implemented")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.engine.Revoke(ctx, req.RefreshToken); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &sessionv1.RevokeResponse{}, nil
}

// RevokeAll signs the target user out of every device. Requires the allow_revoke_all decision.
func (s *Server) RevokeAll(ctx context.Context, req *sessionv1.RevokeAllRequest) (*sessionv1.RevokeAllResponse, error) {
	if s.engine == nil {
		return nil, status.Error(codes.Unimplemented, "method RevokeAll not implemented")
	}
	if req == nil {
		req = &sessionv1.RevokeAllRequest{}
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	targetID, err := s.authorize(ctx, policyengine.ActionRevokeAll, req.UserID)
	if err != nil {
		return nil, err
	}
	n, err := s.engine.RevokeAll(ctx, targetID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &sessionv1.RevokeAllResponse{Revoked: n}, nil
}

// DeactivateUser soft-deletes the target user. Requires the allow_deactivate decision.
func (s *Server) DeactivateUser(ctx context.Context, req *sessionv1.DeactivateUserRequest) (*sessionv1.DeactivateUserResponse, error) {
	if s.engine == nil {
		return nil, status.Error(codes.Unimplemented, "method DeactivateUser not implemented")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	targetID, err := s.authorize(ctx, policyengine.ActionDeactivate, req.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.engine.DeactivateUser(ctx, targetID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &sessionv1.DeactivateUserResponse{}, nil
}

// authorize resolves the caller and target (0 means the caller) and asks the policy.
// It returns the target id on success and a status error otherwise.
func (s *Server) authorize(ctx context.Context, action policyengine.Action, targetID int64) (int64, error) {
	actorID, ok := interceptors.GetUserID(ctx)
	if !ok {
		return 0, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	actorRole, _ := interceptors.GetRole(ctx)
	if targetID == 0 {
		targetID = actorID
	}
	if s.users == nil || s.authz == nil {
		return 0, status.Error(codes.Unimplemented, "authorization is not configured")
	}
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		s.log.Error("load target user failed", zap.Int64("user_id", targetID), zap.Error(err))
		return 0, status.Error(codes.Internal, "internal error")
	}
	if target == nil {
		return 0, status.Error(codes.NotFound, "user not found")
	}
	allowed, err := s.authz.Allow(ctx, action,
		policyengine.Subject{UserID: actorID, Role: actorRole},
		policyengine.Subject{UserID: target.ID, Role: string(target.Role)})
	if err != nil {
		s.log.Error("policy evaluation failed", zap.String("action", string(action)), zap.Error(err))
		return 0, status.Error(codes.Internal, "internal error")
	}
	if !allowed {
		return 0, status.Error(codes.PermissionDenied, "not allowed")
	}
	return target.ID, nil
}

func (s *Server) device(ctx context.Context) devicedomain.Fingerprint {
	return devicedomain.NewFingerprint(
		sanitizeUserAgent(interceptors.UserAgent(ctx)),
		normalizeIP(interceptors.ClientIP(ctx)),
	)
}

func tokenResponse(p *service.TokenPair) *sessionv1.TokenResponse {
	return &sessionv1.TokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresIn:    p.ExpiresIn,
	}
}

// Package sessionv1 defines the authcore.session.v1.SessionService contract from session.proto:
// request and response messages, the gRPC service descriptor and the client. Messages are
// encoded as protobuf by grpc's default codec.
package sessionv1

type SignInRequest struct {
	Email    string `json:"email,omitempty" validate:"required,email,max=254"`
	Password string `json:"password,omitempty" validate:"required,max=72"`
}

func (x *SignInRequest) GetEmail() string {
	if x != nil {
		return x.Email
	}
	return ""
}

func (x *SignInRequest) GetPassword() string {
	if x != nil {
		return x.Password
	}
	return ""
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty" validate:"required"`
}

func (x *RefreshRequest) GetRefreshToken() string {
	if x != nil {
		return x.RefreshToken
	}
	return ""
}

// TokenResponse is returned by SignIn and Refresh. ExpiresIn is the access token lifetime in seconds.
type TokenResponse struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

func (x *TokenResponse) GetAccessToken() string {
	if x != nil {
		return x.AccessToken
	}
	return ""
}

func (x *TokenResponse) GetRefreshToken() string {
	if x != nil {
		return x.RefreshToken
	}
	return ""
}

func (x *TokenResponse) GetExpiresIn() int64 {
	if x != nil {
		return x.ExpiresIn
	}
	return 0
}

type RevokeRequest struct {
	RefreshToken string `json:"refresh_token,omitempty" validate:"required"`
}

func (x *RevokeRequest) GetRefreshToken() string {
	if x != nil {
		return x.RefreshToken
	}
	return ""
}

type RevokeResponse struct{}

// RevokeAllRequest signs a user out everywhere. UserID 0 means the caller.
type RevokeAllRequest struct {
	UserID int64 `json:"user_id,omitempty" validate:"gte=0"`
}

func (x *RevokeAllRequest) GetUserID() int64 {
	if x != nil {
		return x.UserID
	}
	return 0
}

type RevokeAllResponse struct {
	Revoked int64 `json:"revoked,omitempty"`
}

func (x *RevokeAllResponse) GetRevoked() int64 {
	if x != nil {
		return x.Revoked
	}
	return 0
}

type DeactivateUserRequest struct {
	UserID int64 `json:"user_id,omitempty" validate:"gt=0"`
}

func (x *DeactivateUserRequest) GetUserID() int64 {
	if x != nil {
		return x.UserID
	}
	return 0
}

type DeactivateUserResponse struct{}

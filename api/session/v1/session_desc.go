package sessionv1

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

const protoPackage = "authcore.session.v1"

// File_authcore_session_v1_session_proto is the descriptor of session.proto, built in Go and
// registered in protoregistry.GlobalFiles. Keep it in sync with session.proto.
var File_authcore_session_v1_session_proto = buildFile()

func buildFile() protoreflect.FileDescriptor {
	str := descriptorpb.FieldDescriptorProto_TYPE_STRING
	i64 := descriptorpb.FieldDescriptorProto_TYPE_INT64
	fdp := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("authcore/session/v1/session.proto"),
		Package: proto.String(protoPackage),
		Syntax:  proto.String("proto3"),
		Options: &descriptorpb.FileOptions{GoPackage: proto.String("authcore/api/session/v1;sessionv1")},
		MessageType: []*descriptorpb.DescriptorProto{
			message("SignInRequest", field("email", 1, str), field("password", 2, str)),
			message("RefreshRequest", field("refresh_token", 1, str)),
			message("TokenResponse", field("access_token", 1, str), field("refresh_token", 2, str), field("expires_in", 3, i64)),
			message("RevokeRequest", field("refresh_token", 1, str)),
			message("RevokeResponse"),
			message("RevokeAllRequest", field("user_id", 1, i64)),
			message("RevokeAllResponse", field("revoked", 1, i64)),
			message("DeactivateUserRequest", field("user_id", 1, i64)),
			message("DeactivateUserResponse"),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("SessionService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("SignIn", "SignInRequest", "TokenResponse"),
				method("Refresh", "RefreshRequest", "TokenResponse"),
				method("Revoke", "RevokeRequest", "RevokeResponse"),
				method("RevokeAll", "RevokeAllRequest", "RevokeAllResponse"),
				method("DeactivateUser", "DeactivateUserRequest", "DeactivateUserResponse"),
			},
		}},
	}
	fd, err := protodesc.NewFile(fdp, nil)
	if err != nil {
		panic(fmt.Sprintf("sessionv1: build descriptor: %v", err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("sessionv1: register descriptor: %v", err))
	}
	return fd
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func field(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func method(name, in, out string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String("." + protoPackage + "." + in),
		OutputType: proto.String("." + protoPackage + "." + out),
	}
}

// wireMessage is implemented by every message struct. fill copies the struct into a dynamic
// protobuf message of the same name; load copies back.
type wireMessage interface {
	protoName() protoreflect.Name
	fill(m protoreflect.Message)
	load(m protoreflect.Message)
}

func newMessage(name protoreflect.Name) *dynamicpb.Message {
	md := File_authcore_session_v1_session_proto.Messages().ByName(name)
	if md == nil {
		panic("sessionv1: unknown message " + string(name))
	}
	return dynamicpb.NewMessage(md)
}

// toProto returns x as a proto.Message for the wire.
func toProto(x wireMessage) proto.Message {
	m := newMessage(x.protoName())
	x.fill(m)
	return m
}

func setString(m protoreflect.Message, name protoreflect.Name, v string) {
	if v != "" {
		m.Set(m.Descriptor().Fields().ByName(name), protoreflect.ValueOfString(v))
	}
}

func setInt64(m protoreflect.Message, name protoreflect.Name, v int64) {
	if v != 0 {
		m.Set(m.Descriptor().Fields().ByName(name), protoreflect.ValueOfInt64(v))
	}
}

func getString(m protoreflect.Message, name protoreflect.Name) string {
	return m.Get(m.Descriptor().Fields().ByName(name)).String()
}

func getInt64(m protoreflect.Message, name protoreflect.Name) int64 {
	return m.Get(m.Descriptor().Fields().ByName(name)).Int()
}

func (*SignInRequest) protoName() protoreflect.Name { return "SignInRequest" }
func (x *SignInRequest) fill(m protoreflect.Message) {
	setString(m, "email", x.GetEmail())
	setString(m, "password", x.GetPassword())
}
func (x *SignInRequest) load(m protoreflect.Message) {
	x.Email = getString(m, "email")
	x.Password = getString(m, "password")
}

func (*RefreshRequest) protoName() protoreflect.Name { return "RefreshRequest" }
func (x *RefreshRequest) fill(m protoreflect.Message) {
	setString(m, "refresh_token", x.GetRefreshToken())
}
func (x *RefreshRequest) load(m protoreflect.Message) {
	x.RefreshToken = getString(m, "refresh_token")
}

func (*TokenResponse) protoName() protoreflect.Name { return "TokenResponse" }
func (x *TokenResponse) fill(m protoreflect.Message) {
	setString(m, "access_token", x.GetAccessToken())
	setString(m, "refresh_token", x.GetRefreshToken())
	setInt64(m, "expires_in", x.GetExpiresIn())
}
func (x *TokenResponse) load(m protoreflect.Message) {
	x.AccessToken = getString(m, "access_token")
	x.RefreshToken = getString(m, "refresh_token")
	x.ExpiresIn = getInt64(m, "expires_in")
}

func (*RevokeRequest) protoName() protoreflect.Name { return "RevokeRequest" }
func (x *RevokeRequest) fill(m protoreflect.Message) {
	setString(m, "refresh_token", x.GetRefreshToken())
}
func (x *RevokeRequest) load(m protoreflect.Message) {
	x.RefreshToken = getString(m, "refresh_token")
}

func (*RevokeResponse) protoName() protoreflect.Name { return "RevokeResponse" }
func (*RevokeResponse) fill(protoreflect.Message) {}
func (*RevokeResponse) load(protoreflect.Message) {}

func (*RevokeAllRequest) protoName() protoreflect.Name { return "RevokeAllRequest" }
func (x *RevokeAllRequest) fill(m protoreflect.Message) {
	setInt64(m, "user_id", x.GetUserID())
}
func (x *RevokeAllRequest) load(m protoreflect.Message) {
	x.UserID = getInt64(m, "user_id")
}

func (*RevokeAllResponse) protoName() protoreflect.Name { return "RevokeAllResponse" }
func (x *RevokeAllResponse) fill(m protoreflect.Message) {
	setInt64(m, "revoked", x.GetRevoked())
}
func (x *RevokeAllResponse) load(m protoreflect.Message) {
	x.Revoked = getInt64(m, "revoked")
}

func (*DeactivateUserRequest) protoName() protoreflect.Name { return "DeactivateUserRequest" }
func (x *DeactivateUserRequest) fill(m protoreflect.Message) {
	setInt64(m, "user_id", x.GetUserID())
}
func (x *DeactivateUserRequest) load(m protoreflect.Message) {
	x.UserID = getInt64(m, "user_id")
}

func (*DeactivateUserResponse) protoName() protoreflect.Name { return "DeactivateUserResponse" }
func (*DeactivateUserResponse) fill(protoreflect.Message) {}
func (*DeactivateUserResponse) load(protoreflect.Message) {}

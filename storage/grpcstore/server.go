package grpcstore

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/netmap/digest"
	"xdao.co/netmap/storage"
)

// Server exposes a storage.Store over the Store gRPC service.
type Server struct {
	UnimplementedStoreServer
	Store storage.Store
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get(KeyMetadata)
	if len(vals) != 1 {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidKey.Error())
	}
	key, err := parseKey(vals[0])
	if err != nil {
		return nil, err
	}
	if err := s.Store.Put(key, in.GetValue()); err != nil {
		return nil, mapErr(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	key, err := parseKey(in.GetValue())
	if err != nil {
		return nil, err
	}
	b, err := s.Store.Get(key)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	key, err := parseKey(in.GetValue())
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bool(s.Store.Has(key)), nil
}

func (s *Server) Keys(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	keys, err := s.Store.Keys()
	if err != nil {
		return nil, mapErr(err)
	}
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(keys))}
	for _, k := range keys {
		out.Values = append(out.Values, structpb.NewStringValue(k.String()))
	}
	return out, nil
}

func parseKey(s string) (digest.SecureHash, error) {
	key, err := digest.Parse(s)
	if err != nil || key.IsZero() {
		return digest.Zero, status.Error(codes.InvalidArgument, storage.ErrInvalidKey.Error())
	}
	return key, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidKey):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrHashMismatch):
		return status.Error(codes.DataLoss, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

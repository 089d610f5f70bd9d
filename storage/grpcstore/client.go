// Package grpcstore serves a storage.Store over gRPC and provides the
// matching client, so several registry processes can share one backend.
package grpcstore

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/netmap/digest"
	"xdao.co/netmap/storage"
)

// Client implements storage.Store over a Store gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client StoreClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ storage.Store = (*Client)(nil)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
		dialOpts = append(dialOpts, grpc.WithBlock())
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

// NewClient wraps an existing connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewStoreClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Put(key digest.SecureHash, value []byte) error {
	if err := storage.CheckKey(key); err != nil {
		return err
	}
	ctx, cancel := c.ctx()
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, KeyMetadata, key.String())
	_, err := c.client.Put(ctx, wrapperspb.Bytes(value))
	return mapRPC(err)
}

func (c *Client) Get(key digest.SecureHash) ([]byte, error) {
	if err := storage.CheckKey(key); err != nil {
		return nil, err
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Get(ctx, wrapperspb.String(key.String()))
	if err != nil {
		return nil, mapRPC(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) Has(key digest.SecureHash) bool {
	if key.IsZero() {
		return false
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Has(ctx, wrapperspb.String(key.String()))
	if err != nil {
		return false
	}
	return reply.GetValue()
}

func (c *Client) Keys() ([]digest.SecureHash, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Keys(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, mapRPC(err)
	}
	out := make([]digest.SecureHash, 0, len(reply.GetValues()))
	for _, v := range reply.GetValues() {
		h, err := digest.Parse(v.GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("grpcstore: bad key from server: %w", err)
		}
		out = append(out, h)
	}
	return out, nil
}

func (c *Client) ctx() (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.Timeout)
}

package codec

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
)

// #region client-struct
// CodecClient is a prompt.Selector backed by a remote Selector service.
type CodecClient struct {
	conn   *grpc.ClientConn
	client SelectorServiceClient
}

// #endregion client-struct

// #region constructor
// NewCodecClient connects to a Selector service. The connection is lazy;
// a bad address surfaces on the first Select.
func NewCodecClient(addr string, opts ...grpc.DialOption) (*CodecClient, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &CodecClient{
		conn:   conn,
		client: NewSelectorServiceClient(conn),
	}, nil
}

// NewCodecClientWithService creates a CodecClient with an injected service
// implementation. Used for testing without a real gRPC connection.
func NewCodecClientWithService(svc SelectorServiceClient) *CodecClient {
	return &CodecClient{client: svc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *CodecClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region select
// Select asks the remote service for a prompt.
func (c *CodecClient) Select(ctx context.Context, tier domain.Tier, topic string, isRefresh bool) (string, error) {
	req, err := encodeRequest(tier, topic, isRefresh)
	if err != nil {
		return "", fmt.Errorf("encode select request: %w", err)
	}

	resp, err := c.client.Select(ctx, req)
	if err != nil {
		return "", fmt.Errorf("select rpc: %w", err)
	}

	text := resp.GetFields()["text"].GetStringValue()
	if text == "" {
		return "", errors.New("select rpc: empty prompt in response")
	}
	return text, nil
}

// #endregion select

package codec

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/prompt"
)

// #region service-desc
// ServiceName is the fully qualified gRPC service name.
const ServiceName = "promptforge.codec.v1.Selector"

const selectMethod = "/" + ServiceName + "/Select"

// SelectorServer is the server side of the Selector service. Requests and
// responses are google.protobuf.Struct messages:
//
//	request:  {"tier": "tier1", "topic": "...", "is_refresh": false}
//	response: {"text": "...", "tier": "tier1"}
type SelectorServer interface {
	Select(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// SelectorServiceClient is the client side of the Selector service.
type SelectorServiceClient interface {
	Select(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

var selectorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SelectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Select", Handler: selectHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "promptforge/codec/v1/selector.proto",
}

func selectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SelectorServer).Select(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: selectMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SelectorServer).Select(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type selectorServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSelectorServiceClient wraps a connection in the Selector client stub.
func NewSelectorServiceClient(cc grpc.ClientConnInterface) SelectorServiceClient {
	return &selectorServiceClient{cc: cc}
}

func (c *selectorServiceClient) Select(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, selectMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion service-desc

// #region server
// Server exposes a prompt.Selector over gRPC.
type Server struct {
	selector prompt.Selector
	logger   zerolog.Logger
}

// RegisterSelectorServer registers sel on s and returns the service
// implementation.
func RegisterSelectorServer(s *grpc.Server, sel prompt.Selector, logger zerolog.Logger) *Server {
	srv := &Server{selector: sel, logger: logger.With().Str("component", "codec_server").Logger()}
	s.RegisterService(&selectorServiceDesc, srv)
	return srv
}

// Select decodes the request, runs the selector and encodes its text.
func (s *Server) Select(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tier, topic, isRefresh, err := decodeRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	text, err := s.selector.Select(ctx, tier, topic, isRefresh)
	if err != nil {
		s.logger.Error().Err(err).Str("tier", tier.String()).Msg("select")
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, status.Errorf(codes.Internal, "select %s: %v", tier, err)
	}
	s.logger.Debug().Str("tier", tier.String()).Bool("is_refresh", isRefresh).Msg("selected")

	return structpb.NewStruct(map[string]interface{}{
		"text": text,
		"tier": tier.String(),
	})
}

// #endregion server

// #region encoding
func encodeRequest(tier domain.Tier, topic string, isRefresh bool) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"tier":       tier.String(),
		"topic":      topic,
		"is_refresh": isRefresh,
	})
}

func decodeRequest(req *structpb.Struct) (domain.Tier, string, bool, error) {
	fields := req.GetFields()
	tierName := fields["tier"].GetStringValue()
	tier, err := domain.ParseTier(tierName)
	if err != nil || !tier.Valid() {
		return domain.TierNone, "", false, fmt.Errorf("tier %q is not a prompt tier", tierName)
	}
	return tier, fields["topic"].GetStringValue(), fields["is_refresh"].GetBoolValue(), nil
}

// #endregion encoding

package codec

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/prompt"
)

// #region mock
type mockSelectorService struct {
	lastReq *structpb.Struct
	resp    *structpb.Struct
	err     error
}

func (m *mockSelectorService) Select(_ context.Context, req *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.lastReq = req
	return m.resp, m.err
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

// #endregion mock

// #region constructor-tests
func TestNewCodecClientLazyConnect(t *testing.T) {
	client, err := NewCodecClient("localhost:0")
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	defer client.Close()
}

func TestCloseWithoutConn(t *testing.T) {
	c := NewCodecClientWithService(&mockSelectorService{})
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// #endregion constructor-tests

// #region select-tests
func TestSelect_Success(t *testing.T) {
	mock := &mockSelectorService{resp: mustStruct(t, map[string]interface{}{"text": "You are a planner for a bakery."})}
	c := NewCodecClientWithService(mock)

	text, err := c.Select(context.Background(), domain.Tier2, "a bakery", true)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if text != "You are a planner for a bakery." {
		t.Fatalf("text = %q", text)
	}
	f := mock.lastReq.GetFields()
	if f["tier"].GetStringValue() != "tier2" || f["topic"].GetStringValue() != "a bakery" || !f["is_refresh"].GetBoolValue() {
		t.Fatalf("unexpected request: %v", mock.lastReq)
	}
}

func TestSelect_Errors(t *testing.T) {
	c := NewCodecClientWithService(&mockSelectorService{err: errors.New("unavailable")})
	if _, err := c.Select(context.Background(), domain.Tier1, "x", false); err == nil {
		t.Fatal("expected rpc error")
	}

	c = NewCodecClientWithService(&mockSelectorService{resp: mustStruct(t, map[string]interface{}{})})
	if _, err := c.Select(context.Background(), domain.Tier1, "x", false); err == nil {
		t.Fatal("expected error for empty response")
	}
}

// #endregion select-tests

// #region bufconn-tests
func startServer(t *testing.T, sel prompt.Selector) *CodecClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterSelectorServer(srv, sel, zerolog.Nop())
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	c, err := NewCodecClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewCodecClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRoundTripMatchesLocalSelector(t *testing.T) {
	cat, err := prompt.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	local := prompt.NewTemplateSelector(cat, 1)
	c := startServer(t, prompt.NewTemplateSelector(cat, 1))

	for _, tier := range []domain.Tier{domain.Tier1, domain.Tier2, domain.Tier3} {
		want, err := local.Select(context.Background(), tier, "a habit tracker", false)
		if err != nil {
			t.Fatalf("local Select: %v", err)
		}
		got, err := c.Select(context.Background(), tier, "a habit tracker", false)
		if err != nil {
			t.Fatalf("remote Select(%s): %v", tier, err)
		}
		if got != want {
			t.Fatalf("%s: remote %q != local %q", tier, got, want)
		}
	}
}

func TestServerRejectsBadTier(t *testing.T) {
	cat, err := prompt.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	c := startServer(t, prompt.NewTemplateSelector(cat, 1))

	_, err = c.Select(context.Background(), domain.TierNone, "x", false)
	if status.Code(errors.Unwrap(err)) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestServerSelectorFailure(t *testing.T) {
	failing := prompt.SelectorFunc(func(context.Context, domain.Tier, string, bool) (string, error) {
		return "", errors.New("catalog missing")
	})
	c := startServer(t, failing)

	_, err := c.Select(context.Background(), domain.Tier1, "x", false)
	if status.Code(errors.Unwrap(err)) != codes.Internal || !strings.Contains(err.Error(), "catalog missing") {
		t.Fatalf("expected Internal error, got %v", err)
	}
}

// #endregion bufconn-tests

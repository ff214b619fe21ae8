package quoter

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/pkg/evmclient"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type callParams struct {
	Data string `json:"data"`
}

// quoterServer answers quoteExactInputSingle, reverting with a retryable
// "SPL" message whenever amountIn exceeds splThreshold, and slot0 with a
// fixed sqrtPriceX96.
type quoterServer struct {
	splThreshold *big.Int
	alwaysFail   bool
	sqrtPriceX96 *big.Int
}

func (s *quoterServer) handler(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}

	switch req.Method {
	case "eth_chainId":
		resp["result"] = "0x1"
	case "eth_call":
		var p callParams
		_ = json.Unmarshal(req.Params[0], &p)
		data, _ := hex.DecodeString(p.Data[2:])
		selector := hex.EncodeToString(data[:4])

		switch selector {
		case hex.EncodeToString(quoterABI.Methods["quoteExactInputSingle"].ID):
			vals, err := quoterABI.Methods["quoteExactInputSingle"].Inputs.Unpack(data[4:])
			if err != nil {
				resp["error"] = map[string]interface{}{"code": -32000, "message": "bad args"}
				break
			}
			paramsStruct := vals[0]
			amountIn := extractAmountIn(paramsStruct)

			if s.alwaysFail || (s.splThreshold != nil && amountIn.Cmp(s.splThreshold) > 0) {
				resp["error"] = map[string]interface{}{"code": 3, "message": "execution reverted: SPL"}
				break
			}
			out, _ := quoterABI.Methods["quoteExactInputSingle"].Outputs.Pack(amountIn, big.NewInt(0), uint32(0), big.NewInt(21000))
			resp["result"] = "0x" + hex.EncodeToString(out)
		case hex.EncodeToString(poolABI.Methods["slot0"].ID):
			out, _ := poolABI.Methods["slot0"].Outputs.Pack(s.sqrtPriceX96, int32(0), uint16(0), uint16(0), uint16(0), uint8(0), true)
			resp["result"] = "0x" + hex.EncodeToString(out)
		default:
			resp["error"] = map[string]interface{}{"code": -32601, "message": "unknown selector"}
		}
	default:
		resp["error"] = map[string]interface{}{"code": -32601, "message": "unsupported"}
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func extractAmountIn(v interface{}) *big.Int {
	rv := v.(struct {
		TokenIn           common.Address
		TokenOut          common.Address
		AmountIn          *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	})
	return rv.AmountIn
}

type fixedClientSource struct {
	client *evmclient.Client
}

func (f fixedClientSource) GetClient(ctx context.Context, chainID uint64) (*evmclient.Client, error) {
	return f.client, nil
}

func dialTestServer(t *testing.T, s *quoterServer) *evmclient.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(s.handler))
	t.Cleanup(srv.Close)
	c, err := evmclient.Dial(context.Background(), 1, srv.URL, evmclient.KindHTTP, logger.New("test"))
	if err != nil {
		t.Fatalf("dial test server: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func testVenue() domain.ResolvedVenue {
	return domain.ResolvedVenue{
		VenueConfig: domain.VenueConfig{
			Name:   "uniV3-500",
			Quoter: "0x0000000000000000000000000000000000cafe",
			Fee:    500,
		},
		PoolAddress: "0x0000000000000000000000000000000000beef",
	}
}

func TestQuoteSucceedsDirectly(t *testing.T) {
	s := &quoterServer{sqrtPriceX96: big.NewInt(1 << 40)}
	client := dialTestServer(t, s)
	mesh := New(fixedClientSource{client: client}, logger.New("test"))

	out, err := mesh.QuoteExactInputSingle(context.Background(), 1, testVenue(), "0x1000000000000000000000000000000000000a", "0x2000000000000000000000000000000000000b", big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("expected echoed amountOut=1000000, got %s", out)
	}
}

func TestQuoteHalvesAndScalesOnRetryableError(t *testing.T) {
	s := &quoterServer{splThreshold: big.NewInt(300_000), sqrtPriceX96: big.NewInt(1 << 40)}
	client := dialTestServer(t, s)
	mesh := New(fixedClientSource{client: client}, logger.New("test"))

	out, err := mesh.QuoteExactInputSingle(context.Background(), 1, testVenue(), "0x1000000000000000000000000000000000000a", "0x2000000000000000000000000000000000000b", big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 1_000_000 halves to 500_000 (still fails), then 250_000 (succeeds, echoed back).
	// scaled = 250_000 * 1_000_000 / 250_000 = 1_000_000
	if out.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("expected scaled amountOut=1000000, got %s", out)
	}
}

func TestQuoteSaturatesAndBacksOff(t *testing.T) {
	s := &quoterServer{alwaysFail: true, sqrtPriceX96: big.NewInt(1 << 40)}
	client := dialTestServer(t, s)
	mesh := New(fixedClientSource{client: client}, logger.New("test"))

	out, err := mesh.QuoteExactInputSingle(context.Background(), 1, testVenue(), "0x1000000000000000000000000000000000000a", "0x2000000000000000000000000000000000000b", big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("expected silent zero on saturation, got error: %v", err)
	}
	if out.Sign() != 0 {
		t.Fatalf("expected 0 on saturation, got %s", out)
	}

	// Still within backoff window: a fresh call returns 0 without calling the server again.
	out2, err := mesh.QuoteExactInputSingle(context.Background(), 1, testVenue(), "0x1000000000000000000000000000000000000a", "0x2000000000000000000000000000000000000b", big.NewInt(1_000_000))
	if err != nil || out2.Sign() != 0 {
		t.Fatalf("expected continued backoff silence, got out=%v err=%v", out2, err)
	}
}

func TestSqrtPriceLimitCandidatesOrderByDirection(t *testing.T) {
	s := &quoterServer{sqrtPriceX96: big.NewInt(5000)}
	client := dialTestServer(t, s)
	mesh := New(fixedClientSource{client: client}, logger.New("test"))

	candidates, err := mesh.sqrtPriceLimitCandidates(context.Background(), 1, testVenue(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates (no configured limit), got %d", len(candidates))
	}
	if candidates[0].Sign() != 0 {
		t.Fatalf("expected first candidate to be the no-limit 0 value, got %s", candidates[0])
	}
	last := candidates[len(candidates)-1]
	if last.Cmp(big.NewInt(4999)) != 0 {
		t.Fatalf("expected last candidate to be slot0-1=4999 for zeroForOne, got %s", last)
	}
}

func TestBackoffDoublesUpToMax(t *testing.T) {
	mesh := New(fixedClientSource{}, logger.New("test"))
	key := "test-key"
	mesh.recordSaturation(key)
	first := mesh.saturation[key].backoff
	if first != saturationBackoffStart {
		t.Fatalf("expected initial backoff %s, got %s", saturationBackoffStart, first)
	}
	mesh.saturation[key].until = time.Time{} // mimic an expired window; recordSaturation doubles on every repeat call
	mesh.recordSaturation(key)
	if mesh.saturation[key].backoff != saturationBackoffStart*2 {
		t.Fatalf("expected backoff to double to %s, got %s", saturationBackoffStart*2, mesh.saturation[key].backoff)
	}
	for i := 0; i < 10; i++ {
		mesh.recordSaturation(key)
	}
	if mesh.saturation[key].backoff != saturationBackoffMax {
		t.Fatalf("expected backoff capped at %s, got %s", saturationBackoffMax, mesh.saturation[key].backoff)
	}
}

package oracle

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

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

// feedServer is a minimal JSON-RPC mock answering eth_call by 4-byte
// selector, letting PriceUSD/SequencerOK be exercised without a live node.
type feedServer struct {
	latestRoundDataErr bool
	roundID            *big.Int
	answer             *big.Int
	startedAt          *big.Int
	updatedAt          *big.Int
	answeredInRound    *big.Int
	decimals           uint8
}

func (s *feedServer) handler(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

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
		case hex.EncodeToString(aggregatorABI.Methods["latestRoundData"].ID):
			if s.latestRoundDataErr {
				resp["error"] = map[string]interface{}{"code": -32000, "message": "execution reverted"}
				break
			}
			out, err := aggregatorABI.Methods["latestRoundData"].Outputs.Pack(
				s.roundID, s.answer, s.startedAt, s.updatedAt, s.answeredInRound)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			resp["result"] = "0x" + hex.EncodeToString(out)
		case hex.EncodeToString(aggregatorABI.Methods["latestAnswer"].ID):
			out, _ := aggregatorABI.Methods["latestAnswer"].Outputs.Pack(s.answer)
			resp["result"] = "0x" + hex.EncodeToString(out)
		case hex.EncodeToString(aggregatorABI.Methods["latestTimestamp"].ID):
			out, _ := aggregatorABI.Methods["latestTimestamp"].Outputs.Pack(s.updatedAt)
			resp["result"] = "0x" + hex.EncodeToString(out)
		case hex.EncodeToString(aggregatorABI.Methods["decimals"].ID):
			out, _ := aggregatorABI.Methods["decimals"].Outputs.Pack(s.decimals)
			resp["result"] = "0x" + hex.EncodeToString(out)
		default:
			resp["error"] = map[string]interface{}{"code": -32601, "message": "unknown selector"}
		}
	default:
		resp["error"] = map[string]interface{}{"code": -32601, "message": fmt.Sprintf("unsupported method %s", req.Method)}
	}

	_ = json.NewEncoder(w).Encode(resp)
}

type fixedClientSource struct {
	client *evmclient.Client
}

func (f fixedClientSource) GetClient(ctx context.Context, chainID uint64) (*evmclient.Client, error) {
	return f.client, nil
}

func dialTestServer(t *testing.T, s *feedServer) *evmclient.Client {
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

var testChain = domain.ChainConfig{ChainID: 1, Name: "test", RPCURL: "unused"}
var wethToken = domain.TokenInfo{Address: "0x0000000000000000000000000000000000dEaD", Decimals: 18, FeedAddress: "0x0000000000000000000000000000000000fEEd"}

func TestPriceUSDFreshFeed(t *testing.T) {
	now := big.NewInt(time.Now().Unix())
	s := &feedServer{
		roundID:         big.NewInt(100),
		answer:          big.NewInt(250000000000), // $2500 at 8 decimals
		startedAt:       now,
		updatedAt:       now,
		answeredInRound: big.NewInt(100),
		decimals:        8,
	}
	client := dialTestServer(t, s)
	cache := New(fixedClientSource{client: client}, logger.New("test"))

	res, err := cache.PriceUSD(context.Background(), testChain, wethToken)
	if err != nil {
		t.Fatalf("PriceUSD: %v", err)
	}
	if res.Stale {
		t.Fatalf("expected fresh price, got stale")
	}
	if res.Price < 2499 || res.Price > 2501 {
		t.Fatalf("expected ~2500, got %f", res.Price)
	}
}

func TestPriceUSDStaleWhenAnswerZero(t *testing.T) {
	now := big.NewInt(time.Now().Unix())
	s := &feedServer{
		roundID:         big.NewInt(100),
		answer:          big.NewInt(0),
		startedAt:       now,
		updatedAt:       now,
		answeredInRound: big.NewInt(100),
		decimals:        8,
	}
	client := dialTestServer(t, s)
	cache := New(fixedClientSource{client: client}, logger.New("test"))

	res, err := cache.PriceUSD(context.Background(), testChain, wethToken)
	if err != nil {
		t.Fatalf("PriceUSD: %v", err)
	}
	if !res.Stale {
		t.Fatalf("expected stale result when answer <= 0")
	}
}

func TestPriceUSDFallsBackToLegacy(t *testing.T) {
	now := big.NewInt(time.Now().Unix())
	s := &feedServer{
		latestRoundDataErr: true,
		answer:             big.NewInt(100000000000), // $1000
		updatedAt:          now,
		decimals:           8,
	}
	client := dialTestServer(t, s)
	cache := New(fixedClientSource{client: client}, logger.New("test"))

	res, err := cache.PriceUSD(context.Background(), testChain, wethToken)
	if err != nil {
		t.Fatalf("PriceUSD: %v", err)
	}
	if res.Stale {
		t.Fatalf("expected fresh legacy price")
	}
	if res.Price < 999 || res.Price > 1001 {
		t.Fatalf("expected ~1000, got %f", res.Price)
	}
}

func TestSequencerOKHealthy(t *testing.T) {
	now := time.Now()
	s := &feedServer{
		roundID:         big.NewInt(1),
		answer:          big.NewInt(0),
		startedAt:       big.NewInt(now.Add(-10 * time.Minute).Unix()),
		updatedAt:       big.NewInt(now.Unix()),
		answeredInRound: big.NewInt(1),
		decimals:        8,
	}
	client := dialTestServer(t, s)
	cache := New(fixedClientSource{client: client}, logger.New("test"))

	chain := testChain
	chain.SequencerFeedAddress = "0x0000000000000000000000000000000000cafe"

	ok, err := cache.SequencerOK(context.Background(), chain, time.Minute, 10*time.Minute)
	if err != nil {
		t.Fatalf("SequencerOK: %v", err)
	}
	if !ok {
		t.Fatalf("expected sequencer healthy")
	}
}

func TestSequencerDownWhenAnswerNonZero(t *testing.T) {
	now := time.Now()
	s := &feedServer{
		roundID:         big.NewInt(1),
		answer:          big.NewInt(1),
		startedAt:       big.NewInt(now.Add(-10 * time.Minute).Unix()),
		updatedAt:       big.NewInt(now.Unix()),
		answeredInRound: big.NewInt(1),
		decimals:        8,
	}
	client := dialTestServer(t, s)
	cache := New(fixedClientSource{client: client}, logger.New("test"))

	chain := testChain
	chain.SequencerFeedAddress = "0x0000000000000000000000000000000000cafe"

	ok, err := cache.SequencerOK(context.Background(), chain, time.Minute, 10*time.Minute)
	if err != nil {
		t.Fatalf("SequencerOK: %v", err)
	}
	if ok {
		t.Fatalf("expected sequencer unhealthy when answer != 0")
	}
}

func TestSequencerNotConfiguredIsHealthy(t *testing.T) {
	cache := New(fixedClientSource{}, logger.New("test"))
	ok, err := cache.SequencerOK(context.Background(), testChain, time.Minute, 10*time.Minute)
	if err != nil {
		t.Fatalf("SequencerOK: %v", err)
	}
	if !ok {
		t.Fatalf("expected healthy when no sequencer feed configured")
	}
}

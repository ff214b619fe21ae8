package solver

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/dimajoyti/aave-sentinel/internal/control"
	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/internal/oracle"
	"github.com/dimajoyti/aave-sentinel/pkg/evmclient"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

const testAggregatorABIJSON = `[
	{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`

var testAggregatorABI abi.ABI

func init() {
	var err error
	testAggregatorABI, err = abi.JSON(strings.NewReader(testAggregatorABIJSON))
	if err != nil {
		panic(err)
	}
}

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type callParams struct {
	Data string `json:"data"`
}

// feedAndGasServer answers eth_gasPrice plus latestRoundData for any feed
// address, always reporting priceUSD regardless of which feed was dialed,
// enough to exercise the solver's gas-to-USD and base-price conversions
// without a live node.
type feedAndGasServer struct {
	gasPriceWei *big.Int
	answerUSD8  *big.Int // 8-decimal Chainlink answer
}

func (s *feedAndGasServer) handler(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}

	switch req.Method {
	case "eth_chainId":
		resp["result"] = "0x1"
	case "eth_gasPrice":
		resp["result"] = "0x" + s.gasPriceWei.Text(16)
	case "eth_call":
		var p callParams
		_ = json.Unmarshal(req.Params[0], &p)
		data, _ := hex.DecodeString(p.Data[2:])
		selector := hex.EncodeToString(data[:4])
		switch selector {
		case hex.EncodeToString(testAggregatorABI.Methods["latestRoundData"].ID):
			out, _ := testAggregatorABI.Methods["latestRoundData"].Outputs.Pack(
				big.NewInt(1), s.answerUSD8, big.NewInt(1), big.NewInt(4102444800), big.NewInt(1))
			resp["result"] = "0x" + hex.EncodeToString(out)
		default:
			resp["error"] = map[string]interface{}{"code": -32601, "message": "unknown selector"}
		}
	default:
		resp["error"] = map[string]interface{}{"code": -32601, "message": "unsupported"}
	}
	_ = json.NewEncoder(w).Encode(resp)
}

type fixedClientSource struct {
	client *evmclient.Client
}

func (f fixedClientSource) GetClient(ctx context.Context, chainID uint64) (*evmclient.Client, error) {
	return f.client, nil
}

func dialTestServer(t *testing.T, s *feedAndGasServer) *evmclient.Client {
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

// fixedQuoter always quotes amountIn*ratioNum/ratioDen, letting tests pin an
// exact round-trip outcome without a live quoter mesh.
type fixedQuoter struct {
	sellRatioNum, sellRatioDen int64
	buyRatioNum, buyRatioDen   int64
}

func (q *fixedQuoter) QuoteExactInputSingle(ctx context.Context, chainID uint64, venue domain.ResolvedVenue, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	var num, den int64
	if venue.Name == "sell" {
		num, den = q.sellRatioNum, q.sellRatioDen
	} else {
		num, den = q.buyRatioNum, q.buyRatioDen
	}
	out := new(big.Int).Mul(amountIn, big.NewInt(num))
	out.Div(out, big.NewInt(den))
	return out, nil
}

// noOpGraph never has a fresh sample, so the solver's pre-filter always lets
// the edge through to the live quote, and Suggest always returns the
// default PrimaryTier.
type noOpGraph struct{}

func (noOpGraph) Primary(pairID, venueName string) (domain.DepthPoint, bool) {
	return domain.DepthPoint{}, false
}

func (noOpGraph) Suggest(pairID, venueName string, maxSlippageBps int64) domain.DepthTier {
	return domain.PrimaryTier
}

func testChain() domain.ChainConfig {
	return domain.ChainConfig{ChainID: 1, Name: "test", EthUsdFeedAddress: "0x0000000000000000000000000000000000feed"}
}

func testPair() domain.ResolvedPair {
	return domain.ResolvedPair{
		PairConfig: domain.PairConfig{
			ChainID:        1,
			PairID:         "WETH/USDC",
			Base:           domain.TokenInfo{Address: "0xa", Decimals: 18, FeedAddress: "0x0000000000000000000000000000000000feed"},
			Quote:          domain.TokenInfo{Address: "0xb", Decimals: 6},
			TradeSize:      1.0,
			MinNetUSD:      1,
			MinPnlMultiple: 0.001,
		},
		Venues: []domain.ResolvedVenue{
			{VenueConfig: domain.VenueConfig{Name: "sell"}, PoolAddress: "0xpool1"},
			{VenueConfig: domain.VenueConfig{Name: "buy"}, PoolAddress: "0xpool2"},
		},
	}
}

func TestSolveAcceptsProfitableRoundTrip(t *testing.T) {
	server := &feedAndGasServer{gasPriceWei: big.NewInt(1), answerUSD8: big.NewInt(250000000000)} // $2500
	client := dialTestServer(t, server)

	q := &fixedQuoter{sellRatioNum: 3000, sellRatioDen: 1, buyRatioNum: 1, buyRatioDen: 2900} // sell 1 WETH -> 3000 USDC, buy back 3000/2900 WETH > 1
	s := New(q, noOpGraph{}, oracle.New(fixedClientSource{client: client}, logger.New("test")), fixedClientSource{client: client}, control.New(nil, logger.New("test")), logger.New("test"))

	edges, err := s.Solve(context.Background(), testChain(), testPair(), 10, 1, 0.001)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if len(edges) == 0 {
		t.Fatalf("expected at least one profitable edge")
	}
	edge := edges[0]
	if edge.Source != domain.EdgeSingleHop {
		t.Fatalf("expected single-hop source, got %s", edge.Source)
	}
	if len(edge.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(edge.Legs))
	}
	if edge.EstNetUSD <= 0 {
		t.Fatalf("expected positive net usd, got %f", edge.EstNetUSD)
	}
}

func TestSolveRejectsUnprofitableRoundTrip(t *testing.T) {
	server := &feedAndGasServer{gasPriceWei: big.NewInt(1), answerUSD8: big.NewInt(250000000000)}
	client := dialTestServer(t, server)

	// Buys back strictly less than was sold: never profitable.
	q := &fixedQuoter{sellRatioNum: 3000, sellRatioDen: 1, buyRatioNum: 1, buyRatioDen: 3100}
	s := New(q, noOpGraph{}, oracle.New(fixedClientSource{client: client}, logger.New("test")), fixedClientSource{client: client}, control.New(nil, logger.New("test")), logger.New("test"))

	edges, err := s.Solve(context.Background(), testChain(), testPair(), 10, 1, 0.001)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if len(edges) != 0 {
		t.Fatalf("expected no edges from an unprofitable round trip, got %d", len(edges))
	}
}

func TestSolveSkipsPairWithTooFewVenues(t *testing.T) {
	server := &feedAndGasServer{gasPriceWei: big.NewInt(1), answerUSD8: big.NewInt(250000000000)}
	client := dialTestServer(t, server)

	q := &fixedQuoter{sellRatioNum: 3000, sellRatioDen: 1, buyRatioNum: 1, buyRatioDen: 2900}
	s := New(q, noOpGraph{}, oracle.New(fixedClientSource{client: client}, logger.New("test")), fixedClientSource{client: client}, control.New(nil, logger.New("test")), logger.New("test"))

	pair := testPair()
	pair.Venues = pair.Venues[:1]
	edges, err := s.Solve(context.Background(), testChain(), pair, 10, 1, 0.001)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if edges != nil {
		t.Fatalf("expected nil edges for a pair below the viable-venue floor, got %v", edges)
	}
}

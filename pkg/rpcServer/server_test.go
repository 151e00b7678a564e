package rpcServer

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Layr-Labs/feeledger/internal/config"
	"github.com/Layr-Labs/feeledger/internal/logger"
	"github.com/Layr-Labs/feeledger/internal/metrics"
	"github.com/Layr-Labs/feeledger/internal/metrics/metricsTypes"
	sqliteTests "github.com/Layr-Labs/feeledger/internal/tests/sqlite"
	"github.com/Layr-Labs/feeledger/pkg/access"
	"github.com/Layr-Labs/feeledger/pkg/clients/ethereum"
	"github.com/Layr-Labs/feeledger/pkg/eventBus"
	"github.com/Layr-Labs/feeledger/pkg/ledger"
	"github.com/Layr-Labs/feeledger/pkg/ledgerService"
	storagePostgres "github.com/Layr-Labs/feeledger/pkg/storage/postgres"
	"github.com/Layr-Labs/feeledger/pkg/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	governance = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	treasury   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	feeSource  = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	alice      = common.HexToAddress("0x0000000000000000000000000000000000000a11")
)

type testServer struct {
	handler http.Handler
	blocks  *ethereum.ManualBlockSource
	bank    *token.MemoryBank
	metrics *recordingMetrics
}

type recordedMetric struct {
	name   string
	labels map[string]string
}

type recordingMetrics struct {
	mu      sync.Mutex
	counted []recordedMetric
}

func (m *recordingMetrics) Incr(name string, labels []metricsTypes.MetricsLabel, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	values := make(map[string]string, len(labels))
	for _, label := range labels {
		values[label.Name] = label.Value
	}
	m.counted = append(m.counted, recordedMetric{name: name, labels: values})
	return nil
}

func (m *recordingMetrics) Gauge(name string, value float64, labels []metricsTypes.MetricsLabel) error {
	return nil
}

func (m *recordingMetrics) Timing(name string, value time.Duration, labels []metricsTypes.MetricsLabel) error {
	return nil
}

func (m *recordingMetrics) httpPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0)
	for _, c := range m.counted {
		if c.name == metricsTypes.Metric_Incr_HttpRequest {
			paths = append(paths, c.labels["path"])
		}
	}
	return paths
}

func setup(t *testing.T) *testServer {
	debug := os.Getenv(config.Debug) == "true"
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: debug})
	require.Nil(t, err)

	_, grm, err := sqliteTests.GetInMemorySqliteDatabaseConnection(l)
	require.Nil(t, err)
	store := storagePostgres.NewPostgresLedgerStore(grm, l)

	guard := access.NewStaticGuard(governance, feeSource)
	lg, err := ledgerService.OpenLedger(&ledger.Params{
		GenesisBlock:    0,
		EpochDuration:   1000,
		MinimumStake:    big.NewInt(1),
		TreasuryAddress: treasury,
	}, guard, store, l)
	require.Nil(t, err)

	bank := token.NewMemoryBank(l)
	bank.Mint(alice, big.NewInt(1000))
	bank.Mint(feeSource, big.NewInt(1000))

	blocks := ethereum.NewManualBlockSource(0)
	recorder := &recordingMetrics{}
	sink, err := metrics.NewMetricsSink(&metrics.MetricsSinkConfig{}, []metricsTypes.IMetricsClient{recorder})
	require.Nil(t, err)

	svc := ledgerService.NewService(lg, store, bank, blocks, eventBus.NewEventBus(l), sink, l)
	svc.Start()
	t.Cleanup(svc.Close)

	srv := NewRpcServer(&RpcServerConfig{HttpPort: 0}, svc, sink, l)
	return &testServer{handler: srv.Handler(), blocks: blocks, bank: bank, metrics: recorder}
}

func (ts *testServer) do(method string, path string, caller *common.Address, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		req.Header.Set(CallerHeader, caller.Hex())
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) *T {
	var v T
	require.Nil(t, json.NewDecoder(rec.Body).Decode(&v))
	return &v
}

func Test_RpcServer(t *testing.T) {
	t.Run("Should stake and return the call receipt", func(t *testing.T) {
		ts := setup(t)
		ts.blocks.SetBlock(100)

		rec := ts.do(http.MethodPost, "/v1/stake", &alice, &AmountRequest{Amount: "100"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(RequestIdHeader))

		res := decode[CallResponse](t, rec)
		assert.NotEmpty(t, res.CallId)
		assert.Equal(t, rec.Header().Get(RequestIdHeader), res.RequestId)
		assert.Equal(t, uint64(100), res.Block)
		assert.Equal(t, uint64(1), res.Epoch)
		assert.Equal(t, "100", res.Pull)
		require.Len(t, res.Events, 1)
		assert.Equal(t, string(ledger.EventName_Staked), res.Events[0].Name)

		assert.Equal(t, "900", ts.bank.BalanceOf(alice).String())
	})
	t.Run("Should accept exponent amounts", func(t *testing.T) {
		ts := setup(t)
		ts.blocks.SetBlock(100)

		rec := ts.do(http.MethodPost, "/v1/stake", &alice, &AmountRequest{Amount: "1e2"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "100", decode[CallResponse](t, rec).Pull)
	})
	t.Run("Should reject a call without a caller", func(t *testing.T) {
		ts := setup(t)

		rec := ts.do(http.MethodPost, "/v1/stake", nil, &AmountRequest{Amount: "100"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		res := decode[ErrorResponse](t, rec)
		assert.False(t, res.Revert)
		assert.Contains(t, res.Error, CallerHeader)
	})
	t.Run("Should reject malformed amounts", func(t *testing.T) {
		ts := setup(t)

		for _, amount := range []string{"abc", "-5", "1.5"} {
			rec := ts.do(http.MethodPost, "/v1/stake", &alice, &AmountRequest{Amount: amount})
			assert.Equal(t, http.StatusBadRequest, rec.Code, amount)
			assert.False(t, decode[ErrorResponse](t, rec).Revert)
		}
	})
	t.Run("Should reject amounts with huge exponents", func(t *testing.T) {
		ts := setup(t)
		ts.blocks.SetBlock(100)

		done := make(chan *httptest.ResponseRecorder, 1)
		go func() {
			done <- ts.do(http.MethodPost, "/v1/stake", &alice, &AmountRequest{Amount: "1e500000000"})
		}()
		select {
		case rec := <-done:
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, decode[ErrorResponse](t, rec).Revert)
		case <-time.After(5 * time.Second):
			t.Fatal("amount parsing did not return")
		}
		assert.Equal(t, "1000", ts.bank.BalanceOf(alice).String())
	})
	t.Run("Should reject unknown body fields", func(t *testing.T) {
		ts := setup(t)

		rec := ts.do(http.MethodPost, "/v1/stake", &alice, map[string]string{"amount": "1", "extra": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("Should map ledger reverts to bad request", func(t *testing.T) {
		ts := setup(t)
		ts.blocks.SetBlock(100)

		rec := ts.do(http.MethodPost, "/v1/stake", &alice, &AmountRequest{Amount: "0"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		res := decode[ErrorResponse](t, rec)
		assert.True(t, res.Revert)
		assert.Equal(t, ledger.ErrBelowMinimumStake.Error(), res.Error)

		rec = ts.do(http.MethodPost, "/v1/unstake", &alice, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, ledger.ErrNotAStaker.Error(), decode[ErrorResponse](t, rec).Error)
	})
	t.Run("Should forbid governance calls from other callers", func(t *testing.T) {
		ts := setup(t)
		ts.blocks.SetBlock(5000)

		rec := ts.do(http.MethodPost, "/v1/dao/harvest/paginated", &alice, &TillRequest{Till: 2})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.True(t, decode[ErrorResponse](t, rec).Revert)
	})
	t.Run("Should harvest deposited fees", func(t *testing.T) {
		ts := setup(t)
		ts.blocks.SetBlock(100)
		require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/v1/stake", &alice, &AmountRequest{Amount: "100"}).Code)
		ts.blocks.SetBlock(1500)
		require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/v1/fees", &feeSource, &AmountRequest{Amount: "400"}).Code)

		ts.blocks.SetBlock(3500)
		rec := ts.do(http.MethodGet, "/v1/participants/"+alice.Hex(), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		view := decode[ParticipantResponse](t, rec)
		assert.True(t, view.Exists)
		assert.Equal(t, "100", view.Principal)
		assert.Equal(t, "400", view.PendingReward)
		assert.Equal(t, uint64(4), view.CurrentEpoch)

		rec = ts.do(http.MethodPost, "/v1/harvest", &alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		res := decode[CallResponse](t, rec)
		assert.Equal(t, "400", res.Reward)
		assert.Equal(t, "400", res.Payout)
		assert.Equal(t, "1300", ts.bank.BalanceOf(alice).String())

		rec = ts.do(http.MethodGet, "/v1/participants/"+alice.Hex()+"/events?limit=10", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		events := decode[[]*StoredEventResponse](t, rec)
		assert.Len(t, *events, 2)
	})
	t.Run("Should answer epoch queries", func(t *testing.T) {
		ts := setup(t)
		ts.blocks.SetBlock(4000)

		rec := ts.do(http.MethodGet, "/v1/epoch", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, uint64(5), decode[EpochResponse](t, rec).Epoch)

		rec = ts.do(http.MethodGet, "/v1/epoch?from=0&to=2999", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, uint64(3), decode[EpochResponse](t, rec).Epoch)

		rec = ts.do(http.MethodGet, "/v1/epoch?from=10", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = ts.do(http.MethodGet, "/v1/epoch?from=10&to=5", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.True(t, decode[ErrorResponse](t, rec).Revert)

		rec = ts.do(http.MethodGet, "/v1/epochs/2", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		detail := decode[EpochDetailResponse](t, rec)
		assert.Equal(t, uint64(2), detail.Epoch)
		assert.Equal(t, "0", detail.RewardBucket)
		assert.True(t, detail.WeightClosed)

		rec = ts.do(http.MethodGet, "/v1/epochs/abc", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("Should report the treasury", func(t *testing.T) {
		ts := setup(t)

		rec := ts.do(http.MethodGet, "/v1/treasury", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		res := decode[TreasuryResponse](t, rec)
		assert.Equal(t, treasury.Hex(), res.Address)
		assert.Equal(t, "0", res.ClaimedTotal)
	})
	t.Run("Should report health", func(t *testing.T) {
		ts := setup(t)

		rec := ts.do(http.MethodGet, "/v1/health", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)
	})
	t.Run("Should answer CORS preflight requests", func(t *testing.T) {
		ts := setup(t)

		req := httptest.NewRequest(http.MethodOptions, "/v1/stake", nil)
		req.Header.Set("Origin", "https://example.org")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", CallerHeader)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})
	t.Run("Should return not found for unknown routes", func(t *testing.T) {
		ts := setup(t)

		rec := ts.do(http.MethodGet, "/v1/nope", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
	t.Run("Should label request metrics with the route template", func(t *testing.T) {
		ts := setup(t)
		ts.blocks.SetBlock(100)

		require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/v1/epochs/2", nil, nil).Code)
		require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/v1/participants/"+alice.Hex(), nil, nil).Code)
		require.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/v1/nope", nil, nil).Code)

		assert.Equal(t, []string{
			"/v1/epochs/{epoch}",
			"/v1/participants/{address}",
			"unmatched",
		}, ts.metrics.httpPaths())
	})
	t.Run("Should refuse a route with the wrong method", func(t *testing.T) {
		ts := setup(t)

		rec := ts.do(http.MethodGet, "/v1/stake", &alice, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

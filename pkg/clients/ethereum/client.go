package ethereum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Layr-Labs/feeledger/internal/config"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      uint   `json:"id"`
}

type RPCError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint           `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

var jsonRPCVersion = "2.0"

// BlockSource reports the chain height a ledger call lands at.
type BlockSource interface {
	LatestBlock(ctx context.Context) (uint64, error)
}

type Client struct {
	Logger       *zap.Logger
	httpClient   *http.Client
	clientConfig *EthereumClientConfig
	// backoffs are the seconds slept between retries of a failed call
	backoffs []int
}

type EthereumClientConfig struct {
	BaseUrl        string
	RequestTimeout time.Duration
}

func ConvertGlobalConfigToEthereumConfig(cfg *config.EthereumRpcConfig) *EthereumClientConfig {
	return &EthereumClientConfig{
		BaseUrl:        cfg.BaseUrl,
		RequestTimeout: 5 * time.Second,
	}
}

func NewClient(cfg *EthereumClientConfig, l *zap.Logger) *Client {
	client := &http.Client{
		Timeout: time.Second * 10,
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}

	l.Sugar().Infow("Creating new Ethereum client", zap.String("baseUrl", cfg.BaseUrl))

	return &Client{
		httpClient:   client,
		Logger:       l,
		clientConfig: cfg,
		backoffs:     []int{1, 3, 5, 10},
	}
}

func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) SetBackoffs(backoffs []int) {
	c.backoffs = backoffs
}

func GetBlockNumberRequest(id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  "eth_blockNumber",
		ID:      id,
	}
}

func (c *Client) GetBlockNumber(ctx context.Context) (uint64, error) {
	res, err := c.Call(ctx, GetBlockNumberRequest(1))
	if err != nil {
		return 0, err
	}

	blockNumber := strings.ReplaceAll(string(res.Result), "\"", "")
	blockNumberUint64, err := hexutil.DecodeUint64(blockNumber)
	if err != nil {
		c.Logger.Sugar().Errorw("failed to decode block number",
			zap.Error(err),
			zap.String("raw response", string(res.Result)),
		)
		return 0, err
	}
	return blockNumberUint64, nil
}

func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	return c.GetBlockNumber(ctx)
}

func (c *Client) call(ctx context.Context, rpcRequest *RPCRequest) (*RPCResponse, error) {
	requestBody, err := json.Marshal(rpcRequest)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.clientConfig.RequestTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.clientConfig.BaseUrl, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received http error code %+v", response.StatusCode)
	}

	destination := &RPCResponse{}
	if err := json.Unmarshal(responseBody, destination); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if destination.Error != nil {
		return nil, fmt.Errorf("received error response: %+v", destination.Error)
	}
	return destination, nil
}

// Call sends the request, retrying with backoff until it succeeds or ctx ends.
func (c *Client) Call(ctx context.Context, rpcRequest *RPCRequest) (*RPCResponse, error) {
	res, err := c.call(ctx, rpcRequest)
	if err == nil {
		return res, nil
	}

	for _, backoff := range c.backoffs {
		c.Logger.Sugar().Errorw("Failed to call",
			zap.Error(err),
			zap.Int("backoffSecs", backoff),
			zap.String("method", rpcRequest.Method),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second * time.Duration(backoff)):
		}

		res, err = c.call(ctx, rpcRequest)
		if err == nil {
			c.Logger.Sugar().Infow("Successfully called after backoff",
				zap.Int("backoffSecs", backoff),
				zap.String("method", rpcRequest.Method),
			)
			return res, nil
		}
	}
	c.Logger.Sugar().Errorw("Exceeded retries for Call", zap.String("method", rpcRequest.Method), zap.Error(err))
	return nil, fmt.Errorf("exceeded retries for %s: %w", rpcRequest.Method, err)
}

// ManualBlockSource is a BlockSource whose height is set by hand, used when
// no chain node is configured and in tests.
type ManualBlockSource struct {
	mu    sync.Mutex
	block uint64
}

func NewManualBlockSource(block uint64) *ManualBlockSource {
	return &ManualBlockSource{block: block}
}

func (m *ManualBlockSource) LatestBlock(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.block, nil
}

func (m *ManualBlockSource) SetBlock(block uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block = block
}

// TickingBlockSource produces one block every blockTime starting from start,
// standing in for a chain during local runs.
type TickingBlockSource struct {
	start     uint64
	startedAt time.Time
	blockTime time.Duration
	now       func() time.Time
}

func NewTickingBlockSource(start uint64, blockTime time.Duration) *TickingBlockSource {
	if blockTime <= 0 {
		blockTime = 12 * time.Second
	}
	return &TickingBlockSource{
		start:     start,
		startedAt: time.Now(),
		blockTime: blockTime,
		now:       time.Now,
	}
}

func (t *TickingBlockSource) LatestBlock(ctx context.Context) (uint64, error) {
	elapsed := t.now().Sub(t.startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return t.start + uint64(elapsed/t.blockTime), nil
}

package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"agent-marketplace/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

const defaultRetryDelay = 500 * time.Millisecond

// RPCError is an error object returned by the node. It is not retried.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Client reads the marketplace contract over Ethereum JSON-RPC.
type Client struct {
	url        string
	contract   string
	http       *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	retries    uint64
	retryDelay time.Duration
	nextID     atomic.Uint64
}

func NewClient(cfg config.IndexerConfig) *Client {
	limit := rate.Inf
	if cfg.RPCRateLimit > 0 {
		limit = rate.Limit(cfg.RPCRateLimit)
	}
	timeout := cfg.RPCTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:        cfg.RPCURL,
		contract:   cfg.ContractAddress,
		http:       &http.Client{},
		limiter:    rate.NewLimiter(limit, 5),
		timeout:    timeout,
		retries:    cfg.RPCRetries,
		retryDelay: defaultRetryDelay,
	}
}

// CurrentHeight returns the latest block number.
func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	var hexHeight string
	if err := c.call(ctx, "eth_blockNumber", []any{}, &hexHeight); err != nil {
		return 0, err
	}
	return parseQuantity(hexHeight)
}

// QueryEvents returns the decoded events of one kind emitted by the contract
// in [from, to], ordered by block then log index. Removed logs are dropped.
// Logs that cannot be decoded are logged and skipped since retrying cannot
// fix them.
func (c *Client) QueryEvents(ctx context.Context, kind Kind, from, to uint64) ([]Event, error) {
	filter := map[string]any{
		"address":   c.contract,
		"topics":    []any{Topic(kind)},
		"fromBlock": formatQuantity(from),
		"toBlock":   formatQuantity(to),
	}
	var logs []Log
	if err := c.call(ctx, "eth_getLogs", []any{filter}, &logs); err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := Decode(kind, l)
		if err != nil {
			log.Warn().Err(err).
				Str("kind", string(kind)).
				Str("tx_hash", l.TransactionHash).
				Str("block", l.BlockNumber).
				Msg("chain_log_undecodable")
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out, nil
}

// AgentReputation calls getAgentReputation(address) on the contract.
func (c *Client) AgentReputation(ctx context.Context, address string) (int64, error) {
	arg, err := encodeAddress(address)
	if err != nil {
		return 0, err
	}
	data := append(selectorOf(reputationCall), arg...)
	msg := map[string]any{
		"to":   c.contract,
		"data": "0x" + hex.EncodeToString(data),
	}
	var result string
	if err := c.call(ctx, "eth_call", []any{msg, "latest"}, &result); err != nil {
		return 0, err
	}
	raw, err := decodeHex(result)
	if err != nil {
		return 0, err
	}
	w, err := word(raw, 0)
	if err != nil {
		return 0, err
	}
	return uint256ToInt64(w)
}

// call retries transport failures with a constant delay. Node errors are
// returned as is.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	backoff := retry.WithMaxRetries(c.retries, retry.NewConstant(c.retryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.callOnce(ctx, method, params, out)
		if err == nil {
			return nil
		}
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) || ctx.Err() != nil {
			return err
		}
		log.Debug().Err(err).Str("method", method).Msg("rpc_call_retry")
		return retry.RetryableError(err)
	})
}

func (c *Client) callOnce(ctx context.Context, method string, params []any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if rr.Error != nil {
		return rr.Error
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

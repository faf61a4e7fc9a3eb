package chain

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"agent-marketplace/internal/config"
)

func uintWord(v *big.Int) string {
	b := make([]byte, wordSize)
	v.FillBytes(b)
	return hex.EncodeToString(b)
}

func intWord(v int64) string {
	n := big.NewInt(v)
	if v < 0 {
		n.Add(n, two256)
	}
	return uintWord(n)
}

func addrTopic(addr string) string {
	w, err := encodeAddress(addr)
	if err != nil {
		panic(err)
	}
	return "0x" + hex.EncodeToString(w)
}

func idTopic(id int64) string {
	return "0x" + uintWord(big.NewInt(id))
}

func stringTail(s string) string {
	padded := make([]byte, (len(s)+wordSize-1)/wordSize*wordSize)
	copy(padded, s)
	return intWord(int64(len(s))) + hex.EncodeToString(padded)
}

func itemListedLog(id int64, seller string, price *big.Int, itemData string, block, index uint64, hash string) Log {
	return Log{
		Topics:          []string{Topic(ItemListed), idTopic(id), addrTopic(seller)},
		Data:            "0x" + uintWord(price) + intWord(2*wordSize) + stringTail(itemData),
		BlockNumber:     formatQuantity(block),
		LogIndex:        formatQuantity(index),
		TransactionHash: hash,
	}
}

// fakeNode is a scripted JSON-RPC endpoint.
type fakeNode struct {
	t       *testing.T
	mu      sync.Mutex
	calls   map[string]int
	handler func(method string, params []json.RawMessage) (any, *RPCError, int)
}

func newFakeNode(t *testing.T, h func(method string, params []json.RawMessage) (any, *RPCError, int)) (*fakeNode, *Client) {
	t.Helper()
	n := &fakeNode{t: t, calls: map[string]int{}, handler: h}
	srv := httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(srv.Close)
	c := NewClient(config.IndexerConfig{
		RPCURL:          srv.URL,
		ContractAddress: "0xc0ffee0000000000000000000000000000000001",
		RPCTimeout:      time.Second,
		RPCRetries:      2,
	})
	c.retryDelay = time.Millisecond
	return n, c
}

func (n *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req struct {
		ID     uint64            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		n.t.Errorf("bad request body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.calls[req.Method]++
	n.mu.Unlock()

	result, rpcErr, status := n.handler(req.Method, req.Params)
	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

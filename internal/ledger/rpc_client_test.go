package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/medrex/medledger/pkg/config"
	"github.com/medrex/medledger/pkg/logger"
	"github.com/medrex/medledger/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContractAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

// fakeNode answers JSON-RPC requests from a per-method handler table
type fakeNode struct {
	mu       sync.Mutex
	handlers map[string]func(params []json.RawMessage) (interface{}, *RPCError)
	calls    map[string]int
	last     map[string][]json.RawMessage
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		handlers: make(map[string]func([]json.RawMessage) (interface{}, *RPCError)),
		calls:    make(map[string]int),
		last:     make(map[string][]json.RawMessage),
	}
}

func (f *fakeNode) handle(method string, h func(params []json.RawMessage) (interface{}, *RPCError)) {
	f.handlers[method] = h
}

func (f *fakeNode) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// param decodes a parameter of the most recent request for a method
func (f *fakeNode) param(method string, i int, dst interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	params := f.last[method]
	if i >= len(params) {
		return fmt.Errorf("%s: no parameter %d", method, i)
	}
	return json.Unmarshal(params[i], dst)
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req struct {
		ID     uint64            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.calls[req.Method]++
	f.last[req.Method] = req.Params
	h, ok := f.handlers[req.Method]
	f.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = &RPCError{Code: -32601, Message: "method not found"}
	} else if result, rpcErr := h(req.Params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func setupTestRPCClient(t *testing.T, node http.Handler) *RPCClient {
	t.Helper()
	server := httptest.NewServer(node)
	t.Cleanup(server.Close)

	contract, err := NewContract(testContractAddress)
	require.NoError(t, err)

	cfg := &config.LedgerConfig{RPCURL: server.URL, RequestTimeout: 5}
	return NewRPCClient(cfg, contract, logger.NewDiscard(), nil)
}

func word(n uint64) string {
	return fmt.Sprintf("%064x", n)
}

func abiString(s string) string {
	data := hex.EncodeToString([]byte(s))
	if pad := len(data) % 64; pad != 0 {
		data += strings.Repeat("0", 64-pad)
	}
	return word(uint64(len(s))) + data
}

func revertData(reason string) string {
	return "0x" + errorStringSelector + word(32) + abiString(reason)
}

func TestRPCClient_CallDecodesOutputs(t *testing.T) {
	node := newFakeNode()
	node.handle("eth_call", func([]json.RawMessage) (interface{}, *RPCError) {
		return "0x" + word(4), nil
	})
	client := setupTestRPCClient(t, node)

	out, err := client.Call(context.Background(), FnDoctorCount)
	require.NoError(t, err)

	n, err := decodeUint(out)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)

	var msg struct {
		To   string `json:"to"`
		Data string `json:"data"`
	}
	require.NoError(t, node.param("eth_call", 0, &msg))
	selector, err := client.Contract().Selector(FnDoctorCount)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(testContractAddress), msg.To)
	assert.Equal(t, selector, msg.Data)
}

func TestRPCClient_CallRevertSurfacesRPCError(t *testing.T) {
	node := newFakeNode()
	node.handle("eth_call", func([]json.RawMessage) (interface{}, *RPCError) {
		data, _ := json.Marshal(revertData("doctor not found"))
		return nil, &RPCError{Code: 3, Message: "execution reverted", Data: data}
	})
	client := setupTestRPCClient(t, node)

	_, err := client.Call(context.Background(), FnGetDoctorDetails, uint64(12))
	require.Error(t, err)

	rpcErr, ok := err.(*RPCError)
	require.True(t, ok)
	assert.Equal(t, "doctor not found", rpcErr.RevertReason())
	assert.True(t, isRevert(err))
}

func TestRPCClient_ServerErrorIsNetworkUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	contract, err := NewContract(testContractAddress)
	require.NoError(t, err)
	client := NewRPCClient(&config.LedgerConfig{RPCURL: server.URL, RequestTimeout: 5}, contract, logger.NewDiscard(), nil)

	_, err = client.Call(context.Background(), FnAdmin)
	assert.True(t, types.IsKind(err, types.KindNetworkUnavailable))
}

func TestRPCClient_ChainIDAndBalance(t *testing.T) {
	node := newFakeNode()
	node.handle("eth_chainId", func([]json.RawMessage) (interface{}, *RPCError) {
		return "0x539", nil
	})
	node.handle("eth_getBalance", func([]json.RawMessage) (interface{}, *RPCError) {
		return "0xde0b6b3a7640000", nil
	})
	client := setupTestRPCClient(t, node)

	id, err := client.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1337), id)

	bal, err := client.Balance(context.Background(), "0x00000000000000000000000000000000000000a1")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", bal.String())
}

func TestRPCClient_ReceiptPendingThenMined(t *testing.T) {
	node := newFakeNode()
	var mined atomic.Bool
	node.handle("eth_getTransactionReceipt", func([]json.RawMessage) (interface{}, *RPCError) {
		if !mined.Load() {
			return nil, nil
		}
		return map[string]string{"transactionHash": "0xabc", "blockNumber": "0x10", "status": "0x1"}, nil
	})
	client := setupTestRPCClient(t, node)

	r, err := client.TransactionReceipt(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Nil(t, r)

	mined.Store(true)
	r, err = client.TransactionReceipt(context.Background(), "0xabc")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.True(t, r.Success)
	assert.Equal(t, uint64(16), r.BlockNumber)
	assert.Equal(t, 0, node.count("eth_getTransactionByHash"))
}

func TestRPCClient_FailedReceiptRecoversRevertReason(t *testing.T) {
	node := newFakeNode()
	node.handle("eth_getTransactionReceipt", func([]json.RawMessage) (interface{}, *RPCError) {
		return map[string]string{"transactionHash": "0xdead", "blockNumber": "0x20", "status": "0x0"}, nil
	})
	node.handle("eth_getTransactionByHash", func([]json.RawMessage) (interface{}, *RPCError) {
		return map[string]string{
			"from":  "0x00000000000000000000000000000000000000a1",
			"to":    testContractAddress,
			"input": "0x1234",
			"value": "0x0",
		}, nil
	})
	node.handle("eth_call", func([]json.RawMessage) (interface{}, *RPCError) {
		data, _ := json.Marshal(revertData("Insufficient quantity"))
		return nil, &RPCError{Code: 3, Message: "execution reverted", Data: data}
	})
	client := setupTestRPCClient(t, node)

	r, err := client.TransactionReceipt(context.Background(), "0xdead")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.False(t, r.Success)
	assert.Equal(t, "Insufficient quantity", r.RevertReason)

	var replayBlock string
	require.NoError(t, node.param("eth_call", 1, &replayBlock))
	assert.Equal(t, "0x20", replayBlock)
}

func TestRPCClient_SendTransaction(t *testing.T) {
	node := newFakeNode()
	node.handle("eth_sendTransaction", func([]json.RawMessage) (interface{}, *RPCError) {
		return "0xfeed", nil
	})
	client := setupTestRPCClient(t, node)

	wallet, err := NewNodeWallet(client, "0x00000000000000000000000000000000000000A1", 300000)
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000000a1", wallet.Address())

	req := &types.TxRequest{
		Function: FnBuyMedicine,
		Args:     []interface{}{uint64(1), uint64(2)},
		Value:    new(big.Int).SetUint64(1800000000000000000),
	}
	hash, err := wallet.SendTransaction(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", hash)

	var sent map[string]string
	require.NoError(t, node.param("eth_sendTransaction", 0, &sent))

	assert.Equal(t, wallet.Address(), sent["from"])
	assert.Equal(t, strings.ToLower(testContractAddress), sent["to"])
	assert.Equal(t, "0x18fae27693b40000", sent["value"])
	assert.Equal(t, "0x493e0", sent["gas"])

	selector, err := client.Contract().Selector(FnBuyMedicine)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sent["data"], selector))
	assert.Len(t, sent["data"], len(selector)+2*64)
}

func TestNewNodeWallet_RejectsBadAddress(t *testing.T) {
	client := setupTestRPCClient(t, newFakeNode())
	_, err := NewNodeWallet(client, "not-an-address", 0)
	assert.True(t, types.IsKind(err, types.KindInvalidInput))
}

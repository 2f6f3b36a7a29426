package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hyperledger/firefly-signer/pkg/abi"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/medrex/medledger/pkg/config"
	"github.com/medrex/medledger/pkg/logger"
	"github.com/medrex/medledger/pkg/monitoring"
	"github.com/medrex/medledger/pkg/types"
)

// errorStringSelector prefixes ABI-encoded Error(string) revert data
const errorStringSelector = "08c379a0"

var revertReasonParams = abi.ParameterArray{param("reason", "string")}

// RPCError is a JSON-RPC error object returned by the ledger node
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RevertReason returns the decoded Error(string) reason when the node attached
// revert data, falling back to the message text.
func (e *RPCError) RevertReason() string {
	var hexData string
	if len(e.Data) > 0 && json.Unmarshal(e.Data, &hexData) == nil {
		if reason, ok := decodeRevertData(hexData); ok {
			return reason
		}
	}
	return e.Message
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

type callMsg struct {
	From  string                    `json:"from,omitempty"`
	To    string                    `json:"to"`
	Data  ethtypes.HexBytes0xPrefix `json:"data"`
	Value *ethtypes.HexInteger      `json:"value,omitempty"`
	Gas   *ethtypes.HexInteger      `json:"gas,omitempty"`
}

type rpcReceipt struct {
	TransactionHash string               `json:"transactionHash"`
	BlockNumber     *ethtypes.HexInteger `json:"blockNumber"`
	Status          *ethtypes.HexInteger `json:"status"`
}

type rpcTransaction struct {
	From  string                    `json:"from"`
	To    string                    `json:"to"`
	Input ethtypes.HexBytes0xPrefix `json:"input"`
	Value *ethtypes.HexInteger      `json:"value"`
}

// RPCClient talks to a ledger node over Ethereum JSON-RPC
type RPCClient struct {
	url        string
	httpClient *http.Client
	contract   *Contract
	logger     *logger.Logger
	metrics    *monitoring.MetricsCollector
	nextID     atomic.Uint64
}

// NewRPCClient creates a new JSON-RPC ledger client
func NewRPCClient(cfg *config.LedgerConfig, contract *Contract, log *logger.Logger, metrics *monitoring.MetricsCollector) *RPCClient {
	return &RPCClient{
		url: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeoutDuration(),
		},
		contract: contract,
		logger:   log,
		metrics:  metrics,
	}
}

// Contract returns the bound contract
func (c *RPCClient) Contract() *Contract {
	return c.contract
}

// Call invokes a view function without a caller address
func (c *RPCClient) Call(ctx context.Context, function string, args ...interface{}) (json.RawMessage, error) {
	return c.CallAs(ctx, "", function, args...)
}

// CallAs invokes a view function as the given caller address
func (c *RPCClient) CallAs(ctx context.Context, from, function string, args ...interface{}) (json.RawMessage, error) {
	start := time.Now()
	out, err := c.callView(ctx, from, function, args)
	elapsed := time.Since(start)

	c.metrics.RecordLedgerRead(function, err, elapsed)
	c.logger.LedgerRead(ctx, function, elapsed.Milliseconds(), err)
	return out, err
}

func (c *RPCClient) callView(ctx context.Context, from, function string, args []interface{}) (json.RawMessage, error) {
	data, err := c.contract.EncodeCall(function, args...)
	if err != nil {
		return nil, err
	}

	var result ethtypes.HexBytes0xPrefix
	msg := callMsg{From: from, To: c.contract.Address(), Data: data}
	if err := c.rpc(ctx, "eth_call", &result, msg, "latest"); err != nil {
		return nil, err
	}

	return c.contract.DecodeOutputs(function, result)
}

// ChainID returns the chain id reported by the node
func (c *RPCClient) ChainID(ctx context.Context) (uint64, error) {
	var id ethtypes.HexInteger
	if err := c.rpc(ctx, "eth_chainId", &id); err != nil {
		return 0, err
	}
	return id.BigInt().Uint64(), nil
}

// Balance returns the balance of an account in smallest units
func (c *RPCClient) Balance(ctx context.Context, address string) (*big.Int, error) {
	var bal ethtypes.HexInteger
	if err := c.rpc(ctx, "eth_getBalance", &bal, address, "latest"); err != nil {
		return nil, err
	}
	return new(big.Int).Set(bal.BigInt()), nil
}

// SendTransaction submits a transaction signed by a node-managed account
func (c *RPCClient) SendTransaction(ctx context.Context, req *types.TxRequest, gas uint64) (string, error) {
	msg := callMsg{
		From: req.From,
		To:   req.To,
		Data: req.Data,
	}
	if req.Value != nil && req.Value.Sign() > 0 {
		msg.Value = (*ethtypes.HexInteger)(new(big.Int).Set(req.Value))
	}
	if gas > 0 {
		msg.Gas = (*ethtypes.HexInteger)(new(big.Int).SetUint64(gas))
	}

	var hash string
	if err := c.rpc(ctx, "eth_sendTransaction", &hash, msg); err != nil {
		return "", err
	}
	return hash, nil
}

// TransactionReceipt returns the receipt of a mined transaction, or nil while it is pending
func (c *RPCClient) TransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	var r *rpcReceipt
	if err := c.rpc(ctx, "eth_getTransactionReceipt", &r, txHash); err != nil {
		return nil, err
	}
	if r == nil || r.BlockNumber == nil {
		return nil, nil
	}

	receipt := &types.Receipt{
		TxHash:      txHash,
		BlockNumber: r.BlockNumber.BigInt().Uint64(),
		Success:     r.Status != nil && r.Status.BigInt().Sign() == 1,
	}
	if !receipt.Success {
		receipt.RevertReason = c.revertReason(ctx, txHash, receipt.BlockNumber)
	}
	return receipt, nil
}

// revertReason replays a failed transaction as a call at its block to recover the reason
func (c *RPCClient) revertReason(ctx context.Context, txHash string, block uint64) string {
	var tx *rpcTransaction
	if err := c.rpc(ctx, "eth_getTransactionByHash", &tx, txHash); err != nil || tx == nil {
		return ""
	}

	msg := callMsg{From: tx.From, To: tx.To, Data: tx.Input, Value: tx.Value}
	var ignored ethtypes.HexBytes0xPrefix
	err := c.rpc(ctx, "eth_call", &ignored, msg, fmt.Sprintf("0x%x", block))
	if rpcErr, ok := err.(*RPCError); ok {
		return rpcErr.RevertReason()
	}
	return ""
}

func (c *RPCClient) rpc(ctx context.Context, method string, result interface{}, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(&rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.NewNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return types.NewNetworkError(fmt.Errorf("%s: ledger node returned %d", method, resp.StatusCode))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("failed to parse %s result: %w", method, err)
	}
	return nil
}

func decodeRevertData(hexData string) (string, bool) {
	hexData = strings.TrimPrefix(strings.ToLower(hexData), "0x")
	if !strings.HasPrefix(hexData, errorStringSelector) {
		return "", false
	}

	var data ethtypes.HexBytes0xPrefix
	if err := json.Unmarshal([]byte(`"0x`+hexData[len(errorStringSelector):]+`"`), &data); err != nil {
		return "", false
	}

	cv, err := revertReasonParams.DecodeABIData(data, 0)
	if err != nil {
		return "", false
	}
	out, err := abi.NewSerializer().SetFormattingMode(abi.FormatAsFlatArrays).SerializeJSON(cv)
	if err != nil {
		return "", false
	}

	var fields []string
	if err := json.Unmarshal(out, &fields); err != nil || len(fields) != 1 {
		return "", false
	}
	return fields[0], true
}

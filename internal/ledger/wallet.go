package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/medrex/medledger/pkg/interfaces"
	"github.com/medrex/medledger/pkg/types"
)

// NodeWallet signs through an account unlocked on the ledger node
type NodeWallet struct {
	client  *RPCClient
	address string
	gas     uint64
}

// NewNodeWallet creates a wallet for a node-managed account
func NewNodeWallet(client *RPCClient, address string, gas uint64) (*NodeWallet, error) {
	addr, err := ethtypes.NewAddress(address)
	if err != nil {
		return nil, types.NewInvalidInputError(fmt.Sprintf("invalid wallet address %q", address))
	}
	return &NodeWallet{
		client:  client,
		address: addr.String(),
		gas:     gas,
	}, nil
}

// Address returns the account address
func (w *NodeWallet) Address() string {
	return w.address
}

// SendTransaction encodes the request if needed and submits it
func (w *NodeWallet) SendTransaction(ctx context.Context, req *types.TxRequest) (string, error) {
	contract := w.client.Contract()
	if req.To == "" {
		req.To = contract.Address()
	}
	if req.From == "" {
		req.From = w.address
	}
	if len(req.Data) == 0 {
		data, err := contract.EncodeCall(req.Function, req.Args...)
		if err != nil {
			return "", err
		}
		req.Data = data
	}
	return w.client.SendTransaction(ctx, req, w.gas)
}

// Balance returns the account balance
func (w *NodeWallet) Balance(ctx context.Context, address string) (*big.Int, error) {
	return w.client.Balance(ctx, address)
}

// NodeWallets hands out node-managed wallets by account address
type NodeWallets struct {
	client *RPCClient
	gas    uint64
}

// NewNodeWallets creates a wallet provider backed by the ledger node
func NewNodeWallets(client *RPCClient, gas uint64) *NodeWallets {
	return &NodeWallets{client: client, gas: gas}
}

// Wallet returns the wallet of address
func (p *NodeWallets) Wallet(address string) (interfaces.Wallet, error) {
	return NewNodeWallet(p.client, address, p.gas)
}

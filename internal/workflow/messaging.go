package workflow

import (
	"context"

	"github.com/medrex/medledger/internal/ledger"
	"github.com/medrex/medledger/internal/txn"
	"github.com/medrex/medledger/pkg/types"
)

// MessagingWorkflow sends and reads messages between registered accounts
type MessagingWorkflow struct {
	base
}

// NewMessagingWorkflow creates a new messaging workflow
func NewMessagingWorkflow(deps Deps) *MessagingWorkflow {
	return &MessagingWorkflow{base: newBase("messaging", deps)}
}

func (w *MessagingWorkflow) registered(ctx context.Context, sess Session) error {
	role, err := w.session(ctx, sess)
	if err != nil {
		return err
	}
	if err := requireRole(role, role.Kind != types.RoleNone, "messaging"); err != nil {
		return w.fail(ctx, sess, err)
	}
	return nil
}

// Send sends text to friend and refetches the conversation
func (w *MessagingWorkflow) Send(ctx context.Context, sess Session, friend, text string) (*Outcome, error) {
	if err := w.registered(ctx, sess); err != nil {
		return nil, err
	}
	peer, err := normalizeAddress("friend", friend)
	if err != nil {
		return nil, w.fail(ctx, sess, err)
	}
	if types.SameAddress(peer, sess.Address) {
		return nil, w.fail(ctx, sess, types.NewInvalidInputError("cannot message yourself"))
	}
	text, err = requireText("message", text)
	if err != nil {
		return nil, w.fail(ctx, sess, err)
	}

	return w.run(ctx, sess, txn.Request{
		Function: ledger.FnSendMessage,
		Args:     []interface{}{peer, text},
	},
		ledger.Query{Kind: ledger.QueryMessages, Caller: sess.Address, Peer: peer},
		ledger.Query{Kind: ledger.QueryFriends, Caller: sess.Address},
	)
}

// Conversation reads the messages exchanged with friend
func (w *MessagingWorkflow) Conversation(ctx context.Context, sess Session, friend string) ([]types.Message, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	peer, err := normalizeAddress("friend", friend)
	if err != nil {
		return nil, err
	}
	return w.deps.Reader.Conversation(ctx, sess.Address, peer)
}

// Friends lists the accounts the session account has messaged
func (w *MessagingWorkflow) Friends(ctx context.Context, sess Session) ([]types.Friend, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	return w.deps.Reader.Friends(ctx, sess.Address)
}

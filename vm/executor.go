package vm

import (
	"fmt"
	"math"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
)

// Context is passed to every Handler and provides access to the chain state,
// the current block and the triggering transaction. Handlers emit events
// through Emit; they reach the emitter only if the handler succeeds.
type Context struct {
	State core.State
	Block *core.Block
	Tx    *core.Transaction

	pending []events.Event
}

// Emit stamps ev with the transaction and block and buffers it.
func (c *Context) Emit(ev events.Event) {
	ev.TxID = c.Tx.ID
	ev.BlockHeight = c.Block.Header.Height
	c.pending = append(c.pending, ev)
}

// Executor applies transactions to the state using the global Handler registry.
type Executor struct {
	state   core.State
	emitter *events.Emitter
}

// NewExecutor creates an Executor with the given state and event emitter.
func NewExecutor(state core.State, emitter *events.Emitter) *Executor {
	return &Executor{state: state, emitter: emitter}
}

// Result is the outcome of ExecutePending.
type Result struct {
	Events []events.Event   // events of the applied transactions, in order
	Failed map[string]error // rejected transactions by ID
}

// ExecutePending executes txs in order on top of block and appends every
// transaction that succeeds. A failed transaction leaves no trace in
// state. Nothing is published: the caller passes Result.Events to Publish
// once the block's state is committed.
func (e *Executor) ExecutePending(block *core.Block, txs []*core.Transaction) *Result {
	res := &Result{Failed: make(map[string]error)}
	for _, tx := range txs {
		evs, err := e.execute(block, tx)
		if err != nil {
			res.Failed[tx.ID] = err
			continue
		}
		block.Append(tx)
		res.Events = append(res.Events, evs...)
	}
	return res
}

// ExecuteTx executes a single transaction and publishes its events
// straight away.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) error {
	evs, err := e.execute(block, tx)
	if err != nil {
		return err
	}
	e.Publish(evs)
	return nil
}

// Publish hands evs to the emitter, if any.
func (e *Executor) Publish(evs []events.Event) {
	if e.emitter == nil {
		return
	}
	for _, ev := range evs {
		e.emitter.Emit(ev)
	}
}

// execute verifies and applies tx under a snapshot, reverting on failure.
// On success it returns the handler's events followed by tx_executed.
func (e *Executor) execute(block *core.Block, tx *core.Transaction) ([]events.Event, error) {
	if err := tx.Verify(); err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	ctx := &Context{State: e.state, Block: block, Tx: tx}
	if err := e.applyTx(ctx); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return nil, fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		return nil, err
	}
	if err := e.state.DiscardSnapshot(snapID); err != nil {
		return nil, fmt.Errorf("release snapshot: %w", err)
	}

	return append(ctx.pending, events.Event{
		Type:        events.EventTxExecuted,
		TxID:        tx.ID,
		BlockHeight: block.Header.Height,
		Data:        map[string]any{"type": string(tx.Type), "from": tx.From},
	}), nil
}

// applyTx deducts the fee, increments the nonce, then dispatches to the handler.
func (e *Executor) applyTx(ctx *Context) error {
	tx := ctx.Tx
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
	}
	if acc.Balance < tx.Fee {
		return fmt.Errorf("insufficient balance for fee: have %d need %d", acc.Balance, tx.Fee)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	acc.Balance -= tx.Fee
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return err
	}

	return globalRegistry.Execute(tx.Type, ctx, tx.Payload)
}

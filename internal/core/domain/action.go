package domain

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"web3-orchestrator/pkg/apperror"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ActionKind is the user-initiated write a PendingAction performs.
type ActionKind string

const (
	ActionApprove        ActionKind = "approve"
	ActionDeposit        ActionKind = "deposit"
	ActionDepositAndMint ActionKind = "deposit_and_mint"
	ActionMint           ActionKind = "mint"
	ActionRepay          ActionKind = "repay"
	ActionRedeem         ActionKind = "redeem"
	ActionTransfer       ActionKind = "transfer"
	ActionWrap           ActionKind = "wrap"
	ActionMintNFT        ActionKind = "mint_nft"
)

// RequiresAllowance reports whether the action spends an ERC-20 approval
// the user must have granted in a separate, earlier action.
func (k ActionKind) RequiresAllowance() bool {
	switch k {
	case ActionDeposit, ActionDepositAndMint, ActionRepay:
		return true
	}
	return false
}

// ActionState is the lifecycle position of a PendingAction.
type ActionState string

const (
	ActionIdle                 ActionState = "IDLE"
	ActionSubmitting           ActionState = "SUBMITTING"
	ActionAwaitingConfirmation ActionState = "AWAITING_CONFIRMATION"
	ActionConfirmed            ActionState = "CONFIRMED"
	ActionFailed               ActionState = "FAILED"
)

// ErrInvalidTransition is returned when a state change is not allowed.
var ErrInvalidTransition = errors.New("invalid state transition")

var actionTransitions = map[ActionState][]ActionState{
	ActionIdle:                 {ActionSubmitting},
	ActionSubmitting:           {ActionAwaitingConfirmation, ActionFailed},
	ActionAwaitingConfirmation: {ActionConfirmed, ActionFailed},
}

// PendingAction is one in-flight write. It is owned by a single dispatcher and
// handed out to readers as a copy.
type PendingAction struct {
	ID            uuid.UUID           `json:"id"`
	Kind          ActionKind          `json:"kind"`
	Contract      common.Address      `json:"contract"`
	Counterparty  *common.Address     `json:"counterparty,omitempty"` // spender or recipient
	Amounts       map[string]*big.Int `json:"amounts,omitempty"`
	Value         *big.Int            `json:"value,omitempty"` // native value attached
	TxRef         *common.Hash        `json:"tx_ref,omitempty"`
	State         ActionState         `json:"state"`
	FailureReason string              `json:"failure_reason,omitempty"`
	Err           error               `json:"-"`
	SubmittedAt   *time.Time          `json:"submitted_at,omitempty"`
	SettledAt     *time.Time          `json:"settled_at,omitempty"`
}

// Clone returns a deep copy; mutating it never touches a.
func (a *PendingAction) Clone() *PendingAction {
	c := *a
	if a.Counterparty != nil {
		cp := *a.Counterparty
		c.Counterparty = &cp
	}
	if a.Amounts != nil {
		c.Amounts = make(map[string]*big.Int, len(a.Amounts))
		for k, v := range a.Amounts {
			if v != nil {
				v = new(big.Int).Set(v)
			}
			c.Amounts[k] = v
		}
	}
	if a.Value != nil {
		c.Value = new(big.Int).Set(a.Value)
	}
	if a.TxRef != nil {
		ref := *a.TxRef
		c.TxRef = &ref
	}
	if a.SubmittedAt != nil {
		at := *a.SubmittedAt
		c.SubmittedAt = &at
	}
	if a.SettledAt != nil {
		at := *a.SettledAt
		c.SettledAt = &at
	}
	return &c
}

// IsActive reports whether the action still blocks its dispatcher.
func (a *PendingAction) IsActive() bool {
	return a.State == ActionSubmitting || a.State == ActionAwaitingConfirmation
}

// IsTerminal returns true if the action is in a final state.
func (a *PendingAction) IsTerminal() bool {
	return a.State == ActionConfirmed || a.State == ActionFailed
}

// Transition moves the action to the next state. Terminal states are never left.
func (a *PendingAction) Transition(to ActionState, at time.Time) error {
	for _, next := range actionTransitions[a.State] {
		if next != to {
			continue
		}
		a.State = to
		switch to {
		case ActionSubmitting:
			a.SubmittedAt = &at
		case ActionConfirmed, ActionFailed:
			a.SettledAt = &at
		}
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.State, to)
}

// Accept records the transaction reference returned by the network.
func (a *PendingAction) Accept(txRef common.Hash, at time.Time) error {
	if err := a.Transition(ActionAwaitingConfirmation, at); err != nil {
		return err
	}
	a.TxRef = &txRef
	return nil
}

// Fail moves the action to Failed keeping cause's message verbatim.
func (a *PendingAction) Fail(cause error, at time.Time) error {
	if err := a.Transition(ActionFailed, at); err != nil {
		return err
	}
	a.Err = cause
	a.FailureReason = reason(cause)
	return nil
}

// reason prefers the user-facing message of an AppError, which for wallet
// rejections is the wallet's own text.
func reason(err error) string {
	if err == nil {
		return ""
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

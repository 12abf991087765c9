/*
approval.go - The pending -> approved/rejected state machine

PURPOSE:
  Governs how a transaction or replenishment request leaves the pending
  state, and feeds approvals back into the ledger.

STATE MACHINE:

      submit            decide (accountant/admin)
  ----------> pending ----------------------------> approved (terminal)
                  \
                   ------------------------------> rejected (terminal)

  Terminal states permit no further transitions: a second decision on
  the same entity fails with ErrAlreadyDecided and changes nothing.

TRANSITION CONTRACT (both entity kinds):
  1. entity exists                 else NotFound
  2. target is approved|rejected   else Validation
  3. Can(actorRole, ActionDecide)  else PermissionDenied - checked
     regardless of entity state
  4. entity is pending             else AlreadyDecided
  5. rejected requires a comment   else Validation
  All checks run before any mutation.

LEDGER FEEDBACK:
  Approving a transaction appends it to the ledger (running balance +
  sequence stamped). Approving a replenishment request synthesizes
  exactly one approved credit transaction attributed to the approver.
  Rejections never touch the ledger.
*/
package ledger

import (
	"context"
	"strings"
)

// checkTransition enforces the transition contract. Read-only.
func checkTransition(entityID string, current, target Status, actor User, comments string) error {
	if target != StatusApproved && target != StatusRejected {
		return &ValidationError{Field: "status", Reason: "target status must be approved or rejected"}
	}
	if !Can(actor.Role, ActionDecide) {
		return &PermissionError{Role: actor.Role, Action: ActionDecide}
	}
	if current.Terminal() {
		return &AlreadyDecidedError{ID: entityID, Status: current}
	}
	if target == StatusRejected && strings.TrimSpace(comments) == "" {
		return &ValidationError{Field: "comments", Reason: "rejection requires a comment"}
	}
	return nil
}

// DecideTransaction transitions a pending transaction to approved or
// rejected. Approval appends the transaction to the ledger and returns
// it with its running balance visible.
func (e *Engine) DecideTransaction(ctx context.Context, id string, target Status, actor User, comments string) (*Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var decided *Transaction
	err := e.store.WithTx(ctx, func(s Store) error {
		tx, err := s.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if tx == nil {
			return &NotFoundError{Kind: "transaction", ID: id}
		}
		if err := checkTransition(tx.ID, tx.Status, target, actor, comments); err != nil {
			return err
		}

		now := e.now()
		tx.Status = target
		tx.ApprovedBy = actor.ID
		tx.ApprovedAt = &now
		tx.Comments = strings.TrimSpace(comments)
		tx.UpdatedAt = now

		if target == StatusApproved {
			balance, seq, err := appendEntry(ctx, s, tx.Amount)
			if err != nil {
				return err
			}
			tx.RunningBalance = &balance
			tx.EntrySeq = &seq
		}

		if err := s.UpdateTransactionDecision(ctx, tx); err != nil {
			return err
		}
		decided = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decided, nil
}

// DecideReplenishment transitions a pending request to approved or
// rejected. Approval synthesizes exactly one approved credit
// transaction for the requested amount, received by "Cash Float",
// paid in cash, attributed to the approving actor.
func (e *Engine) DecideReplenishment(ctx context.Context, id string, target Status, actor User, comments string) (*ReplenishmentRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var decided *ReplenishmentRequest
	err := e.store.WithTx(ctx, func(s Store) error {
		r, err := s.GetReplenishment(ctx, id)
		if err != nil {
			return err
		}
		if r == nil {
			return &NotFoundError{Kind: "replenishment request", ID: id}
		}
		if err := checkTransition(r.ID, r.Status, target, actor, comments); err != nil {
			return err
		}

		now := e.now()
		r.Status = target
		r.ApprovedBy = actor.ID
		r.ApprovedAt = &now
		r.Comments = strings.TrimSpace(comments)
		r.UpdatedAt = now

		if err := s.UpdateReplenishmentDecision(ctx, r); err != nil {
			return err
		}

		if target == StatusApproved {
			balance, seq, err := appendEntry(ctx, s, r.RequestedAmount)
			if err != nil {
				return err
			}
			credit := &Transaction{
				ID:             e.newID(),
				Date:           now,
				Description:    "Cash replenishment - " + r.Reason,
				Amount:         r.RequestedAmount,
				ReceivedBy:     ReplenishmentReceivedBy,
				PaymentMethod:  ReplenishmentMethod,
				Status:         StatusApproved,
				SubmittedBy:    actor.ID,
				ApprovedBy:     actor.ID,
				ApprovedAt:     &now,
				RunningBalance: &balance,
				EntrySeq:       &seq,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := s.InsertTransaction(ctx, credit); err != nil {
				return err
			}
		}

		decided = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decided, nil
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anjiri1684/tutor_ledger/models"
	"github.com/anjiri1684/tutor_ledger/notifications"
	"github.com/anjiri1684/tutor_ledger/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type PayoutRequest struct {
	TeacherID uuid.UUID            `json:"-"`
	Amount    int64                `json:"amount" validate:"required,gt=0"`
	Method    models.PayoutMethod  `json:"method" validate:"required,oneof=bank upi paypal"`
	Details   models.PayoutDetails `json:"details"`
}

func (r PayoutRequest) validateDetails() error {
	d := r.Details
	switch r.Method {
	case models.MethodBank:
		if strings.TrimSpace(d.AccountHolder) == "" || strings.TrimSpace(d.AccountNumber) == "" || strings.TrimSpace(d.BankCode) == "" {
			return validationErr("bank payouts need account holder, account number and bank code")
		}
	case models.MethodUPI:
		if strings.TrimSpace(d.UPIID) == "" {
			return validationErr("upi payouts need a UPI id")
		}
	case models.MethodPayPal:
		if err := validate.Var(d.PayPalEmail, "required,email"); err != nil {
			return validationErr("paypal payouts need a valid email")
		}
	default:
		return validationErr("unknown payout method %q", r.Method)
	}
	return nil
}

// PayoutService reserves funds at request time. Approval and rejection only
// finalize or reverse the bookkeeping.
type PayoutService struct {
	payouts      repository.PayoutRepository
	transactions repository.TransactionRepository
	ledger       *LedgerService
	notify       notifier
	now          func() time.Time
}

func NewPayoutService(payouts repository.PayoutRepository, transactions repository.TransactionRepository, ledger *LedgerService, sink notifications.Sink, now func() time.Time) *PayoutService {
	if now == nil {
		now = time.Now
	}
	return &PayoutService{
		payouts:      payouts,
		transactions: transactions,
		ledger:       ledger,
		notify:       notifier{sink: sink},
		now:          now,
	}
}

// Request debits the wallet, then writes the payout and its pending withdrawal
// entry. If either write fails the debit is given back, so a debited wallet
// never exists without a pending payout.
func (s *PayoutService) Request(ctx context.Context, req PayoutRequest) (_ *models.Payout, err error) {
	ctx, span := tracer.Start(ctx, "RequestPayout")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("teacher_id", req.TeacherID.String()),
		attribute.Int64("amount", req.Amount),
	)

	if req.TeacherID == uuid.Nil {
		return nil, validationErr("teacher is required")
	}
	if req.Amount <= 0 {
		return nil, validationErr("amount must be positive")
	}
	if err := req.validateDetails(); err != nil {
		return nil, err
	}

	if err := s.ledger.Debit(ctx, req.TeacherID, req.Amount); err != nil {
		return nil, err
	}

	payout := &models.Payout{
		TeacherID:   req.TeacherID,
		Amount:      req.Amount,
		Method:      req.Method,
		Details:     req.Details,
		Status:      models.PayoutPending,
		RequestedAt: s.now(),
	}
	if err := s.payouts.Create(ctx, payout); err != nil {
		s.compensate(ctx, req.TeacherID, req.Amount, nil, err)
		return nil, err
	}

	payoutID := payout.ID
	txn := &models.Transaction{
		TeacherID:     req.TeacherID,
		Type:          models.TxnWithdrawal,
		Nature:        models.NatureDebit,
		GrossAmount:   req.Amount,
		PaymentMethod: string(req.Method),
		PaymentStatus: models.PaymentPending,
		PayoutID:      &payoutID,
	}
	if err := s.transactions.Create(ctx, txn); err != nil {
		s.compensate(ctx, req.TeacherID, req.Amount, payout, err)
		return nil, err
	}

	if err := s.payouts.AttachTransaction(ctx, payout.ID, txn.ID); err != nil {
		slog.Warn("payout transaction link not stored", "payout_id", payout.ID, "transaction_id", txn.ID, "error", err)
	} else {
		payout.TransactionID = &txn.ID
	}

	slog.Info("payout requested",
		"payout_id", payout.ID,
		"teacher_id", payout.TeacherID,
		"amount", payout.Amount,
		"method", payout.Method)
	return payout, nil
}

// compensate undoes the debit of a failed request. A payout row that already
// exists is closed first so no PENDING payout outlives its debit.
func (s *PayoutService) compensate(ctx context.Context, teacherID uuid.UUID, amount int64, payout *models.Payout, cause error) {
	slog.Error("payout request failed after debit, compensating",
		"teacher_id", teacherID, "amount", amount, "error", cause)

	if payout != nil {
		note := "ledger entry failed"
		if _, err := s.payouts.Transition(ctx, payout.ID, models.PayoutRejected, &note, s.now()); err != nil {
			slog.Error("could not close payout during compensation", "payout_id", payout.ID, "error", err)
		}
	}
	if err := s.ledger.Restore(ctx, teacherID, amount); err != nil {
		// Operator-visible anomaly: the wallet stays debited.
		slog.Error("payout compensation refund failed",
			"teacher_id", teacherID, "amount", amount, "error", err)
	}
}

func (s *PayoutService) Approve(ctx context.Context, payoutID uuid.UUID, note string) (_ *models.Payout, err error) {
	ctx, span := tracer.Start(ctx, "ApprovePayout")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("payout_id", payoutID.String()))

	p, err := s.payouts.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	var notePtr *string
	if n := strings.TrimSpace(note); n != "" {
		notePtr = &n
	}
	if err := s.transition(ctx, p, models.PayoutApproved, notePtr); err != nil {
		return nil, err
	}

	if err := s.ledger.RecordWithdrawn(ctx, p.TeacherID, p.Amount); err != nil {
		slog.Error("payout approved but total withdrawn not updated", "payout_id", p.ID, "error", err)
		return nil, err
	}
	s.settle(ctx, p, models.PaymentSuccess)

	s.notify.send(ctx, p.TeacherID, models.AudienceTeacher, "payout", "Payout approved",
		fmt.Sprintf("Your withdrawal of %d has been approved.", p.Amount), nil)
	return p, nil
}

// Reject refunds the reserved amount to the wallet balance.
func (s *PayoutService) Reject(ctx context.Context, payoutID uuid.UUID, reason string) (_ *models.Payout, err error) {
	ctx, span := tracer.Start(ctx, "RejectPayout")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("payout_id", payoutID.String()))

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationErr("a reason is required")
	}
	p, err := s.payouts.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, p, models.PayoutRejected, &reason); err != nil {
		return nil, err
	}

	if err := s.ledger.Restore(ctx, p.TeacherID, p.Amount); err != nil {
		slog.Error("payout rejected but refund failed", "payout_id", p.ID, "teacher_id", p.TeacherID, "amount", p.Amount, "error", err)
		return nil, err
	}
	s.settle(ctx, p, models.PaymentFailed)

	s.notify.send(ctx, p.TeacherID, models.AudienceTeacher, "payout", "Payout rejected",
		fmt.Sprintf("Your withdrawal of %d was rejected: %s. The amount is back in your wallet.", p.Amount, reason), nil)
	return p, nil
}

func (s *PayoutService) transition(ctx context.Context, p *models.Payout, to models.PayoutStatus, note *string) error {
	at := s.now()
	applied, err := s.payouts.Transition(ctx, p.ID, to, note, at)
	if err != nil {
		return err
	}
	if !applied {
		current := p.Status
		if fresh, err := s.payouts.GetByID(ctx, p.ID); err == nil {
			current = fresh.Status
		}
		return transitionErr("payout is %s and cannot move to %s", current, to)
	}
	slog.Info("payout transitioned", "payout_id", p.ID, "from", p.Status, "to", to)
	p.Status = to
	p.ProcessedAt = &at
	if note != nil {
		p.AdminNote = note
	}
	return nil
}

// settle flips the payout's withdrawal entry out of PENDING. The wallet is
// already correct at this point, so a failure is logged for Rebuild to catch.
func (s *PayoutService) settle(ctx context.Context, p *models.Payout, status models.PaymentStatus) {
	txnID, err := s.withdrawalEntry(ctx, p)
	if err != nil {
		slog.Error("withdrawal entry not found", "payout_id", p.ID, "error", err)
		return
	}
	if _, err := s.transactions.Settle(ctx, txnID, status); err != nil {
		slog.Error("withdrawal entry not settled", "payout_id", p.ID, "transaction_id", txnID, "error", err)
	}
}

func (s *PayoutService) withdrawalEntry(ctx context.Context, p *models.Payout) (uuid.UUID, error) {
	if p.TransactionID != nil {
		return *p.TransactionID, nil
	}
	txns, err := s.transactions.ListByTeacher(ctx, p.TeacherID, models.TxnWithdrawal)
	if err != nil {
		return uuid.Nil, err
	}
	for _, t := range txns {
		if t.PayoutID != nil && *t.PayoutID == p.ID {
			return t.ID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("no withdrawal entry for payout %s", p.ID)
}

func (s *PayoutService) Get(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	return s.payouts.GetByID(ctx, id)
}

func (s *PayoutService) ListForTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.Payout, error) {
	return s.payouts.ListByTeacher(ctx, teacherID)
}

func (s *PayoutService) ListByStatus(ctx context.Context, status models.PayoutStatus) ([]models.Payout, error) {
	switch status {
	case models.PayoutPending, models.PayoutApproved, models.PayoutRejected:
	default:
		return nil, validationErr("unknown payout status %q", status)
	}
	return s.payouts.ListByStatus(ctx, status)
}

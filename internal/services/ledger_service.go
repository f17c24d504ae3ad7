package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/vmtorres/payables-api/internal/jobs"
	"github.com/vmtorres/payables-api/internal/models"
	"github.com/vmtorres/payables-api/internal/repository"
	"github.com/vmtorres/payables-api/internal/statemachine"
	"github.com/vmtorres/payables-api/pkg/ids"
)

// staleRetries bounds the optimistic-lock retry loop. Contention on a
// single obligation is rare (one operator pays one installment); three
// attempts cover a burst without spinning.
const staleRetries = 3

// OriginationInput describes a new payable obligation
type OriginationInput struct {
	Creditor         string          `json:"creditor"`
	OriginType       string          `json:"origin_type"`
	InstallmentNo    int             `json:"installment_no"`
	InstallmentCount int             `json:"installment_count"`
	DueDate          time.Time       `json:"due_date"`
	FaceValue        decimal.Decimal `json:"face_value"`
	EffectiveDate    time.Time       `json:"effective_date"`
	Actor            string          `json:"-"`
	IdempotencyKey   string          `json:"idempotency_key"`
	IP               string          `json:"-"`
	UserAgent        string          `json:"-"`
}

// PaymentBreakdown splits a cash payment into its non-principal parts.
// Principal applied = amount − interest − penalty + discount.
type PaymentBreakdown struct {
	Interest decimal.Decimal `json:"interest"`
	Penalty  decimal.Decimal `json:"penalty"`
	Discount decimal.Decimal `json:"discount"`
}

// PaymentInput describes a payment against an obligation
type PaymentInput struct {
	ObligationID   string           `json:"-"`
	Amount         decimal.Decimal  `json:"amount"`
	EffectiveDate  time.Time        `json:"effective_date"`
	Breakdown      PaymentBreakdown `json:"breakdown"`
	Actor          string           `json:"-"`
	IdempotencyKey string           `json:"idempotency_key"`
	IP             string           `json:"-"`
	UserAgent      string           `json:"-"`
}

// AdjustmentInput describes a no-cash movement of outstanding
type AdjustmentInput struct {
	ObligationID   string          `json:"-"`
	Kind           string          `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	EffectiveDate  time.Time       `json:"effective_date"`
	Actor          string          `json:"-"`
	IdempotencyKey string          `json:"idempotency_key"`
	IP             string          `json:"-"`
	UserAgent      string          `json:"-"`
}

// LedgerService is the transactional façade over the event store. It
// exclusively owns event creation: every mutation validates the closing
// lock and the accounting invariants, then appends events and updates
// the obligation accumulators in a single transaction.
type LedgerService struct {
	obligationRepo repository.ObligationRepository
	eventRepo      repository.EventRepository
	closingRepo    repository.ClosingRepository
	auditSvc       *AuditService
	worker         *jobs.Worker
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	obligationRepo repository.ObligationRepository,
	eventRepo repository.EventRepository,
	closingRepo repository.ClosingRepository,
	auditSvc *AuditService,
	worker *jobs.Worker,
) *LedgerService {
	return &LedgerService{
		obligationRepo: obligationRepo,
		eventRepo:      eventRepo,
		closingRepo:    closingRepo,
		auditSvc:       auditSvc,
		worker:         worker,
	}
}

// FindObligation retrieves an obligation by id
func (s *LedgerService) FindObligation(ctx context.Context, id string) (*models.Obligation, error) {
	o, err := s.obligationRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrObligationNotFound) {
		return nil, ErrObligationNotFound
	}
	return o, err
}

// List retrieves obligations with pagination
func (s *LedgerService) List(ctx context.Context, query *repository.ListQuery) ([]models.Obligation, int64, error) {
	return s.obligationRepo.List(ctx, query)
}

// EventsFor retrieves the full event sequence of an obligation in
// creation order.
func (s *LedgerService) EventsFor(ctx context.Context, obligationID string) ([]models.LedgerEvent, error) {
	if _, err := s.FindObligation(ctx, obligationID); err != nil {
		return nil, err
	}
	return s.eventRepo.FindByObligationID(ctx, obligationID)
}

// Originate creates a new obligation and its origination event.
func (s *LedgerService) Originate(ctx context.Context, in OriginationInput) (*models.Obligation, error) {
	if !in.FaceValue.IsPositive() {
		return nil, ErrNegativeAmount
	}
	if in.InstallmentCount <= 0 || in.InstallmentNo <= 0 || in.InstallmentNo > in.InstallmentCount {
		return nil, ErrInvalidSchedule
	}
	switch in.OriginType {
	case models.OriginTypePurchase, models.OriginTypeLoan, models.OriginTypeFinancing, models.OriginTypeRecurring:
	default:
		return nil, ErrInvalidSchedule
	}

	key := in.IdempotencyKey
	if key == "" {
		key = ids.NewKey()
	}
	if prior, err := s.replayed(ctx, key); err != nil {
		return nil, err
	} else if prior != nil {
		return s.FindObligation(ctx, prior.ObligationID)
	}

	effective := models.DateOnly(in.EffectiveDate)
	if in.EffectiveDate.IsZero() {
		effective = models.DateOnly(time.Now())
	}
	if err := s.checkWritable(ctx, effective); err != nil {
		return nil, err
	}

	obligation := &models.Obligation{
		ID:               ids.New(),
		Creditor:         in.Creditor,
		OriginType:       in.OriginType,
		InstallmentNo:    in.InstallmentNo,
		InstallmentCount: in.InstallmentCount,
		DueDate:          models.DateOnly(in.DueDate),
		FaceValue:        in.FaceValue,
		PaidTotal:        decimal.Zero,
		InterestPaid:     decimal.Zero,
		PenaltyPaid:      decimal.Zero,
		DiscountApplied:  decimal.Zero,
		Status:           models.ObligationStatusOpen,
	}
	event := &models.LedgerEvent{
		ID:             ids.New(),
		ObligationID:   obligation.ID,
		Kind:           models.EventKindOrigination,
		Amount:         in.FaceValue,
		EffectiveDate:  effective,
		Actor:          in.Actor,
		IdempotencyKey: key,
	}

	err := s.eventRepo.AppendOrigination(ctx, obligation, event, s.closingGuard(effective))
	if errors.Is(err, repository.ErrDuplicateEvent) {
		// Replay of a commit that raced us; hand back the original.
		if prior, rerr := s.replayed(ctx, key); rerr == nil && prior != nil {
			return s.FindObligation(ctx, prior.ObligationID)
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}

	s.audit(ctx, in.Actor, "ORIGINATE", "Obligation", obligation.ID,
		fmt.Sprintf("Obrigação %s (%s, parcela %d/%d) no valor de %s",
			in.Creditor, in.OriginType, in.InstallmentNo, in.InstallmentCount, in.FaceValue.StringFixed(2)),
		in.IP, in.UserAgent)

	return obligation, nil
}

// RegisterPayment validates and applies a cash payment, appending the
// payment event plus implied adjustment sub-events for the breakdown.
func (s *LedgerService) RegisterPayment(ctx context.Context, in PaymentInput) (*models.LedgerEvent, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrNegativeAmount
	}
	if in.Breakdown.Interest.IsNegative() || in.Breakdown.Penalty.IsNegative() || in.Breakdown.Discount.IsNegative() {
		return nil, ErrNegativeAmount
	}
	principal := in.Amount.Sub(in.Breakdown.Interest).Sub(in.Breakdown.Penalty).Add(in.Breakdown.Discount)
	if principal.IsNegative() {
		return nil, ErrNegativeAmount
	}

	key := in.IdempotencyKey
	if key == "" {
		key = ids.NewKey()
	}
	if prior, err := s.replayed(ctx, key); err != nil {
		return nil, err
	} else if prior != nil {
		return prior, nil
	}

	effective := models.DateOnly(in.EffectiveDate)
	if in.EffectiveDate.IsZero() {
		effective = models.DateOnly(time.Now())
	}

	var paymentEvent *models.LedgerEvent
	err := s.withStaleRetry(func() error {
		obligation, err := s.FindObligation(ctx, in.ObligationID)
		if err != nil {
			return err
		}
		if obligation.Status == models.ObligationStatusCancelled {
			return ErrInvalidState
		}
		if err := s.checkWritable(ctx, effective); err != nil {
			return err
		}

		proj, err := Project(obligation)
		if err != nil {
			return err
		}
		// Hypothetical post-payment outstanding must not go negative;
		// over-payments are rejected, never clamped.
		if principal.GreaterThan(proj.Outstanding) {
			return ErrOverPayment
		}
		// A settled obligation accepts no further payments, even one
		// whose breakdown leaves zero principal.
		if !obligation.MayMutate() {
			return ErrInvalidState
		}

		obligation.PaidTotal = obligation.PaidTotal.Add(in.Amount)
		obligation.InterestPaid = obligation.InterestPaid.Add(in.Breakdown.Interest)
		obligation.PenaltyPaid = obligation.PenaltyPaid.Add(in.Breakdown.Penalty)
		obligation.DiscountApplied = obligation.DiscountApplied.Add(in.Breakdown.Discount)

		after, err := Project(obligation)
		if err != nil {
			return err
		}
		ofsm := statemachine.NewObligationFSM(obligation)
		if err := ofsm.Transition(ctx, after.Status); err != nil {
			return ErrInvalidState
		}

		paymentEvent = &models.LedgerEvent{
			ID:             ids.New(),
			ObligationID:   obligation.ID,
			Kind:           models.EventKindPayment,
			Amount:         in.Amount,
			EffectiveDate:  effective,
			Actor:          in.Actor,
			IdempotencyKey: key,
		}
		events := []models.LedgerEvent{*paymentEvent}
		for kind, part := range map[string]decimal.Decimal{
			models.EventKindInterestAdjustment: in.Breakdown.Interest,
			models.EventKindPenaltyAdjustment:  in.Breakdown.Penalty,
			models.EventKindDiscountAdjustment: in.Breakdown.Discount,
		} {
			if part.IsPositive() {
				events = append(events, models.LedgerEvent{
					ID:             ids.New(),
					ObligationID:   obligation.ID,
					Kind:           kind,
					Amount:         part,
					EffectiveDate:  effective,
					Actor:          in.Actor,
					IdempotencyKey: subKey(key, kind),
					ParentEventID:  &paymentEvent.ID,
				})
			}
		}

		return s.eventRepo.Append(ctx, obligation, events, s.closingGuard(effective))
	})
	if errors.Is(err, repository.ErrDuplicateEvent) {
		if prior, rerr := s.replayed(ctx, key); rerr == nil && prior != nil {
			return prior, nil
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}

	s.audit(ctx, in.Actor, "PAYMENT", "LedgerEvent", paymentEvent.ID,
		fmt.Sprintf("Pagamento de %s na obrigação %s", in.Amount.StringFixed(2), in.ObligationID),
		in.IP, in.UserAgent)

	return paymentEvent, nil
}

// Adjust applies an interest/penalty/discount movement without an
// associated cash payment.
func (s *LedgerService) Adjust(ctx context.Context, in AdjustmentInput) (*models.LedgerEvent, error) {
	if !models.AdjustmentKinds[in.Kind] {
		return nil, ErrInvalidAdjustment
	}
	if !in.Amount.IsPositive() {
		return nil, ErrNegativeAmount
	}

	key := in.IdempotencyKey
	if key == "" {
		key = ids.NewKey()
	}
	if prior, err := s.replayed(ctx, key); err != nil {
		return nil, err
	} else if prior != nil {
		return prior, nil
	}

	effective := models.DateOnly(in.EffectiveDate)
	if in.EffectiveDate.IsZero() {
		effective = models.DateOnly(time.Now())
	}

	var event *models.LedgerEvent
	err := s.withStaleRetry(func() error {
		obligation, err := s.FindObligation(ctx, in.ObligationID)
		if err != nil {
			return err
		}
		if !obligation.MayMutate() {
			return ErrInvalidState
		}
		if err := s.checkWritable(ctx, effective); err != nil {
			return err
		}

		switch in.Kind {
		case models.EventKindInterestAdjustment:
			obligation.InterestPaid = obligation.InterestPaid.Add(in.Amount)
		case models.EventKindPenaltyAdjustment:
			obligation.PenaltyPaid = obligation.PenaltyPaid.Add(in.Amount)
		case models.EventKindDiscountAdjustment:
			obligation.DiscountApplied = obligation.DiscountApplied.Add(in.Amount)
		}

		after, err := Project(obligation)
		if err != nil {
			// A discount larger than the outstanding balance would drive
			// it negative.
			return err
		}
		ofsm := statemachine.NewObligationFSM(obligation)
		if err := ofsm.Transition(ctx, after.Status); err != nil {
			return ErrInvalidState
		}

		event = &models.LedgerEvent{
			ID:             ids.New(),
			ObligationID:   obligation.ID,
			Kind:           in.Kind,
			Amount:         in.Amount,
			EffectiveDate:  effective,
			Actor:          in.Actor,
			IdempotencyKey: key,
		}
		return s.eventRepo.Append(ctx, obligation, []models.LedgerEvent{*event}, s.closingGuard(effective))
	})
	if errors.Is(err, repository.ErrDuplicateEvent) {
		if prior, rerr := s.replayed(ctx, key); rerr == nil && prior != nil {
			return prior, nil
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}

	s.audit(ctx, in.Actor, "ADJUST", "LedgerEvent", event.ID,
		fmt.Sprintf("Ajuste %s de %s na obrigação %s", in.Kind, in.Amount.StringFixed(2), in.ObligationID),
		in.IP, in.UserAgent)

	return event, nil
}

// Cancel marks an obligation cancelled. Only legal while outstanding is
// positive and the obligation is not settled.
func (s *LedgerService) Cancel(ctx context.Context, obligationID string, effectiveDate time.Time, actor, idempotencyKey, ip, userAgent string) (*models.LedgerEvent, error) {
	key := idempotencyKey
	if key == "" {
		key = ids.NewKey()
	}
	if prior, err := s.replayed(ctx, key); err != nil {
		return nil, err
	} else if prior != nil {
		return prior, nil
	}

	effective := models.DateOnly(effectiveDate)
	if effectiveDate.IsZero() {
		effective = models.DateOnly(time.Now())
	}

	var event *models.LedgerEvent
	err := s.withStaleRetry(func() error {
		obligation, err := s.FindObligation(ctx, obligationID)
		if err != nil {
			return err
		}
		if !obligation.MayCancel() {
			return ErrInvalidState
		}
		if err := s.checkWritable(ctx, effective); err != nil {
			return err
		}

		proj, err := Project(obligation)
		if err != nil {
			return err
		}
		ofsm := statemachine.NewObligationFSM(obligation)
		if err := ofsm.Cancel(ctx); err != nil {
			return ErrInvalidState
		}

		event = &models.LedgerEvent{
			ID:             ids.New(),
			ObligationID:   obligation.ID,
			Kind:           models.EventKindCancellation,
			Amount:         proj.Outstanding,
			EffectiveDate:  effective,
			Actor:          actor,
			IdempotencyKey: key,
		}
		return s.eventRepo.Append(ctx, obligation, []models.LedgerEvent{*event}, s.closingGuard(effective))
	})
	if errors.Is(err, repository.ErrDuplicateEvent) {
		if prior, rerr := s.replayed(ctx, key); rerr == nil && prior != nil {
			return prior, nil
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actor, "CANCEL", "Obligation", obligationID, "Obrigação cancelada", ip, userAgent)

	return event, nil
}

// ReversePayment appends compensating events for a payment and its
// breakdown sub-events. The ledger is append-only: nothing is edited or
// deleted in place, and reversal is only permitted while the payment's
// effective date is still open.
func (s *LedgerService) ReversePayment(ctx context.Context, eventID, actor, idempotencyKey, ip, userAgent string) (*models.LedgerEvent, error) {
	original, err := s.eventRepo.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	if original.Kind != models.EventKindPayment {
		return nil, ErrInvalidState
	}

	if existing, err := s.eventRepo.FindReversalOf(ctx, eventID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrInvalidState
	}

	key := idempotencyKey
	if key == "" {
		key = ids.NewKey()
	}
	if prior, err := s.replayed(ctx, key); err != nil {
		return nil, err
	} else if prior != nil {
		return prior, nil
	}

	if err := s.checkWritable(ctx, original.EffectiveDate); err != nil {
		return nil, err
	}

	children, err := s.eventRepo.FindChildren(ctx, eventID)
	if err != nil {
		return nil, err
	}

	var reversal *models.LedgerEvent
	err = s.withStaleRetry(func() error {
		obligation, err := s.FindObligation(ctx, original.ObligationID)
		if err != nil {
			return err
		}

		obligation.PaidTotal = obligation.PaidTotal.Sub(original.Amount)
		for i := range children {
			child := &children[i]
			switch child.Kind {
			case models.EventKindInterestAdjustment:
				obligation.InterestPaid = obligation.InterestPaid.Sub(child.Amount)
			case models.EventKindPenaltyAdjustment:
				obligation.PenaltyPaid = obligation.PenaltyPaid.Sub(child.Amount)
			case models.EventKindDiscountAdjustment:
				obligation.DiscountApplied = obligation.DiscountApplied.Sub(child.Amount)
			}
		}

		after, err := Project(obligation)
		if err != nil {
			return err
		}
		ofsm := statemachine.NewObligationFSM(obligation)
		if err := ofsm.Transition(ctx, after.Status); err != nil {
			return ErrInvalidState
		}

		origID := original.ID
		reversal = &models.LedgerEvent{
			ID:              ids.New(),
			ObligationID:    obligation.ID,
			Kind:            models.EventKindReversal,
			Amount:          original.Amount,
			EffectiveDate:   original.EffectiveDate,
			Actor:           actor,
			IdempotencyKey:  key,
			ReversesEventID: &origID,
		}
		events := []models.LedgerEvent{*reversal}
		for i := range children {
			childID := children[i].ID
			events = append(events, models.LedgerEvent{
				ID:              ids.New(),
				ObligationID:    obligation.ID,
				Kind:            models.EventKindReversal,
				Amount:          children[i].Amount,
				EffectiveDate:   original.EffectiveDate,
				Actor:           actor,
				IdempotencyKey:  subKey(key, children[i].Kind),
				ParentEventID:   &reversal.ID,
				ReversesEventID: &childID,
			})
		}

		return s.eventRepo.Append(ctx, obligation, events, s.closingGuard(original.EffectiveDate))
	})
	if errors.Is(err, repository.ErrDuplicateEvent) {
		if prior, rerr := s.replayed(ctx, key); rerr == nil && prior != nil {
			return prior, nil
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actor, "REVERSE", "LedgerEvent", reversal.ID,
		fmt.Sprintf("Estorno do pagamento %s (%s)", eventID, original.Amount.StringFixed(2)),
		ip, userAgent)

	return reversal, nil
}

// VerifyIntegrity folds the full event sequence of an obligation and
// compares it against the accumulator projection. Both derivations must
// always agree; a mismatch means the write-through cache diverged.
func (s *LedgerService) VerifyIntegrity(ctx context.Context, obligationID string) (bool, error) {
	obligation, err := s.FindObligation(ctx, obligationID)
	if err != nil {
		return false, err
	}
	events, err := s.eventRepo.FindByObligationID(ctx, obligationID)
	if err != nil {
		return false, err
	}

	fromFields, err := Project(obligation)
	if err != nil {
		return false, err
	}
	fromEvents, err := ProjectEvents(events)
	if err != nil {
		return false, err
	}

	return fromFields.Outstanding.Equal(fromEvents.Outstanding) &&
		fromFields.PrincipalCovered.Equal(fromEvents.PrincipalCovered) &&
		fromFields.Status == fromEvents.Status, nil
}

// checkWritable rejects mutations whose effective date falls on or
// before the latest closed date.
func (s *LedgerService) checkWritable(ctx context.Context, effective time.Time) error {
	latest, err := s.closingRepo.LatestClosedDate(ctx)
	if err != nil {
		return err
	}
	if latest != nil && !effective.After(*latest) {
		return ErrDateClosed
	}
	return nil
}

// closingGuard re-validates the closing frontier inside the append
// transaction so a write cannot commit after a concurrent close of its
// effective date.
func (s *LedgerService) closingGuard(effective time.Time) repository.TxGuard {
	return func(tx *gorm.DB) error {
		// Held until the append commits, so a concurrent Close cannot
		// land between this check and the commit.
		if err := repository.LockClosingFrontierShared(tx); err != nil {
			return err
		}
		latest, err := repository.LatestClosedDateTx(tx)
		if err != nil {
			return err
		}
		if latest != nil && !effective.After(*latest) {
			return ErrDateClosed
		}
		return nil
	}
}

// replayed resolves a previously committed event for an idempotency key.
func (s *LedgerService) replayed(ctx context.Context, key string) (*models.LedgerEvent, error) {
	event, err := s.eventRepo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return event, nil
}

func (s *LedgerService) withStaleRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < staleRetries; attempt++ {
		err = fn()
		if !errors.Is(err, repository.ErrStaleObligation) {
			return err
		}
	}
	return ErrConflict
}

func (s *LedgerService) audit(ctx context.Context, actor, action, entity, entityID, details, ip, userAgent string) {
	if s.auditSvc == nil {
		return
	}
	if s.worker != nil {
		s.worker.EnqueueAsync(func(ctx context.Context) error {
			return s.auditSvc.Log(ctx, actor, action, entity, entityID, details, ip, userAgent)
		})
		return
	}
	s.auditSvc.Log(ctx, actor, action, entity, entityID, details, ip, userAgent)
}

// subKey derives the idempotency key of a breakdown sub-event from its
// parent's key, so replaying a payment replays its sub-events too.
func subKey(key, kind string) string {
	return key + "/" + kind
}

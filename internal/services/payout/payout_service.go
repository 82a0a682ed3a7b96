package payout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/elevenpay/axis-payout-service/internal/domain"
	"github.com/elevenpay/axis-payout-service/internal/domain/ports"
	"github.com/elevenpay/axis-payout-service/pkg/observability"
)

// counterpartyTimeLayout is the timestamp format in status records
const counterpartyTimeLayout = "2006-01-02 15:04:05"

// Service orchestrates the payout lifecycle: validated creation, the
// synchronous gateway handshake, and status event application from every
// delivery channel. All projection decisions go through the domain layer so
// callback, poll, and sync paths share one monotonicity rule.
type Service struct {
	repo        ports.PayoutRepository
	gateway     ports.PayoutGateway
	statusCodes domain.StatusCodeMap
	logger      *zap.Logger
}

// NewService creates a payout service
func NewService(repo ports.PayoutRepository, gateway ports.PayoutGateway, statusCodes domain.StatusCodeMap, logger *zap.Logger) *Service {
	if statusCodes == nil {
		statusCodes = domain.DefaultStatusCodeMap()
	}
	return &Service{
		repo:        repo,
		gateway:     gateway,
		statusCodes: statusCodes,
		logger:      logger,
	}
}

// CreatePayout validates a submission, persists it in pending state, and
// performs the synchronous transfer call. The insert happens before the
// outbound call: if the gateway is unreachable the payout stays pending and
// the poll sweep reconciles it later. Duplicate correlation references fail
// before any money movement.
func (s *Service) CreatePayout(ctx context.Context, cmd *CreatePayoutCommand) (*domain.PayoutRequest, error) {
	instr, err := validateCommand(cmd)
	if err != nil {
		return nil, err
	}

	payout := &domain.PayoutRequest{
		MerchantID:  cmd.MerchantID,
		CRN:         instr.CRN,
		PayMode:     instr.PayMode,
		TxnType:     instr.TxnType,
		Amount:      instr.Amount,
		ValueDate:   instr.ValueDate,
		Beneficiary: instr.Beneficiary,
		Status:      domain.PayoutStatusPending,
	}
	id, err := s.repo.InsertPayoutUnique(ctx, payout)
	if err != nil {
		return nil, err
	}
	payout.ID = id
	observability.ObservePayoutCreated()

	result, err := s.gateway.TransferPayment(ctx, instr)
	if err != nil {
		// stays pending; the reconciliation sweep settles it once the
		// counterparty is reachable again
		s.logger.Error("transfer call failed, payout left pending",
			zap.String("crn", payout.CRN),
			zap.Error(err),
		)
		return nil, err
	}

	status := domain.PayoutStatusProcessing
	if !result.Accepted {
		status = domain.PayoutStatusRejected
	}
	payout.ChecksumSent = result.ChecksumSent
	payout.GatewayTxnRef = result.GatewayTxnRef
	payout.RawRequestToken = result.RawToken
	payout.RawResponse = result.RawResponse

	if err := s.repo.RecordSyncResult(ctx, id, status, result.GatewayTxnRef, result.RawResponse); err != nil {
		return nil, err
	}
	payout.Status = status
	observability.ObserveStatusTransition(string(status))

	// the synchronous acknowledgement joins the audit trail like any other
	// status observation
	s.recordSyncEvent(ctx, payout, result, status)

	s.logger.Info("payout created",
		zap.String("crn", payout.CRN),
		zap.String("status", string(status)),
		zap.String("gateway_txn_ref", result.GatewayTxnRef),
	)
	return payout, nil
}

func (s *Service) recordSyncEvent(ctx context.Context, payout *domain.PayoutRequest, result *ports.TransferResult, status domain.PayoutStatus) {
	event := &domain.StatusEvent{
		CRN:              payout.CRN,
		GatewayTxnRef:    result.GatewayTxnRef,
		CounterpartyCode: result.StatusCode,
		Description:      result.Description,
		Source:           domain.EventSourceSync,
		MappedStatus:     status,
		CounterpartyTime: time.Now().UTC(),
		RawPayload:       []byte(result.RawResponse),
	}
	if _, err := s.repo.ApplyStatusEvent(ctx, event); err != nil {
		// audit-only failure, the projection is already recorded
		s.logger.Warn("failed to record sync status event",
			zap.String("crn", payout.CRN),
			zap.Error(err),
		)
	}
}

// GetPayout returns the payout owning a correlation reference
func (s *Service) GetPayout(ctx context.Context, crn string) (*domain.PayoutRequest, error) {
	return s.repo.FindByCRN(ctx, crn)
}

// ListEvents returns the audit trail for a correlation reference, oldest first
func (s *Service) ListEvents(ctx context.Context, crn string) ([]domain.StatusEvent, error) {
	payout, err := s.repo.FindByCRN(ctx, crn)
	if err != nil {
		return nil, err
	}
	return s.repo.ListStatusEvents(ctx, payout.ID)
}

// ApplyObservation maps a raw status observation to a lifecycle event and
// applies it. Shared by the poll sweep and the callback handler so both
// channels project identically. Orphan observations return
// domain.ErrPayoutNotFound; the caller decides the policy.
func (s *Service) ApplyObservation(ctx context.Context, obs *ports.StatusObservation, source domain.EventSource, raw []byte) (*ports.ApplyOutcome, error) {
	event := &domain.StatusEvent{
		CRN:              obs.CRN,
		GatewayTxnRef:    obs.GatewayTxnRef,
		CounterpartyCode: obs.CounterpartyCode,
		Description:      obs.Description,
		UTR:              obs.UTR,
		BatchID:          obs.BatchID,
		Source:           source,
		MappedStatus:     s.statusCodes.Resolve(obs.CounterpartyCode),
		CounterpartyTime: parseCounterpartyTime(obs.CounterpartyTime),
		RawPayload:       raw,
	}

	outcome, err := s.repo.ApplyStatusEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	if outcome.ProjectionMoved {
		observability.ObserveStatusTransition(string(outcome.ProjectedStatus))
		s.logger.Info("payout status advanced",
			zap.String("crn", obs.CRN),
			zap.String("from", string(outcome.PreviousStatus)),
			zap.String("to", string(outcome.ProjectedStatus)),
			zap.String("source", string(source)),
		)
	}
	return outcome, nil
}

// PollStatuses runs a get-status enquiry for the given correlation references
// and applies every returned observation. Orphans are logged and skipped;
// one bad record never aborts the sweep. Returns how many observations
// actually advanced a projection.
func (s *Service) PollStatuses(ctx context.Context, crns []string) (int, error) {
	if len(crns) == 0 {
		return 0, nil
	}

	observations, err := s.gateway.GetTransferStatus(ctx, crns)
	if err != nil {
		return 0, err
	}

	moved := 0
	for i := range observations {
		obs := &observations[i]
		outcome, err := s.ApplyObservation(ctx, obs, domain.EventSourcePoll, nil)
		if err != nil {
			s.logger.Warn("poll observation not applied",
				zap.String("crn", obs.CRN),
				zap.Error(err),
			)
			continue
		}
		if outcome.ProjectionMoved {
			moved++
		}
	}
	return moved, nil
}

// SweepUnsettled polls the counterparty for every payout still awaiting a
// terminal outcome. Run periodically: it both reconciles payouts whose
// synchronous call failed and catches callbacks that never arrived. Returns
// how many projections advanced.
func (s *Service) SweepUnsettled(ctx context.Context, minAge time.Duration, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 25
	}
	cutoff := time.Now().Add(-minAge)

	crns, err := s.repo.ListUnsettledCRNs(ctx, cutoff, batchSize)
	if err != nil {
		return 0, err
	}
	if len(crns) == 0 {
		return 0, nil
	}

	s.logger.Info("reconciliation sweep started", zap.Int("unsettled", len(crns)))
	return s.PollStatuses(ctx, crns)
}

// CaptureBalance reads the counterparty account balance, pairs it with the
// locally pending outward total, and appends an immutable snapshot.
func (s *Service) CaptureBalance(ctx context.Context, merchantID string) (*domain.BalanceSnapshot, error) {
	result, err := s.gateway.GetBalance(ctx, "")
	if err != nil {
		return nil, err
	}

	pending, err := s.repo.PendingOutwardTotal(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	snapshot := &domain.BalanceSnapshot{
		MerchantID:     merchantID,
		CorpAccNum:     result.CorpAccNum,
		Balance:        result.Balance,
		PendingOutward: pending,
		RawResponse:    result.RawResponse,
		CapturedAt:     time.Now().UTC(),
	}
	if err := s.repo.InsertBalanceSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// RegisterBeneficiary registers a beneficiary with the counterparty ahead of
// payouts that reference it by code.
func (s *Service) RegisterBeneficiary(ctx context.Context, bene *domain.Beneficiary) (*ports.BeneficiaryResult, error) {
	if bene.Code == "" {
		return nil, missingField("bene_code")
	}
	if err := validateBeneficiary(bene, domain.PayModeNEFT, decimal.Zero); err != nil {
		return nil, err
	}
	result, err := s.gateway.RegisterBeneficiary(ctx, bene)
	if err != nil {
		return nil, err
	}
	if !result.Registered {
		return result, domain.WrapError(domain.ErrorCodeGatewayRejected, "beneficiary registration rejected", domain.ErrGatewayRejected).
			WithDetail("status_code", result.StatusCode).
			WithDetail("description", result.Description)
	}
	return result, nil
}

// EnquireBeneficiary looks up a beneficiary registration by code
func (s *Service) EnquireBeneficiary(ctx context.Context, beneCode string) (*ports.BeneficiaryResult, error) {
	if beneCode == "" {
		return nil, missingField("bene_code")
	}
	return s.gateway.EnquireBeneficiary(ctx, beneCode)
}

// parseCounterpartyTime parses the counterparty's timestamp formats. The
// timestamp is part of the event's natural key, so a missing or malformed
// value falls back to the zero time: the key stays stable and redeliveries
// of the same event still dedupe.
func parseCounterpartyTime(text string) time.Time {
	if text == "" {
		return time.Time{}
	}
	layouts := []string{
		counterpartyTimeLayout,
		"02-01-2006 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

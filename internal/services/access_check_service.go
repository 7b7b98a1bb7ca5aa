package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/listgate/listgate/internal/esp"
	"github.com/listgate/listgate/internal/models"
	"github.com/listgate/listgate/internal/queue"
	pkglogger "github.com/listgate/listgate/pkg/logger"
)

// Client-side polling contract for the checking flow. The UI polls the
// status endpoint once per interval and gives up after the attempt budget,
// degrading to the manual access-request form.
const (
	PollIntervalSeconds = 1
	PollMaxAttempts     = 60
)

// CheckEnqueuer hands a check job to the background queue
type CheckEnqueuer interface {
	Enqueue(ctx context.Context, job queue.CheckJob) error
}

// PollStatusResult reports the state of a check cycle to the polling client
type PollStatusResult struct {
	Status    models.CheckStatus
	HasAccess *bool // set once the cycle completed
}

// AccessCheckService runs the asynchronous "does this visitor still hold
// the required tag" check. One cycle moves pending -> processing ->
// {completed, failed}; terminal states stick until a new cycle resets the
// record through StartCheck.
type AccessCheckService struct {
	records AccessRecordRepository
	tenants TenantRepository
	esp     GatewayResolver
	queue   CheckEnqueuer
	logger  *slog.Logger
}

// NewAccessCheckService creates a new AccessCheckService
func NewAccessCheckService(
	records AccessRecordRepository,
	tenants TenantRepository,
	resolver GatewayResolver,
	enqueuer CheckEnqueuer,
	logger *slog.Logger,
) *AccessCheckService {
	return &AccessCheckService{
		records: records,
		tenants: tenants,
		esp:     resolver,
		queue:   enqueuer,
		logger:  logger,
	}
}

// StartCheck begins a new check cycle and queues the work. The pending CAS
// makes concurrent starts for the same record collapse into one cycle.
func (s *AccessCheckService) StartCheck(ctx context.Context, recordID, tenantID, requiredTagID string) error {
	started, err := s.records.MarkCheckPending(ctx, recordID)
	if err != nil {
		return err
	}
	if !started {
		s.logger.Debug("access check already in flight",
			slog.String("access_record_id", recordID))
		return nil
	}

	job := queue.CheckJob{
		AccessRecordID: recordID,
		TenantID:       tenantID,
		RequiredTagID:  requiredTagID,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		// Terminate the cycle so the record is not stuck pending with no
		// worker ever picking it up.
		if failErr := s.records.FailCheck(ctx, recordID, "failed to queue access check"); failErr != nil {
			s.logger.Error("failed to terminate unqueued check cycle",
				slog.String("access_record_id", recordID),
				slog.Any("error", failErr))
		}
		return err
	}

	s.logger.Info("access check queued",
		slog.String("access_record_id", recordID),
		slog.String("tenant_id", tenantID))

	return nil
}

// RunCheck executes one check job: refresh the visitor's tag set from the
// ESP and record the terminal status. A worker that cannot claim the
// processing transition drops the job; its cycle was superseded.
func (s *AccessCheckService) RunCheck(ctx context.Context, job queue.CheckJob) error {
	claimed, err := s.records.MarkCheckProcessing(ctx, job.AccessRecordID)
	if err != nil {
		return err
	}
	if !claimed {
		s.logger.Debug("stale check job dropped",
			slog.String("access_record_id", job.AccessRecordID))
		return nil
	}

	rec, err := s.records.GetByID(ctx, job.AccessRecordID)
	if err != nil {
		return s.failCheck(ctx, job.AccessRecordID, err)
	}
	tenant, err := s.tenants.GetByID(ctx, job.TenantID)
	if err != nil {
		return s.failCheck(ctx, job.AccessRecordID, err)
	}
	gateway, err := s.esp.ForTenant(tenant)
	if err != nil {
		return s.failCheck(ctx, job.AccessRecordID, err)
	}

	tags, err := gateway.FindSubscriberTags(ctx, rec.Email)
	if err != nil {
		if errors.Is(err, esp.ErrSubscriberNotFound) {
			// The ESP no longer knows this email; the check completed and
			// the answer is an empty tag set.
			tags = []string{}
		} else {
			s.logger.Warn("esp lookup failed during access check",
				slog.String("access_record_id", rec.ID),
				slog.String("email", pkglogger.SanitizedEmail(rec.Email)),
				slog.Any("error", err))
			return s.failCheck(ctx, job.AccessRecordID, err)
		}
	}

	if err := s.records.CompleteCheck(ctx, rec.ID, tags); err != nil {
		return err
	}

	s.logger.Info("access check completed",
		slog.String("access_record_id", rec.ID),
		slog.Int("tag_count", len(tags)))

	return nil
}

// PollStatus reports the check state for a record. The record must belong
// to the tenant whose content is being polled; a cross-tenant record ID
// reads as not found so has_access is never computed against another
// tenant's tag. HasAccess is computed only once the cycle completed.
func (s *AccessCheckService) PollStatus(ctx context.Context, recordID, tenantID, requiredTagID string) (*PollStatusResult, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.TenantID != tenantID {
		return nil, models.ErrNotFound
	}

	result := &PollStatusResult{Status: rec.CheckStatus}
	if rec.CheckStatus == models.CheckCompleted {
		hasAccess := rec.HasTag(requiredTagID)
		result.HasAccess = &hasAccess
	}

	return result, nil
}

// failCheck records a failed cycle and swallows the original error: the
// terminal status is the delivery mechanism, not the worker's return value.
func (s *AccessCheckService) failCheck(ctx context.Context, recordID string, cause error) error {
	if err := s.records.FailCheck(ctx, recordID, cause.Error()); err != nil {
		s.logger.Error("failed to record check failure",
			slog.String("access_record_id", recordID),
			slog.Any("error", err))
		return err
	}
	return nil
}

package migrate

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/usernotes/internal/reddit"
	"github.com/temirov/usernotes/internal/usernotes"
)

const (
	// DefaultPollInterval separates consecutive sync cycles.
	DefaultPollInterval = 60 * time.Second

	serviceMissingMessageConstant    = "note migrator not configured"
	logMessageCycleStartedConstant   = "Sync cycle started"
	logMessageCycleCompleteConstant  = "Sync cycle complete"
	logMessageCycleRetryableConstant = "Sync cycle failed, retrying after interval"
	logMessagePollerStoppedConstant  = "Sync loop stopped"
	logFieldWatermarkConstant        = "watermark"
	logFieldIntervalConstant         = "interval"
)

// ErrServiceNotConfigured indicates a Poller built without a NoteMigrator.
var ErrServiceNotConfigured = errors.New(serviceMissingMessageConstant)

// NoteMigrator fetches legacy notes and uploads them.
type NoteMigrator interface {
	FetchLegacyNotes(executionContext context.Context, afterEpoch int64) ([]usernotes.Note, error)
	UploadNotes(executionContext context.Context, notes []usernotes.Note) (UploadResult, error)
}

// Session carries state between sync cycles. Notes recorded before Watermark are
// not fetched.
type Session struct {
	Watermark time.Time
}

// PollerDependencies describes the collaborators of a Poller.
type PollerDependencies struct {
	Logger   *zap.Logger
	Migrator NoteMigrator
	Clock    Clock
	Interval time.Duration
	Session  *Session
}

// CycleResult reports one fetch and upload cycle.
type CycleResult struct {
	Fetched   int
	Upload    UploadResult
	Watermark time.Time
}

// Poller repeatedly fetches new legacy notes and uploads them.
type Poller struct {
	logger   *zap.Logger
	migrator NoteMigrator
	clock    Clock
	interval time.Duration
	session  *Session
}

// NewPoller constructs a Poller. A nil session starts with the watermark at the current time.
func NewPoller(dependencies PollerDependencies) (*Poller, error) {
	if dependencies.Migrator == nil {
		return nil, ErrServiceNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	interval := dependencies.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	session := dependencies.Session
	if session == nil {
		session = &Session{Watermark: clock.Now()}
	}

	return &Poller{
		logger:   logger,
		migrator: dependencies.Migrator,
		clock:    clock,
		interval: interval,
		session:  session,
	}, nil
}

// Session exposes the state carried between cycles.
func (poller *Poller) Session() *Session {
	return poller.session
}

// RunOnce fetches notes at or after the watermark, uploads them and advances the
// watermark to the time the upload finished. The watermark is unchanged on failure.
func (poller *Poller) RunOnce(executionContext context.Context) (CycleResult, error) {
	afterEpoch := poller.session.Watermark.Unix()
	poller.logger.Debug(logMessageCycleStartedConstant, zap.Time(logFieldWatermarkConstant, poller.session.Watermark))

	notes, fetchError := poller.migrator.FetchLegacyNotes(executionContext, afterEpoch)
	if fetchError != nil {
		return CycleResult{Watermark: poller.session.Watermark}, fetchError
	}

	uploadResult, uploadError := poller.migrator.UploadNotes(executionContext, notes)
	if uploadError != nil {
		return CycleResult{Fetched: len(notes), Upload: uploadResult, Watermark: poller.session.Watermark}, uploadError
	}

	poller.session.Watermark = poller.clock.Now()
	poller.logger.Info(
		logMessageCycleCompleteConstant,
		zap.Int(logFieldNoteCountConstant, len(notes)),
		zap.Int(logFieldCreatedConstant, uploadResult.Created),
		zap.Int(logFieldDroppedConstant, uploadResult.Dropped),
		zap.Int(logFieldAbandonedConstant, uploadResult.Abandoned),
		zap.Time(logFieldWatermarkConstant, poller.session.Watermark),
	)

	return CycleResult{Fetched: len(notes), Upload: uploadResult, Watermark: poller.session.Watermark}, nil
}

// Run repeats RunOnce separated by the poll interval until the context is done,
// which ends the loop without error. Throttled or transient cycle failures are
// retried on the next interval; any other failure is returned.
func (poller *Poller) Run(executionContext context.Context) error {
	for {
		_, cycleError := poller.RunOnce(executionContext)
		if cycleError != nil {
			if executionContext.Err() != nil {
				poller.logger.Info(logMessagePollerStoppedConstant)
				return nil
			}
			switch reddit.KindOf(cycleError) {
			case reddit.ErrorKindRateLimited, reddit.ErrorKindTransient:
				poller.logger.Warn(logMessageCycleRetryableConstant, zap.Duration(logFieldIntervalConstant, poller.interval), zap.Error(cycleError))
			default:
				return cycleError
			}
		}

		if sleepError := poller.clock.Sleep(executionContext, poller.interval); sleepError != nil {
			poller.logger.Info(logMessagePollerStoppedConstant)
			return nil
		}
	}
}

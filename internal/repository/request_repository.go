package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/image-picker/internal/logging"
)

// RequestLog is the audit record of one finished pick request.
type RequestLog struct {
	ID          uint      `gorm:"primaryKey"`
	RequestID   string    `gorm:"column:request_id;uniqueIndex;size:64"`
	Source      string    `gorm:"column:source;size:16"`
	Outcome     string    `gorm:"column:outcome;size:32;index"`
	ErrorCode   string    `gorm:"column:error_code;size:32"`
	ImageName   string    `gorm:"column:image_name;size:255"`
	OutputBytes int       `gorm:"column:output_bytes"`
	Scaled      bool      `gorm:"column:scaled"`
	DurationMs  int64     `gorm:"column:duration_ms"`
	StartedAt   time.Time `gorm:"column:started_at"`
	FinishedAt  time.Time `gorm:"column:finished_at"`
}

// TableName overrides the default table name.
func (RequestLog) TableName() string {
	return "pick_request_logs"
}

// MetricsAggregation is the raw aggregate read by the metrics summary.
type MetricsAggregation struct {
	TotalCount        int64
	SuccessCount      int64
	CancelledCount    int64
	AverageDurationMs float64
}

// RequestRepository persists pick request logs.
type RequestRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewRequestRepository creates a new repository instance.
func NewRequestRepository(db *gorm.DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		db:             db,
		logger:         logger.Named("request_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *RequestRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&RequestLog{})
}

// SaveLog persists a finished request.
func (r *RequestRepository) SaveLog(ctx context.Context, log *RequestLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestID loads the log of a finished request.
func (r *RequestRepository) FindByRequestID(ctx context.Context, requestID string) (*RequestLog, error) {
	var log RequestLog
	err := r.executeWithRetry(ctx, "repository.find_by_request_id", requestID, func() error {
		return r.db.WithContext(ctx).First(&log, "request_id = ?", requestID).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics summarises all persisted requests.
func (r *RequestRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var row struct {
		TotalCount        int64
		SuccessCount      int64
		CancelledCount    int64
		AverageDurationMs float64
	}
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&RequestLog{}).
			Select(`COUNT(*) AS total_count,
				COALESCE(SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END), 0) AS success_count,
				COALESCE(SUM(CASE WHEN outcome = 'cancelled' THEN 1 ELSE 0 END), 0) AS cancelled_count,
				COALESCE(AVG(duration_ms), 0) AS average_duration_ms`).
			Scan(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return &MetricsAggregation{
		TotalCount:        row.TotalCount,
		SuccessCount:      row.SuccessCount,
		CancelledCount:    row.CancelledCount,
		AverageDurationMs: row.AverageDurationMs,
	}, nil
}

func (r *RequestRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, gorm.ErrRecordNotFound) || !isTransientError(err) || attempt == attempts-1 {
			break
		}
		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}

package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qrattend/internal/apperr"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
	"qrattend/internal/store"
)

// QRMode selects how member qr codes are produced.
type QRMode string

const (
	// QRRandom issues an opaque random token.
	QRRandom QRMode = "random"
	// QRName uses the trimmed member name as the token.
	QRName QRMode = "name"
)

// Publisher receives events after a new attendance record is stored.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Options configure a Service. Zero values fall back to defaults.
type Options struct {
	QRMode       QRMode
	StoreTimeout time.Duration
	Now          func() time.Time
	Publisher    Publisher
	Metrics      *metrics.Metrics
}

// Service coordinates member registration, attendance recording and reports.
type Service struct {
	store     store.Store
	qrMode    QRMode
	timeout   time.Duration
	now       func() time.Time
	publisher Publisher
	metrics   *metrics.Metrics
}

// NewService creates a service backed by a store.
func NewService(s store.Store, opts Options) *Service {
	if opts.QRMode == "" {
		opts.QRMode = QRRandom
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:     s,
		qrMode:    opts.QRMode,
		timeout:   opts.StoreTimeout,
		now:       opts.Now,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// storeFailure wraps an unexpected store error for the request boundary.
func storeFailure(op string, err error) error {
	err = fmt.Errorf("%s: %w", op, err)
	if errors.Is(err, store.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Unavailable(err)
	}
	return apperr.Internal(err)
}

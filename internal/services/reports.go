package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/labdeskapp/labdesk/internal/db"
	"github.com/labdeskapp/labdesk/internal/logging"
	"github.com/labdeskapp/labdesk/internal/models"
	"github.com/labdeskapp/labdesk/internal/observability"
	"github.com/labdeskapp/labdesk/internal/storage"
)

type reportWriter interface {
	Create(ctx context.Context, report *models.Report) error
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Report, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
}

type fileStore interface {
	Upload(ctx context.Context, key string, content []byte, contentType string) error
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
}

// ReportService attaches lab reports to orders. Upload drives the order
// to report_ready, which fans out the download notification.
type ReportService struct {
	reports   reportWriter
	storage   fileStore
	lifecycle orderTransitioner
	logger    *slog.Logger
}

func NewReportService(reports reportWriter, fileStorage fileStore, lifecycle orderTransitioner, logger *slog.Logger) *ReportService {
	return &ReportService{
		reports:   reports,
		storage:   fileStorage,
		lifecycle: lifecycle,
		logger:    logger,
	}
}

type UploadReportInput struct {
	OrderNumber string
	FileName    string
	ContentType string
	Content     []byte
	UploadedBy  string
}

// Upload stores the report file and marks the order report_ready. The
// order must be processing.
func (s *ReportService) Upload(ctx context.Context, input UploadReportInput) (*models.Report, error) {
	span := sentry.StartSpan(
		ctx,
		"service.report.upload",
		sentry.WithOpName("service.report"),
		sentry.WithDescription("Upload"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := logging.FromContext(ctx, s.logger)
	meter := observability.MeterFromContext(ctx)

	if len(input.Content) == 0 {
		return nil, fmt.Errorf("report file is empty")
	}

	order, err := s.lifecycle.GetOrderByNumber(ctx, input.OrderNumber)
	if err != nil {
		return nil, err
	}
	if order.Status != models.StatusProcessing {
		return nil, fmt.Errorf("%w: order %s is %s, reports attach to processing orders",
			ErrInvalidTransition, order.OrderNumber, order.Status)
	}

	key := storage.ReportKey(order.OrderNumber, input.FileName)
	if err := s.storage.Upload(ctx, key, input.Content, input.ContentType); err != nil {
		return nil, fmt.Errorf("failed to store report file: %w", err)
	}

	report := &models.Report{
		ID:         uuid.New(),
		OrderID:    order.ID,
		FileKey:    key,
		FileName:   input.FileName,
		UploadedBy: input.UploadedBy,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to record report: %w", err)
	}

	logger.InfoContext(ctx, "report uploaded",
		slog.String("order_number", order.OrderNumber),
		slog.String("file_key", key),
	)
	meter.Count("report.uploaded", 1)

	if _, err := s.lifecycle.Transition(ctx, order.ID, models.StatusReportReady); err != nil {
		return nil, fmt.Errorf("report stored but order transition failed: %w", err)
	}

	return report, nil
}

// DownloadURL returns a presigned link for the order's report. Only
// orders past report_ready expose one. The first fetch marks the report
// delivered.
func (s *ReportService) DownloadURL(ctx context.Context, orderNumber string) (string, error) {
	logger := logging.FromContext(ctx, s.logger)

	order, err := s.lifecycle.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return "", err
	}
	if order.Status != models.StatusReportReady && order.Status != models.StatusCompleted {
		return "", ErrNotFound
	}

	report, err := s.reports.GetByOrder(ctx, order.ID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to load report: %w", err)
	}

	url, err := s.storage.PresignGet(ctx, report.FileKey, time.Hour)
	if err != nil {
		return "", fmt.Errorf("failed to presign report: %w", err)
	}

	if !report.Delivered {
		if err := s.reports.MarkDelivered(ctx, report.ID); err != nil {
			logger.WarnContext(ctx, "failed to mark report delivered",
				slog.String("order_number", order.OrderNumber),
				slog.Any("error", err),
			)
		}
	}

	return url, nil
}

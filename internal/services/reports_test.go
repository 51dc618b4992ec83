package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/labdeskapp/labdesk/internal/db"
	"github.com/labdeskapp/labdesk/internal/models"
	"github.com/labdeskapp/labdesk/internal/notify"
)

type fakeReportWriter struct {
	reports   map[uuid.UUID]*models.Report
	delivered map[uuid.UUID]bool
}

func newFakeReportWriter() *fakeReportWriter {
	return &fakeReportWriter{
		reports:   make(map[uuid.UUID]*models.Report),
		delivered: make(map[uuid.UUID]bool),
	}
}

func (f *fakeReportWriter) Create(_ context.Context, report *models.Report) error {
	f.reports[report.OrderID] = report
	return nil
}

func (f *fakeReportWriter) GetByOrder(_ context.Context, orderID uuid.UUID) (*models.Report, error) {
	report, ok := f.reports[orderID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return report, nil
}

func (f *fakeReportWriter) MarkDelivered(_ context.Context, id uuid.UUID) error {
	f.delivered[id] = true
	return nil
}

type fakeFileStore struct {
	uploads map[string][]byte
	url     string
}

func (f *fakeFileStore) Upload(_ context.Context, key string, content []byte, _ string) error {
	if f.uploads == nil {
		f.uploads = make(map[string][]byte)
	}
	f.uploads[key] = content
	return nil
}

func (f *fakeFileStore) PresignGet(_ context.Context, _ string, _ time.Duration) (string, error) {
	return f.url, nil
}

type reportFixture struct {
	svc     *ReportService
	reports *fakeReportWriter
	files   *fakeFileStore
	orders  *fakeOrderStore
	disp    *fakeDispatcher
	order   *models.Order
}

func newReportFixture(orderStatus models.OrderStatus) *reportFixture {
	order := testOrder(orderStatus)
	orders := newFakeOrderStore(order)
	patients := &fakePatientStore{patients: map[uuid.UUID]*models.Patient{
		order.PatientID: {ID: order.PatientID, Name: "Asha", Email: "asha@example.com"},
	}}
	reports := newFakeReportWriter()
	files := &fakeFileStore{url: "https://s3.example/signed"}
	disp := &fakeDispatcher{delivered: true}
	lifecycle := NewLifecycleService(orders, patients, reports, files, disp, "https://lab.example", "care@lab.example", nil)
	svc := NewReportService(reports, files, lifecycle, nil)

	return &reportFixture{svc: svc, reports: reports, files: files, orders: orders, disp: disp, order: order}
}

func TestReportUpload(t *testing.T) {
	t.Parallel()

	fx := newReportFixture(models.StatusProcessing)

	report, err := fx.svc.Upload(context.Background(), UploadReportInput{
		OrderNumber: fx.order.OrderNumber,
		FileName:    "report.pdf",
		ContentType: "application/pdf",
		Content:     []byte("%PDF-1.7"),
		UploadedBy:  "admin@lab.example",
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if report.FileKey == "" {
		t.Error("report has no file key")
	}
	if _, ok := fx.files.uploads[report.FileKey]; !ok {
		t.Error("file not stored")
	}
	if fx.orders.orders[fx.order.ID].Status != models.StatusReportReady {
		t.Errorf("order status = %s, want report_ready", fx.orders.orders[fx.order.ID].Status)
	}

	if len(fx.disp.calls) != 1 {
		t.Fatalf("dispatch calls = %d", len(fx.disp.calls))
	}
	call := fx.disp.calls[0]
	if call.event != notify.EventReportReady {
		t.Errorf("event = %s", call.event)
	}
	if call.data["report_url"] != "https://s3.example/signed" {
		t.Errorf("report_url = %q", call.data["report_url"])
	}
}

func TestReportUploadRequiresProcessingOrder(t *testing.T) {
	t.Parallel()

	for _, status := range []models.OrderStatus{
		models.StatusPending, models.StatusConfirmed, models.StatusReportReady, models.StatusCancelled,
	} {
		fx := newReportFixture(status)
		_, err := fx.svc.Upload(context.Background(), UploadReportInput{
			OrderNumber: fx.order.OrderNumber,
			FileName:    "report.pdf",
			Content:     []byte("x"),
		})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Upload() with order %s: error = %v, want ErrInvalidTransition", status, err)
		}
	}
}

func TestReportUploadRejectsEmptyFile(t *testing.T) {
	t.Parallel()

	fx := newReportFixture(models.StatusProcessing)
	if _, err := fx.svc.Upload(context.Background(), UploadReportInput{OrderNumber: fx.order.OrderNumber, FileName: "report.pdf"}); err == nil {
		t.Error("Upload() expected error for empty file")
	}
}

func TestReportDownloadURL(t *testing.T) {
	t.Parallel()

	fx := newReportFixture(models.StatusProcessing)
	report, err := fx.svc.Upload(context.Background(), UploadReportInput{
		OrderNumber: fx.order.OrderNumber,
		FileName:    "report.pdf",
		Content:     []byte("%PDF-1.7"),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	url, err := fx.svc.DownloadURL(context.Background(), fx.order.OrderNumber)
	if err != nil {
		t.Fatalf("DownloadURL() error = %v", err)
	}
	if url != "https://s3.example/signed" {
		t.Errorf("url = %q", url)
	}
	if !fx.reports.delivered[report.ID] {
		t.Error("report not marked delivered after first download")
	}
}

func TestReportDownloadURLHiddenBeforeReady(t *testing.T) {
	t.Parallel()

	fx := newReportFixture(models.StatusProcessing)
	if _, err := fx.svc.DownloadURL(context.Background(), fx.order.OrderNumber); !errors.Is(err, ErrNotFound) {
		t.Errorf("DownloadURL() before report_ready: error = %v, want ErrNotFound", err)
	}
}

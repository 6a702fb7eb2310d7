package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stillbooks/compliance_backend/models"
	"github.com/stillbooks/compliance_backend/utils"
)

// WebhookNotifier posts report status changes to NOTIFY_WEBHOOK_URL.
// Fire-and-forget: delivery failures are logged, never propagated, so a
// broken webhook can never roll back or block a workflow transition.
type WebhookNotifier struct {
	logger *logrus.Logger
	client *http.Client
	url    string
}

func NewWebhookNotifier(logger *logrus.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
		url:    os.Getenv("NOTIFY_WEBHOOK_URL"),
	}
}

type reportStatusPayload struct {
	ReportId           int     `json:"report_id"`
	CompanyId          int     `json:"company_id"`
	Year               int     `json:"year"`
	Month              int     `json:"month"`
	Status             string  `json:"status"`
	ConfirmationNumber *string `json:"confirmation_number,omitempty"`
	CorrelationId      string  `json:"correlation_id,omitempty"`
}

func (n *WebhookNotifier) NotifyReportStatusChanged(ctx context.Context, report *models.MonthlyReport) {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	payload := reportStatusPayload{
		ReportId:           report.ID,
		CompanyId:          report.CompanyId,
		Year:               report.Year,
		Month:              report.Month,
		Status:             string(report.Status),
		ConfirmationNumber: report.ConfirmationNumber,
		CorrelationId:      correlationId,
	}

	n.logger.WithFields(logrus.Fields{
		"report_id":  report.ID,
		"company_id": report.CompanyId,
		"status":     report.Status,
	}).Info("report status changed")

	if n.url == "" {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	go func() {
		req, err := http.NewRequest(http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := n.client.Do(req)
		if err != nil {
			n.logger.WithField("report_id", report.ID).Warnf("notification dispatch failed: %v", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			n.logger.WithField("report_id", report.ID).Warnf("notification dispatch returned %d", resp.StatusCode)
		}
	}()
}

package sendvaluationreport

import "house-price-workers/internal/pricing"

type Input struct {
	ValuationID string             `json:"valuationId"`
	Email       string             `json:"email,omitempty"`
	Phone       string             `json:"phone,omitempty"`
	Estimates   []pricing.Estimate `json:"estimates,omitempty"`
}

type Output struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"` // "sent", "disabled"
	EmailMessageID string `json:"emailMessageId,omitempty"`
	SMSMessageID   string `json:"smsMessageId,omitempty"`
	SentAt         string `json:"sentAt"` // ISO 8601
}

// Statuses
const (
	StatusSent     = "sent"
	StatusDisabled = "disabled"
)

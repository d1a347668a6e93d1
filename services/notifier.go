package services

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"parking-marketplace-server/config"
)

// Notifier is the email collaborator. Delivery is fire-and-forget from the
// booking core's perspective: failures are logged and never block a status
// transition.
type Notifier interface {
	Send(to string, template string, data map[string]interface{})
}

// Email template names used by the booking lifecycle
const (
	TemplateBookingConfirmed = "booking_confirmed"
	TemplateBookingCancelled = "booking_cancelled"
	TemplateBookingExtended  = "booking_extended"
	TemplatePaymentFailed    = "payment_failed"
	TemplateRefundIssued     = "refund_issued"
)

// EmailNotifier posts send requests to a JSON email-sending API. Template
// rendering happens on the provider side; we only name the template and pass
// its data.
type EmailNotifier struct {
	client *http.Client
}

func NewEmailNotifier() *EmailNotifier {
	return &EmailNotifier{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers asynchronously so callers never wait on the email API
func (n *EmailNotifier) Send(to string, template string, data map[string]interface{}) {
	go n.deliver(to, template, data)
}

func (n *EmailNotifier) deliver(to string, template string, data map[string]interface{}) {
	apiURL := config.AppConfig.Email.APIURL
	if apiURL == "" {
		log.Printf("📧 Email API not configured, skipping %s to %s", template, to)
		return
	}

	payload := map[string]interface{}{
		"from":     config.AppConfig.Email.FromEmail,
		"to":       to,
		"template": template,
		"data":     data,
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		log.Printf("❌ Failed to marshal email payload: %v", err)
		return
	}

	req, err := http.NewRequest("POST", apiURL, bytes.NewReader(bodyBytes))
	if err != nil {
		log.Printf("❌ Failed to build email request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+config.AppConfig.Email.APIKey)

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("❌ Email API call failed for %s: %v", template, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("⚠️ Email API returned %d for %s to %s", resp.StatusCode, template, to)
		return
	}

	log.Printf("📧 Sent %s email to %s", template, to)
}

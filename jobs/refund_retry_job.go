package jobs

import (
	"context"
	"log"
	"time"

	"parking-marketplace-server/services"
)

// RefundRetryJob re-attempts refunds that failed against the payment
// processor during cancellation
type RefundRetryJob struct {
	bookings *services.BookingService
	interval time.Duration
	stopChan chan bool
}

// NewRefundRetryJob creates a new refund retry job
func NewRefundRetryJob(bookings *services.BookingService) *RefundRetryJob {
	return &RefundRetryJob{
		bookings: bookings,
		interval: 5 * time.Minute,
		stopChan: make(chan bool),
	}
}

// Start begins the refund retry job
func (j *RefundRetryJob) Start() {
	go j.run()
	log.Println("🚀 Refund retry job started")
}

// Stop stops the refund retry job
func (j *RefundRetryJob) Stop() {
	j.stopChan <- true
	log.Println("🛑 Refund retry job stopped")
}

// run executes the refund retry job
func (j *RefundRetryJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.retryPendingRefunds()
		case <-j.stopChan:
			return
		}
	}
}

// retryPendingRefunds flushes the queue of refunds awaiting the processor
func (j *RefundRetryJob) retryPendingRefunds() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	retried, err := j.bookings.RetryPendingRefunds(ctx)
	if err != nil {
		log.Printf("❌ Error retrying pending refunds: %v", err)
		return
	}
	if retried > 0 {
		log.Printf("💸 Issued %d previously failed refunds", retried)
	}
}

package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/cashtrack/ledger-service/internal/domain"
)

// BalanceRefreshConsumer re-runs the idempotent balance recomputation when a
// refresh is requested asynchronously. This is the self-healing path for a
// cached balance that went stale out of band, typically data edited outside
// the guarded mutation path.
type BalanceRefreshConsumer struct {
	service *Service
}

func NewBalanceRefreshConsumer(service *Service) *BalanceRefreshConsumer {
	return &BalanceRefreshConsumer{service: service}
}

// HandleMessage processes one refresh request. It returns true when the
// message should be acknowledged; malformed payloads are acknowledged to
// drop, transient failures are requeued.
func (c *BalanceRefreshConsumer) HandleMessage(body []byte) bool {
	var event domain.RefreshRequestedPayload
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=refresh_consumer msg=\"unmarshal failed; dropping\" err=%v", err)
		return true
	}
	if event.SavingsAccountID == uuid.Nil {
		log.Printf("level=warn component=refresh_consumer msg=\"missing account id; dropping\"")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	balance, err := c.service.RefreshBalance(ctx, event.SavingsAccountID)
	if err != nil {
		if IsNotFound(err) {
			// The account was deleted between request and processing.
			log.Printf("level=info component=refresh_consumer msg=\"account gone; dropping\" account_id=%s", event.SavingsAccountID)
			return true
		}
		log.Printf("level=error component=refresh_consumer msg=\"refresh failed; requeuing\" account_id=%s err=%v", event.SavingsAccountID, err)
		return false
	}

	log.Printf("level=info component=refresh_consumer msg=\"balance refreshed\" account_id=%s current_amount=%s reason=%q",
		event.SavingsAccountID, balance.StringFixed(2), event.Reason)
	return true
}

package payments

import (
	"sort"
	"time"
)

type TransactionType string

const (
	TransactionPayment TransactionType = "payment"
	TransactionIntent  TransactionType = "intent"
)

// Transaction is one row of the merged payment history
type Transaction struct {
	Type           TransactionType `json:"type"`
	ID             string          `json:"id"`
	ReservationID  string          `json:"reservationId"`
	Amount         float64         `json:"amount"`
	Currency       string          `json:"currency"`
	Status         string          `json:"status"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	FailureReason  string          `json:"failureReason,omitempty"`
	ExpiresAt      string          `json:"expiresAt,omitempty"`
	CreatedAt      string          `json:"createdAt"`
}

// History is the merged view of payments and intents with totals
type History struct {
	Transactions []Transaction `json:"transactions"`
	Completed    int           `json:"completed"`
	Pending      int           `json:"pending"`
	TotalPaid    float64       `json:"totalPaid"`
}

// Summarize merges payments and intents, newest first
func Summarize(payments []Payment, intents []PaymentIntent) History {
	h := History{Transactions: make([]Transaction, 0, len(payments)+len(intents))}

	for _, p := range payments {
		h.Transactions = append(h.Transactions, Transaction{
			Type:          TransactionPayment,
			ID:            p.PaymentID,
			ReservationID: p.ReservationID,
			Amount:        p.Amount,
			Currency:      p.Currency,
			Status:        string(p.Status),
			FailureReason: p.FailureReason,
			CreatedAt:     p.CreatedAt,
		})
		if p.Succeeded() {
			h.Completed++
			h.TotalPaid += p.Amount
		} else if p.Status.IsPending() {
			h.Pending++
		}
	}

	for _, in := range intents {
		h.Transactions = append(h.Transactions, Transaction{
			Type:           TransactionIntent,
			ID:             in.IntentID,
			ReservationID:  in.ReservationID,
			Amount:         in.Amount,
			Currency:       in.Currency,
			Status:         string(in.Status),
			IdempotencyKey: in.IdempotencyKey,
			ExpiresAt:      in.ExpiresAt,
			CreatedAt:      in.CreatedAt,
		})
		if in.Status == IntentCreated || in.Status == IntentProcessing {
			h.Pending++
		}
	}

	sort.SliceStable(h.Transactions, func(i, j int) bool {
		return parseTime(h.Transactions[i].CreatedAt).After(parseTime(h.Transactions[j].CreatedAt))
	})
	return h
}

// parseTime accepts RFC 3339 and the zone-less timestamps some backends emit.
// Unparseable values sort last.
func parseTime(v string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

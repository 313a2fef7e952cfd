// Package history keeps the per-chain, per-account transaction history that
// the wallet shows after a submission.
package history

import (
	"context"
	"errors"
	"time"
)

// Status values of a Record.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

var ErrInvalidKey = errors.New("history: chain and account are required")

// Party is an address with an optional display name.
type Party struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Record is one transaction detail entry.
type Record struct {
	Action       string    `json:"action"`
	Block        uint64    `json:"block"`
	Date         time.Time `json:"date"`
	Fee          string    `json:"fee"`
	From         Party     `json:"from"`
	Status       string    `json:"status"`
	ThroughProxy *Party    `json:"throughProxy,omitempty"`
	TxHash       string    `json:"txHash"`
	FailureText  string    `json:"failureText,omitempty"`
	Chain        string    `json:"chain"`
}

// Store is append-only. List returns records in append order.
type Store interface {
	Append(ctx context.Context, chain, account string, records ...Record) error
	List(ctx context.Context, chain, account string) ([]Record, error)
}

func checkKey(chain, account string) error {
	if chain == "" || account == "" {
		return ErrInvalidKey
	}
	return nil
}

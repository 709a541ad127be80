/*
refno.go - Human-readable reference numbers

PURPOSE:
  Every record carries a "{year}/{prefix}/{seq}" reference number, e.g.
  "2026/P/0007" for the seventh payment of 2026. Sequences are per prefix
  per year and come from the forward-only allocator (SequenceStore), so a
  number is never reused even after the newest record is deleted.

FORMATS:
  payment          {year}/P/%04d
  receipt          {year}/R/%04d
  refund           {year}/E/%04d
  wallet_transfer  {year}/WT/%04d
  ticket           {year}/T/%05d
  service          {year}/S/%05d
*/
package engine

import (
	"context"
	"fmt"
	"time"
)

const (
	txRefWidth      = 4
	bookingRefWidth = 5

	TicketRefPrefix  = "T"
	ServiceRefPrefix = "S"
)

var txRefPrefix = map[TransactionKind]string{
	TxPayment:        "P",
	TxReceipt:        "R",
	TxRefund:         "E",
	TxWalletTransfer: "WT",
}

// TransactionRefNo allocates the next reference number for a transaction
// kind in the current year.
func TransactionRefNo(ctx context.Context, seqs SequenceStore, kind TransactionKind) (string, error) {
	prefix, ok := txRefPrefix[kind]
	if !ok {
		return "", fmt.Errorf("no reference prefix for transaction kind %q", kind)
	}
	return nextRefNo(ctx, seqs, prefix, txRefWidth)
}

// BookingRefNo allocates the next reference number for a booking prefix
// (TicketRefPrefix or ServiceRefPrefix) in the current year.
func BookingRefNo(ctx context.Context, seqs SequenceStore, prefix string) (string, error) {
	return nextRefNo(ctx, seqs, prefix, bookingRefWidth)
}

func nextRefNo(ctx context.Context, seqs SequenceStore, prefix string, width int) (string, error) {
	year := time.Now().UTC().Year()
	n, err := seqs.NextSeq(ctx, prefix, year)
	if err != nil {
		return "", fmt.Errorf("failed to allocate %s sequence: %w", prefix, err)
	}
	return fmt.Sprintf("%d/%s/%0*d", year, prefix, width, n), nil
}

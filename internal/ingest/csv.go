// Package ingest adapts a CSV transaction export into the model
// package's Transaction type. Deliberately thin: no locale-aware
// parsing, no streaming, just header-indexed row decoding.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hybrid-sentinel/sentinel/internal/model"
)

const timestampLayout = "2006-01-02T15:04:05"

var requiredColumns = []string{"transaction_id", "sender_id", "receiver_id", "amount", "timestamp"}

// FromCSV parses r into a transaction batch. The header row must
// contain transaction_id, sender_id, receiver_id, amount, timestamp
// (any order, extra columns ignored). Malformed rows — bad column
// count, non-positive amount, unparseable timestamp — yield
// model.ErrMalformedInput wrapping the offending row number.
func FromCSV(r io.Reader) ([]model.Transaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", model.ErrMalformedInput, err)
	}
	col, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var out []model.Transaction
	rowNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", model.ErrMalformedInput, rowNum, err)
		}
		rowNum++

		txn, err := parseRow(record, col, rowNum)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, nil
}

func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.ToLower(h))] = i
	}
	for _, want := range requiredColumns {
		if _, ok := idx[want]; !ok {
			return nil, fmt.Errorf("%w: missing required column %q", model.ErrMalformedInput, want)
		}
	}
	return idx, nil
}

func parseRow(record []string, col map[string]int, rowNum int) (model.Transaction, error) {
	get := func(name string) (string, error) {
		i := col[name]
		if i >= len(record) {
			return "", fmt.Errorf("%w: row %d: missing column %q", model.ErrMalformedInput, rowNum, name)
		}
		return strings.TrimSpace(record[i]), nil
	}

	id, err := get("transaction_id")
	if err != nil {
		return model.Transaction{}, err
	}
	sender, err := get("sender_id")
	if err != nil {
		return model.Transaction{}, err
	}
	receiver, err := get("receiver_id")
	if err != nil {
		return model.Transaction{}, err
	}
	amountStr, err := get("amount")
	if err != nil {
		return model.Transaction{}, err
	}
	tsStr, err := get("timestamp")
	if err != nil {
		return model.Transaction{}, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: row %d: unparseable amount %q", model.ErrMalformedInput, rowNum, amountStr)
	}
	if amount.Sign() <= 0 {
		return model.Transaction{}, fmt.Errorf("%w: row %d: non-positive amount %q", model.ErrMalformedInput, rowNum, amountStr)
	}

	ts, err := time.Parse(timestampLayout, tsStr)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: row %d: unparseable timestamp %q", model.ErrMalformedInput, rowNum, tsStr)
	}

	return model.Transaction{
		ID:        id,
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		Timestamp: ts,
	}, nil
}

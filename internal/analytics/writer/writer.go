package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/seahsky/joho-erp-sub004/internal/analytics/types"
)

const (
	defaultAttempts    = 3
	defaultBaseBackoff = 250 * time.Millisecond
	defaultMaxBackoff  = 2 * time.Second
)

type Config struct {
	Table       string
	Attempts    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

type inserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter streams one fulfillment row per event. Each row carries the
// event id as its insert id so a redelivered message does not double count.
// Rows are written before the message is acked; nothing is buffered.
type BigQueryWriter struct {
	client   inserter
	table    string
	attempts uint64
	base     time.Duration
	max      time.Duration
}

func New(client inserter, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		return nil, errors.New("fulfillment event table is required")
	}

	w := &BigQueryWriter{
		client:   client,
		table:    table,
		attempts: defaultAttempts,
		base:     defaultBaseBackoff,
		max:      defaultMaxBackoff,
	}
	if cfg.Attempts > 0 {
		w.attempts = uint64(cfg.Attempts)
	}
	if cfg.BaseBackoff > 0 {
		w.base = cfg.BaseBackoff
	}
	if cfg.MaxBackoff > 0 {
		w.max = cfg.MaxBackoff
	}
	if w.max < w.base {
		w.max = w.base
	}
	return w, nil
}

func (w *BigQueryWriter) InsertFulfillment(ctx context.Context, row types.FulfillmentEventRow) error {
	rows := []any{&cbigquery.StructSaver{Struct: row, InsertID: row.EventID}}

	backoff := retry.WithMaxRetries(w.attempts-1, retry.WithCappedDuration(w.max, retry.NewExponential(w.base)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, w.table, rows)
		if err != nil && isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %s row %s: %w", w.table, row.EventID, err)
	}
	return nil
}

// isRetryable treats an error as transient only if every row-level and
// nested error is transient; one bad row makes the whole insert permanent.
func isRetryable(err error) bool {
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return allRetryable(multi)
	}
	var put cbigquery.PutMultiError
	if errors.As(err, &put) {
		if len(put) == 0 {
			return false
		}
		for _, rowErr := range put {
			if !allRetryable(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

func allRetryable(errs cbigquery.MultiError) bool {
	if len(errs) == 0 {
		return false
	}
	for _, inner := range errs {
		if !isRetryable(inner) {
			return false
		}
	}
	return true
}

// EncodeJSON converts a payload into a BigQuery JSON column value. Empty
// payloads become NULL.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return value, nil
	case json.RawMessage:
		raw = value
	case []byte:
		raw = value
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}

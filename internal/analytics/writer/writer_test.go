package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/seahsky/joho-erp-sub004/internal/analytics/types"
)

type fakeInserter struct {
	responses []error
	tables    []string
	rows      []any
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	f.tables = append(f.tables, table)
	f.rows = rows
	if len(f.responses) == 0 {
		return nil
	}
	err := f.responses[0]
	f.responses = f.responses[1:]
	return err
}

func newTestWriter(t *testing.T, responses ...error) (*BigQueryWriter, *fakeInserter) {
	t.Helper()
	fake := &fakeInserter{responses: responses}
	w, err := New(fake, Config{Table: " fulfillment_events ", BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	require.NoError(t, err)
	return w, fake
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Config{Table: "fulfillment_events"})
	assert.Error(t, err)
	_, err = New(&fakeInserter{}, Config{Table: " "})
	assert.Error(t, err)

	w, err := New(&fakeInserter{}, Config{Table: "t", BaseBackoff: time.Second, MaxBackoff: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, uint64(defaultAttempts), w.attempts)
	assert.Equal(t, time.Second, w.max)
}

func TestInsertKeysRowByEventID(t *testing.T) {
	w, fake := newTestWriter(t)

	require.NoError(t, w.InsertFulfillment(context.Background(), types.FulfillmentEventRow{EventID: "evt-1"}))

	require.Len(t, fake.rows, 1)
	saver, ok := fake.rows[0].(*cbigquery.StructSaver)
	require.True(t, ok)
	assert.Equal(t, "evt-1", saver.InsertID)
	assert.Equal(t, []string{"fulfillment_events"}, fake.tables)
}

func TestInsertRetriesTransientErrors(t *testing.T) {
	w, fake := newTestWriter(t,
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		status.Error(codes.Unavailable, "down"),
	)

	require.NoError(t, w.InsertFulfillment(context.Background(), types.FulfillmentEventRow{EventID: "evt-1"}))
	assert.Len(t, fake.tables, 3)
}

func TestInsertGivesUpAfterAttempts(t *testing.T) {
	transient := &googleapi.Error{Code: http.StatusTooManyRequests}
	w, fake := newTestWriter(t, transient, transient, transient, transient)

	err := w.InsertFulfillment(context.Background(), types.FulfillmentEventRow{EventID: "evt-1"})
	require.Error(t, err)
	assert.Len(t, fake.tables, defaultAttempts)

	var apiErr *googleapi.Error
	assert.True(t, errors.As(err, &apiErr))
}

func TestInsertStopsOnPermanentError(t *testing.T) {
	w, fake := newTestWriter(t, &googleapi.Error{Code: http.StatusBadRequest})

	assert.Error(t, w.InsertFulfillment(context.Background(), types.FulfillmentEventRow{EventID: "evt-1"}))
	assert.Len(t, fake.tables, 1)
}

func TestIsRetryable(t *testing.T) {
	transient := &googleapi.Error{Code: http.StatusInternalServerError}
	permanent := &googleapi.Error{Code: http.StatusBadRequest}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"429", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"404", &googleapi.Error{Code: http.StatusNotFound}, false},
		{"wrapped 503", fmt.Errorf("put: %w", &googleapi.Error{Code: http.StatusServiceUnavailable}), true},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad row"), false},
		{"plain", errors.New("plain"), false},
		{"multi all transient", cbigquery.MultiError{transient, transient}, true},
		{"multi mixed", cbigquery.MultiError{transient, permanent}, false},
		{"multi empty", cbigquery.MultiError{}, false},
		{"row errors transient", cbigquery.PutMultiError{{InsertID: "a", Errors: cbigquery.MultiError{transient}}}, true},
		{"row errors permanent", cbigquery.PutMultiError{{InsertID: "a", Errors: cbigquery.MultiError{permanent}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"order_id": "o-1"})
	require.NoError(t, err)
	assert.True(t, nj.Valid)
	assert.JSONEq(t, `{"order_id":"o-1"}`, nj.JSONVal)

	nj, err = EncodeJSON(nil)
	require.NoError(t, err)
	assert.False(t, nj.Valid)

	nj, err = EncodeJSON(json.RawMessage(`{"area":"north"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"area":"north"}`, nj.JSONVal)

	nj, err = EncodeJSON([]byte{})
	require.NoError(t, err)
	assert.False(t, nj.Valid)

	_, err = EncodeJSON(make(chan int))
	assert.Error(t, err)
}

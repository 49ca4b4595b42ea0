package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/seahsky/joho-erp-sub004/pkg/config"
)

type sampleRow struct {
	EventID    string    `bigquery:"event_id"`
	OccurredAt time.Time `bigquery:"occurred_at"`
	Quantity   int64     `bigquery:"quantity"`
}

func TestNormalizeSpecs(t *testing.T) {
	specs, err := normalizeSpecs([]TableSpec{{Name: " fulfillment_events "}})
	require.NoError(t, err)
	assert.Equal(t, "fulfillment_events", specs[0].Name)

	_, err = normalizeSpecs(nil)
	assert.ErrorIs(t, err, errTableNameRequired)
	_, err = normalizeSpecs([]TableSpec{{Name: " "}})
	assert.ErrorIs(t, err, errTableNameRequired)
}

func TestTableMetadataPartitionsAndRelaxes(t *testing.T) {
	meta, err := tableMetadata(TableSpec{Name: "events", Row: sampleRow{}, PartitionField: "occurred_at"})
	require.NoError(t, err)
	require.Len(t, meta.Schema, 3)
	for _, field := range meta.Schema {
		assert.False(t, field.Required, field.Name)
	}
	require.NotNil(t, meta.TimePartitioning)
	assert.Equal(t, bigquery.DayPartitioningType, meta.TimePartitioning.Type)
	assert.Equal(t, "occurred_at", meta.TimePartitioning.Field)

	meta, err = tableMetadata(TableSpec{Name: "events", Row: sampleRow{}})
	require.NoError(t, err)
	assert.Nil(t, meta.TimePartitioning)

	_, err = tableMetadata(TableSpec{Name: "bad", Row: 42})
	assert.Error(t, err)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(fmt.Errorf("metadata: %w", &googleapi.Error{Code: http.StatusNotFound})))
	assert.False(t, isNotFound(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, isNotFound(errors.New("boom")))
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	_, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "d"}, nil, TableSpec{Name: "t"})
	assert.ErrorIs(t, err, errProjectIDRequired)
	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{}, nil, TableSpec{Name: "t"})
	assert.ErrorIs(t, err, errDatasetRequired)
	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "d"}, nil)
	assert.ErrorIs(t, err, errTableNameRequired)
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	assert.ErrorIs(t, c.InsertRows(context.Background(), "t", []any{1}), errClientNotInitialized)
	assert.ErrorIs(t, c.Ping(context.Background()), errClientNotInitialized)
	assert.NoError(t, c.Close())
}

package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seahsky/joho-erp-sub004/pkg/config"
)

func TestResourceName(t *testing.T) {
	tests := []struct {
		name    string
		project string
		kind    string
		in      string
		want    string
	}{
		{"topic id", "joho-prod", kindTopic, "fulfillment-domain", "projects/joho-prod/topics/fulfillment-domain"},
		{"trims", "joho-prod", kindSubscription, " analytics ", "projects/joho-prod/subscriptions/analytics"},
		{"full topic passes", "joho-prod", kindTopic, "projects/other/topics/x", "projects/other/topics/x"},
		{"wrong kind is expanded", "joho-prod", kindSubscription, "projects/other/topics/x", "projects/joho-prod/subscriptions/projects/other/topics/x"},
		{"blank", "joho-prod", kindTopic, "  ", ""},
		{"no project", "", kindTopic, "x", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resourceName(tt.project, tt.kind, tt.in))
		})
	}
}

func TestConfiguredNamesSkipBlank(t *testing.T) {
	cfg := config.PubSubConfig{DomainTopic: "domain", NotificationTopic: " ", AccountingTopic: " accounting "}
	assert.Equal(t, []string{"domain", "accounting"}, cfg.Topics())
	assert.Empty(t, cfg.Subscriptions())
}

func TestDescribeLookup(t *testing.T) {
	assert.NoError(t, describeLookup("topic", "t", nil))
	err := describeLookup("topic", "t", assert.AnError)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{ProjectID: " "}, config.PubSubConfig{}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("t"))
	assert.Nil(t, c.Subscription("s"))
	assert.Nil(t, c.AnalyticsSubscription())
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}

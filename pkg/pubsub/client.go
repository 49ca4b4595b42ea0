package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/seahsky/joho-erp-sub004/pkg/config"
	"github.com/seahsky/joho-erp-sub004/pkg/gcp"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
)

const (
	kindTopic        = "topics"
	kindSubscription = "subscriptions"
)

var errProjectIDRequired = errors.New("gcp project id is required")

// Client wraps the Pub/Sub v2 client with the topic and subscription names
// the fulfillment binaries are configured with.
type Client struct {
	client      *pubsub.Client
	projectID   string
	cfg         config.PubSubConfig
	checkTopics bool
}

type Option func(*Client)

// WithTopicCheck makes startup and Ping verify every configured topic exists.
// Publishers want this; pure consumers usually lack topic read permission.
func WithTopicCheck() Option {
	return func(c *Client) { c.checkTopics = true }
}

func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	projectID := strings.TrimSpace(gcpCfg.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, projectID, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: psClient, projectID: projectID, cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.verify(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project":       projectID,
			"topics":        c.cfg.Topics(),
			"subscriptions": c.cfg.Subscriptions(),
		}), "pubsub client initialized")
	}
	return c, nil
}

// verify collects every missing resource instead of stopping at the first.
func (c *Client) verify(ctx context.Context) error {
	var errs error
	if c.checkTopics {
		for _, name := range c.cfg.Topics() {
			errs = multierr.Append(errs, c.topicExists(ctx, name))
		}
	}
	for _, name := range c.cfg.Subscriptions() {
		errs = multierr.Append(errs, c.subscriptionExists(ctx, name))
	}
	return errs
}

func (c *Client) topicExists(ctx context.Context, name string) error {
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
		Topic: resourceName(c.projectID, kindTopic, name),
	})
	return describeLookup("topic", name, err)
}

func (c *Client) subscriptionExists(ctx context.Context, name string) error {
	_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
		Subscription: resourceName(c.projectID, kindSubscription, name),
	})
	return describeLookup("subscription", name, err)
}

func describeLookup(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

// Subscription returns a subscriber for an ID or full resource name, or nil
// when the client or name is empty.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, kindSubscription, name)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// AnalyticsSubscription returns the analytics subscriber with flow control
// applied from config.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	sub := c.Subscription(c.cfg.AnalyticsSubscription)
	if sub == nil {
		return nil
	}
	if c.cfg.AnalyticsMaxInFlight > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.cfg.AnalyticsMaxInFlight
	}
	if c.cfg.AnalyticsGoroutines > 0 {
		sub.ReceiveSettings.NumGoroutines = c.cfg.AnalyticsGoroutines
	}
	return sub
}

// Publisher returns a publisher for a topic ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, kindTopic, name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.verify(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a short ID to projects/<p>/<kind>/<id>. Names that are
// already fully qualified for the kind pass through.
func resourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/" + kind + "/" + n
}

// Package notify hands finished trip plans to the map and routing
// collaborator.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/lexcodex/ceylo/trip"
)

const DefaultTopicPrefix = "ceylo"

// Config describes the broker connection.
type Config struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Timeout     time.Duration
}

// PlanMessage is the payload published for each plan. The route is
// duplicated at the top level because the map collaborator keys on it.
type PlanMessage struct {
	ConversationID string     `json:"conversation_id"`
	Destination    trip.Text  `json:"destination"`
	Route          trip.Route `json:"route"`
	Plan           *trip.Plan `json:"plan"`
	PublishedAt    time.Time  `json:"published_at"`
}

// TopicPlan returns the topic a conversation's plan is published on.
func TopicPlan(prefix, conversationID string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/plans/" + conversationID
}

// NewPlanMessage builds the payload for a plan.
func NewPlanMessage(conversationID string, plan *trip.Plan) PlanMessage {
	msg := PlanMessage{
		ConversationID: conversationID,
		Plan:           plan,
		PublishedAt:    time.Now().UTC(),
	}
	if plan != nil {
		msg.Destination = plan.Destination
		msg.Route = plan.Route
	}
	return msg
}

// MQTTPublisher publishes plans over MQTT.
type MQTTPublisher struct {
	cfg    Config
	client paho.Client
	logger *log.Logger
}

// NewMQTTPublisher connects to the broker.
func NewMQTTPublisher(cfg Config, logger *log.Logger) (*MQTTPublisher, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("mqtt broker url required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "ceylo-" + uuid.NewString()[:8]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(cfg.Timeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Printf("mqtt connection lost: %v", err)
	})
	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		client.Disconnect(100)
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return newMQTTPublisher(cfg, client, logger), nil
}

func newMQTTPublisher(cfg Config, client paho.Client, logger *log.Logger) *MQTTPublisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &MQTTPublisher{cfg: cfg, client: client, logger: logger}
}

// PublishPlan sends the plan as a retained QoS 1 message.
func (p *MQTTPublisher) PublishPlan(ctx context.Context, conversationID string, plan *trip.Plan) error {
	if plan == nil {
		return errors.New("nil plan")
	}
	payload, err := json.Marshal(NewPlanMessage(conversationID, plan))
	if err != nil {
		return err
	}
	topic := TopicPlan(p.cfg.TopicPrefix, conversationID)
	token := p.client.Publish(topic, 1, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.cfg.Timeout):
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}
	if p.logger != nil {
		p.logger.Printf("published plan for %s to %s (%d bytes)", conversationID, topic, len(payload))
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// NopPublisher drops plans.
type NopPublisher struct{}

// PublishPlan implements the plan sink contract.
func (NopPublisher) PublishPlan(context.Context, string, *trip.Plan) error { return nil }

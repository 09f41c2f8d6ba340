package notifier

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/qb411/cloud-health-map/internal/models"
)

// StatusChange describes one region moving between severities after a cycle.
type StatusChange struct {
	RegionCode string          `json:"region_code"`
	Previous   models.Severity `json:"previous"`
	Current    models.Severity `json:"current"`
	ChangedAt  time.Time       `json:"changed_at"`
}

// StatusPublisher pushes region status transitions to an MQTT topic so
// display surfaces can react without polling the HTTP API.
type StatusPublisher struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger *zap.Logger
}

func NewStatusPublisher(broker, clientID, topic string, qos byte, logger *zap.Logger) (*StatusPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &StatusPublisher{
		client: client,
		topic:  topic,
		qos:    qos,
		logger: logger,
	}, nil
}

// PublishChanges emits one retained message per transition. Publish failures
// are reported but never fail the cycle.
func (p *StatusPublisher) PublishChanges(changes []StatusChange) {
	for _, change := range changes {
		payload, err := json.Marshal(change)
		if err != nil {
			p.logger.Error("Failed to marshal status change", zap.Error(err))
			continue
		}

		token := p.client.Publish(p.topic, p.qos, true, payload)
		token.Wait()
		if token.Error() != nil {
			p.logger.Error("Failed to publish status change",
				zap.String("region", change.RegionCode),
				zap.Error(token.Error()),
			)
			continue
		}

		p.logger.Info("Published status change",
			zap.String("region", change.RegionCode),
			zap.String("previous", change.Previous.String()),
			zap.String("current", change.Current.String()),
		)
	}
}

func (p *StatusPublisher) Close() {
	p.client.Disconnect(250)
}

package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/mr1hm/go-disaster-notify/internal/config"
	"github.com/mr1hm/go-disaster-notify/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Kafka publishes every newly stored disaster to a topic for downstream
// consumers.
type Kafka struct {
	writer messageWriter
}

func NewKafka(cfg config.KafkaConfig) *Kafka {
	return &Kafka{writer: &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}}
}

type eventPayload struct {
	ID            int64     `json:"id"`
	Type          string    `json:"type"`
	SeverityLevel string    `json:"severity_level"`
	Message       string    `json:"message"`
	StartTime     time.Time `json:"start_time"`
	RawRegionText string    `json:"raw_region_text"`
	Regions       []string  `json:"regions"`
}

func (k *Kafka) Publish(ctx context.Context, d *models.Disaster) error {
	msg, err := serializeToMessage(d)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write disaster %d to kafka: %w", d.ID, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

func serializeToMessage(d *models.Disaster) (kafkago.Message, error) {
	regions := make([]string, 0, len(d.Regions))
	for _, r := range d.Regions {
		regions = append(regions, r.Key().String())
	}
	data, err := json.Marshal(eventPayload{
		ID:            d.ID,
		Type:          d.Type,
		SeverityLevel: d.SeverityLevel,
		Message:       d.Message,
		StartTime:     d.StartTime.UTC(),
		RawRegionText: d.RawRegionText,
		Regions:       regions,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize disaster %d: %w", d.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.FormatInt(d.ID, 10)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "disaster_type", Value: []byte(d.Type)},
			{Key: "start_time", Value: []byte(d.StartTime.UTC().Format(time.RFC3339))},
		},
	}, nil
}

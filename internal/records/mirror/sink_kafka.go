package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"padron/internal/records"
)

// auditMessage is the JSON payload published per audit entry. Field names
// follow the wire vocabulary of the HTTP API.
type auditMessage struct {
	ID        int64  `json:"id"`
	ClienteID int64  `json:"cliente_id"`
	Accion    string `json:"accion"`
	Fecha     string `json:"fecha"`
}

// KafkaSink publishes audit entries to a Kafka topic, keyed by client id so a
// client's trail stays ordered within a partition.
type KafkaSink struct {
	client *kgo.Client
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaSink{client: client}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, entry records.AuditEntry) error {
	payload, err := json.Marshal(auditMessage{
		ID:        entry.ID,
		ClienteID: entry.ClientID,
		Accion:    entry.Action,
		Fecha:     entry.OccurredAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal audit message: %w", err)
	}

	record := &kgo.Record{
		Key:   []byte(strconv.FormatInt(entry.ClientID, 10)),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit message: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() {
	s.client.Close()
}

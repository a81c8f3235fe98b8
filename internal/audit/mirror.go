package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trustplane/platform/internal/domain"
	"github.com/trustplane/platform/internal/guard"
	"github.com/trustplane/platform/internal/infra"
)

const mirrorCircuitKey = "audit-mirror"

// KafkaMirror copies every chained entry to a Kafka topic. Consumers keep an
// independent copy of the ledger, so tampering with the primary store is
// detectable by comparison as well as by chain verification. A circuit
// breaker keeps a dead broker from costing a publish timeout per request.
type KafkaMirror struct {
	producer *infra.KafkaProducer
	topic    string
	breaker  *guard.CircuitBreaker
}

// NewKafkaMirror wraps a producer for the given topic.
func NewKafkaMirror(producer *infra.KafkaProducer, topic string) *KafkaMirror {
	return &KafkaMirror{
		producer: producer,
		topic:    topic,
		breaker:  guard.NewCircuitBreaker(5, 30*time.Second),
	}
}

// Publish sends the full entry, keyed by event id.
func (m *KafkaMirror) Publish(ctx context.Context, entry *domain.AuditEntry) error {
	if result := m.breaker.Check(ctx, mirrorCircuitKey); !result.Allowed {
		return fmt.Errorf("mirror skipped: %s", result.Reason)
	}

	value, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := m.producer.Publish(ctx, m.topic, []byte(entry.EventID), value); err != nil {
		m.breaker.RecordFailure(mirrorCircuitKey)
		return err
	}
	m.breaker.RecordSuccess(mirrorCircuitKey)
	return nil
}

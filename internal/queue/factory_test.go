package queue

import (
	"testing"

	"github.com/clustereye/collector/internal/config"
)

func TestNewQueueMemory(t *testing.T) {
	q, err := NewQueue(config.QueueConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}
	defer func() { _ = q.Close() }()

	if _, ok := q.(*MemoryQueue); !ok {
		t.Errorf("Expected *MemoryQueue, got %T", q)
	}
}

func TestNewQueueUnsupportedType(t *testing.T) {
	if _, err := NewQueue(config.QueueConfig{Type: "carrier-pigeon"}); err == nil {
		t.Error("Expected error for unsupported queue type")
	}
}

func TestNewQueueKafkaRequiresBrokers(t *testing.T) {
	if _, err := NewQueue(config.QueueConfig{Type: "kafka"}); err == nil {
		t.Error("Expected error when no brokers are configured")
	}
}

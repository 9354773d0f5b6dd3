package queue

import (
	"fmt"
	"strings"

	"github.com/clustereye/collector/internal/config"
)

// Supported queue types
const (
	TypeNATS   = "nats"
	TypeRedis  = "redis"
	TypeKafka  = "kafka"
	TypeMemory = "memory"
)

// NewQueue creates a new Queue instance based on configuration.
// Default is NATS if type is not specified.
func NewQueue(cfg config.QueueConfig) (Queue, error) {
	queueType := strings.ToLower(cfg.Type)

	if queueType == "" {
		queueType = TypeNATS
	}

	switch queueType {
	case TypeNATS:
		return newNATSQueue(cfg.URL)

	case TypeRedis:
		return newRedisQueue(RedisConfig{
			URL:      cfg.URL,
			Password: cfg.Password,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStream,
			Group:    cfg.RedisGroup,
			Consumer: cfg.RedisConsumer,
		})

	case TypeKafka:
		return newKafkaQueue(KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
		})

	case TypeMemory:
		return NewMemoryQueue(), nil

	default:
		return nil, fmt.Errorf("unsupported queue type: %s (supported: nats, redis, kafka, memory)", queueType)
	}
}

// NewPublisher creates a new Publisher instance based on configuration
func NewPublisher(cfg config.QueueConfig) (Publisher, error) {
	return NewQueue(cfg)
}

// NewSubscriber creates a new Subscriber instance based on configuration
func NewSubscriber(cfg config.QueueConfig) (Subscriber, error) {
	return NewQueue(cfg)
}

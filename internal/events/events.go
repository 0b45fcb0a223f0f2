package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/LJTian/PresseHub/internal/storage"
)

// RunEvent 一轮采集完成后对外发布的摘要
type RunEvent struct {
	RunAt        time.Time              `json:"runAt"`
	SourcesTotal int                    `json:"sourcesTotal"`
	SourcesOK    int                    `json:"sourcesOk"`
	NewArticles  int                    `json:"newArticles"`
	ArticlesSeen int                    `json:"articlesSeen"`
	DurationMs   int64                  `json:"durationMs"`
	Regions      []storage.RegionDetail `json:"regions"`
}

type Publisher interface {
	PublishRun(ctx context.Context, ev RunEvent) error
	Close() error
}

// Nop 未配置 Kafka 时使用
type Nop struct{}

func (Nop) PublishRun(context.Context, RunEvent) error { return nil }
func (Nop) Close() error                               { return nil }

// KafkaPublisher 以同步方式把采集摘要写入 Kafka，key 为 RFC3339 格式的采集时间
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("events: new kafka producer: %w", err)
	}
	log.Printf("kafka publisher ready (brokers: %v, topic: %s)", brokers, topic)
	return NewKafkaPublisherWithProducer(producer, topic), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishRun(ctx context.Context, ev RunEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal run: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.RunAt.UTC().Format(time.RFC3339)),
		Value: sarama.ByteEncoder(value),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("events: send run: %w", err)
	}
	log.Printf("events: run published partition=%d offset=%d", partition, offset)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/knowledgehub/backend-go/internal/logger"
	"go.uber.org/zap"
)

// Producer Kafka生产者：每次查询到达终止状态后发布一条事件，
// 供下游计费/分析消费。发布失败只记日志，不影响查询结果。
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// QueryEvent 查询事件结构
type QueryEvent struct {
	RequestID string    `json:"request_id"`
	TenantID  string    `json:"tenant_id"`
	Status    string    `json:"status"`
	Cached    bool      `json:"cached"`
	ModelUsed string    `json:"model_used"`
	LatencyMs int       `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

var globalProducer *Producer

// InitProducer 初始化Kafka生产者
func InitProducer(brokers []string, topic string) error {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}

	globalProducer = &Producer{
		producer: producer,
		topic:    topic,
	}

	logger.Info("Kafka生产者初始化成功", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return nil
}

// GetProducer 获取全局生产者实例
func GetProducer() *Producer {
	return globalProducer
}

// SendQueryEvent 发送查询事件。以租户ID作为分区键，
// 同一租户的事件保持有序。
func (p *Producer) SendQueryEvent(event *QueryEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka producer not initialized")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal query event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.TenantID),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send query event: %w", err)
	}

	logger.Debug("query event published",
		zap.String("request_id", event.RequestID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

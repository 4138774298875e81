package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Hari-prasath-6380/KCP-organics/internal/config"
	"github.com/Hari-prasath-6380/KCP-organics/internal/logger"
	"github.com/Hari-prasath-6380/KCP-organics/internal/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// Producer публикует доменные события в Kafka
type Producer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
	topics   *config.Topics
}

// NewProducer создаёт синхронного продюсера с подтверждением от всех реплик
func NewProducer(cfg *config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 3
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Timeout = 5 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.WithField("brokers", cfg.Brokers).Info("Kafka producer created")
	topics := cfg.Topics
	return &Producer{producer: producer, log: log, topics: &topics}, nil
}

// NewTestProducer создаёт продюсера поверх готового SyncProducer (для тестов и моков)
func NewTestProducer(producer sarama.SyncProducer, topics config.Topics, log *logger.Logger) *Producer {
	return &Producer{producer: producer, log: log, topics: &topics}
}

// Close закрывает продюсера
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// PublishOrderCreated публикует событие о новом заказе
func (p *Producer) PublishOrderCreated(order *models.Order) error {
	event := newEvent(models.EventTypeOrderCreated, models.OrderCreatedData{
		ID:            order.ID,
		OrderID:       order.OrderID,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		TotalAmount:   order.TotalAmount,
		PaymentMethod: order.PaymentMethod,
		Products:      order.Products,
	})
	return p.publishEvent(p.topics.Orders, order.OrderID, event)
}

// PublishOrderStatusChanged публикует событие изменения статуса заказа
func (p *Producer) PublishOrderStatusChanged(order *models.Order, oldStatus models.OrderStatus) error {
	event := newEvent(models.EventTypeOrderStatusChanged, models.OrderStatusChangedData{
		ID:            order.ID,
		OrderID:       order.OrderID,
		OldStatus:     oldStatus,
		NewStatus:     order.OrderStatus,
		PaymentStatus: order.PaymentStatus,
	})
	return p.publishEvent(p.topics.Orders, order.OrderID, event)
}

// PublishCouponRedeemed публикует событие погашения купона
func (p *Producer) PublishCouponRedeemed(data models.CouponRedeemedData) error {
	event := newEvent(models.EventTypeCouponRedeemed, data)
	return p.publishEvent(p.topics.Coupons, data.Code, event)
}

// OrderChannel канал уведомлений о заказах поверх Kafka
type OrderChannel struct {
	producer *Producer
}

// NewOrderChannel создаёт канал, публикующий order.created
func NewOrderChannel(producer *Producer) *OrderChannel {
	return &OrderChannel{producer: producer}
}

// Name имя канала
func (c *OrderChannel) Name() string { return "kafka" }

// Send публикует событие о созданном заказе
func (c *OrderChannel) Send(ctx context.Context, order *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.producer.PublishOrderCreated(order)
}

func newEvent(eventType models.EventType, data interface{}) models.Event {
	return models.Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// publishEvent сериализует событие и отправляет его с ключом партиционирования
func (p *Producer) publishEvent(topic, key string, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(payload),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.WithError(err).WithField("topic", topic).WithField("event_type", event.Type).Error("Failed to publish event")
		return fmt.Errorf("failed to send message to topic %s: %w", topic, err)
	}

	p.log.WithFields(map[string]interface{}{
		"topic":      topic,
		"event_type": event.Type,
		"event_id":   event.ID,
		"partition":  partition,
		"offset":     offset,
	}).Debug("Event published")
	return nil
}

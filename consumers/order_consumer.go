package consumers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"checkout-service/config"
	"checkout-service/models"
)

const paymentCheckTimeout = 30 * time.Second

// PaymentChecker resolves orders whose payment never settled.
type PaymentChecker interface {
	ExpireStalePending(ctx context.Context, orderCode string) error
}

// StartOrderConsumer consumes the order queue and the dead letter queue.
// payment_check events drive the stale-pending sweep; lifecycle events are
// logged for downstream services.
func StartOrderConsumer(ch *amqp.Channel, cfg *config.Config, rec PaymentChecker) {
	msgs, err := ch.Consume(
		cfg.OrderQueue,
		"checkout-service", // consumer tag
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,
	)
	if err != nil {
		log.Fatalf("Failed to register consumer: %v", err)
	}

	go func() {
		for msg := range msgs {
			processOrderMessage(msg, rec)
		}
	}()

	dlqMsgs, err := ch.Consume(
		cfg.DeadLetterQueue,
		"checkout-service-dlq", // consumer tag
		false,                  // auto-ack
		false,                  // exclusive
		false,                  // no-local
		false,                  // no-wait
		nil,
	)
	if err != nil {
		// ranging over the nil channel would block the goroutine forever
		log.Printf("Failed to register DLQ consumer: %v", err)
		return
	}

	go func() {
		for msg := range dlqMsgs {
			processDeadLetterMessage(msg)
		}
	}()
}

func processOrderMessage(msg amqp.Delivery, rec PaymentChecker) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in message processing: %v", r)
		}
	}()

	var event models.OrderEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		log.Printf("Invalid message format: %s", msg.Body)
		// reject without requeue, broker routes to DLQ
		if err := msg.Nack(false, false); err != nil {
			return
		}
		return
	}

	log.Printf("Processing order event: order=%s type=%s", event.OrderID, event.Type)

	switch event.Type {
	case "created":
		handleOrderCreated(event)
	case "paid", "failed", "cancelled":
		handleStatusUpdated(event)
	case "payment_check":
		handlePaymentCheck(event, rec)
	default:
		log.Printf("Unknown event type: %s", event.Type)
	}

	if err := msg.Ack(false); err != nil {
		return
	}
}

func processDeadLetterMessage(msg amqp.Delivery) {
	log.Printf("Received dead letter: %s", msg.Body)
	if err := msg.Ack(false); err != nil {
		return
	}
}

func handleOrderCreated(event models.OrderEvent) {
	log.Printf("Handling order created: %s total=%s", event.OrderID, event.Total)
}

func handleStatusUpdated(event models.OrderEvent) {
	switch event.Status {
	case "paid":
		// fulfilment notification
	case "cancelled":
		// restock handling
	}
	log.Printf("Handling status update for order %s: %s", event.OrderID, event.Status)
}

func handlePaymentCheck(event models.OrderEvent, rec PaymentChecker) {
	ctx, cancel := context.WithTimeout(context.Background(), paymentCheckTimeout)
	defer cancel()

	if err := rec.ExpireStalePending(ctx, event.OrderID); err != nil {
		log.Printf("Payment check failed for order %s: %v", event.OrderID, err)
		return
	}
	log.Printf("Payment check completed for order %s", event.OrderID)
}

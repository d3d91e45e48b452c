package service

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"readzone/internal/model"
	"readzone/internal/repository"
	"readzone/internal/util"
	"readzone/internal/websocket"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	reactionExchange   = "reaction_exchange"
	reactionQueue      = "reaction_queue"
	reactionRoutingKey = "reaction"
)

// ReactionEvent is published after a like edge is created so the content
// author can be notified asynchronously.
type ReactionEvent struct {
	UserID     string    `json:"user_id"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	Action     string    `json:"action"`
	LikeCount  int64     `json:"like_count"`
	CreatedAt  time.Time `json:"created_at"`
}

type ReactionEventPublisher interface {
	PublishReactionEvent(event *ReactionEvent) error
}

type rabbitReactionPublisher struct {
	rabbitMQ *util.RabbitMQClient
}

// NewReactionEventPublisher creates a publisher backed by RabbitMQ. It
// declares the exchange up front so publishes never race the consumer setup.
func NewReactionEventPublisher(rabbitMQ *util.RabbitMQClient) (ReactionEventPublisher, error) {
	channel := rabbitMQ.GetChannel()
	if channel == nil {
		return nil, fmt.Errorf("RabbitMQ channel not available")
	}

	if err := channel.ExchangeDeclare(
		reactionExchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return nil, err
	}

	return &rabbitReactionPublisher{rabbitMQ: rabbitMQ}, nil
}

func (p *rabbitReactionPublisher) PublishReactionEvent(event *ReactionEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.rabbitMQ.Publish(reactionExchange, reactionRoutingKey, body)
}

// ReactionNotificationWorker consumes reaction events from RabbitMQ, writes
// a notification row for the content author, and pushes it to WebSocket.
type ReactionNotificationWorker struct {
	notificationRepo repository.NotificationRepository
	reviewRepo       repository.ReviewRepository
	commentRepo      repository.CommentRepository
	rabbitMQ         *util.RabbitMQClient
	wsHub            *websocket.Hub
	stopChan         chan bool
}

func NewReactionNotificationWorker(
	notificationRepo repository.NotificationRepository,
	reviewRepo repository.ReviewRepository,
	commentRepo repository.CommentRepository,
	rabbitMQ *util.RabbitMQClient,
	wsHub *websocket.Hub,
) *ReactionNotificationWorker {
	return &ReactionNotificationWorker{
		notificationRepo: notificationRepo,
		reviewRepo:       reviewRepo,
		commentRepo:      commentRepo,
		rabbitMQ:         rabbitMQ,
		wsHub:            wsHub,
		stopChan:         make(chan bool),
	}
}

// Start starts consuming reaction events from RabbitMQ
func (w *ReactionNotificationWorker) Start() error {
	if w.rabbitMQ == nil {
		return nil // RabbitMQ not available, worker will not start
	}

	channel := w.rabbitMQ.GetChannel()
	if channel == nil {
		return nil
	}

	if err := channel.ExchangeDeclare(
		reactionExchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}

	queue, err := channel.QueueDeclare(
		reactionQueue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	if err := channel.QueueBind(
		reactionQueue,
		reactionRoutingKey,
		reactionExchange,
		false,
		nil,
	); err != nil {
		return err
	}

	msgs, err := channel.Consume(
		queue.Name,
		"reaction_notification_worker",
		false, // auto-ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		log.Println("Reaction notification worker started, consuming messages...")
		for {
			select {
			case <-w.stopChan:
				log.Println("Reaction notification worker stopped")
				return
			case msg, ok := <-msgs:
				if !ok {
					log.Println("Reaction queue closed")
					return
				}
				if err := w.processReactionEvent(msg); err != nil {
					log.Printf("Error processing reaction event: %v", err)
					// Don't ack on error, let RabbitMQ requeue
					msg.Nack(false, true)
				} else {
					msg.Ack(false)
				}
			}
		}
	}()

	return nil
}

// processReactionEvent turns a like event into a notification for the
// content author. Unlikes and self-likes produce no notification.
func (w *ReactionNotificationWorker) processReactionEvent(msg amqp.Delivery) error {
	var event ReactionEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		// Malformed payloads are not retryable
		log.Printf("Dropping malformed reaction event: %v", err)
		return nil
	}

	if event.Action != model.ActionLike {
		return nil
	}

	authorID, notificationType, err := w.resolveAuthor(&event)
	if err != nil {
		// Target may have been deleted since the like was applied
		log.Printf("Skipping notification, target %s-%s not resolvable: %v", event.TargetType, event.TargetID, err)
		return nil
	}
	if authorID == event.UserID {
		return nil
	}

	senderID := event.UserID
	targetID := event.TargetID
	notification := &model.Notification{
		UserID:   authorID,
		SenderID: &senderID,
		Type:     notificationType,
		Title:    notificationTitle(event.TargetType),
		TargetID: &targetID,
	}
	if err := w.notificationRepo.Create(notification); err != nil {
		return err
	}

	if w.wsHub != nil {
		w.wsHub.BroadcastToUser(authorID, map[string]interface{}{
			"type":        notificationType,
			"sender_id":   event.UserID,
			"target_type": event.TargetType,
			"target_id":   event.TargetID,
			"like_count":  event.LikeCount,
		})
	}

	return nil
}

func (w *ReactionNotificationWorker) resolveAuthor(event *ReactionEvent) (string, string, error) {
	switch event.TargetType {
	case model.TargetTypeReview:
		review, err := w.reviewRepo.FindByID(event.TargetID)
		if err != nil {
			return "", "", err
		}
		return review.UserID, model.NotificationTypeReviewLiked, nil
	case model.TargetTypeComment:
		comment, err := w.commentRepo.FindByID(event.TargetID)
		if err != nil {
			return "", "", err
		}
		return comment.UserID, model.NotificationTypeCommentLiked, nil
	default:
		return "", "", fmt.Errorf("unknown target type: %s", event.TargetType)
	}
}

func notificationTitle(targetType string) string {
	if targetType == model.TargetTypeComment {
		return "Someone liked your comment"
	}
	return "Someone liked your review"
}

// Stop stops the worker
func (w *ReactionNotificationWorker) Stop() {
	close(w.stopChan)
}

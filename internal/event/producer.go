package event

import (
	"context"
	"log/slog"

	"github.com/cengoxius/ecommerce01/pkg/kafka"
	"github.com/cengoxius/ecommerce01/pkg/logger"
)

// Topics the storefront publishes to.
const (
	TopicProductViewed   = "ecommerce.storefront.product_viewed"
	TopicCartItemAdded   = "ecommerce.storefront.cart_item_added"
	TopicReviewSubmitted = "ecommerce.storefront.review_submitted"
)

const (
	source  = "storefront"
	subject = "product"
)

// ProductViewedData is the payload of a product_viewed event.
type ProductViewedData struct {
	ProductID string `json:"product_id"`
	InStock   bool   `json:"in_stock"`
}

// CartItemAddedData is the payload of a cart_item_added event.
type CartItemAddedData struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ReviewSubmittedData is the payload of a review_submitted event.
type ReviewSubmittedData struct {
	ProductID string `json:"product_id"`
	UserID    string `json:"user_id"`
	Rating    int    `json:"rating"`
}

// Publisher is the Kafka producer as used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// Producer publishes storefront analytics events. Publishing is best
// effort: failures are logged and never reach the shopper.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a storefront event producer. A nil publisher turns
// every call into a no-op.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

// ProductViewed records that a product page rendered.
func (p *Producer) ProductViewed(ctx context.Context, productID string, inStock bool) {
	p.publish(ctx, TopicProductViewed, "product_viewed", productID, ProductViewedData{ProductID: productID, InStock: inStock})
}

// CartItemAdded records an add-to-cart request.
func (p *Producer) CartItemAdded(ctx context.Context, productID string, quantity int) {
	p.publish(ctx, TopicCartItemAdded, "cart_item_added", productID, CartItemAddedData{ProductID: productID, Quantity: quantity})
}

// ReviewSubmitted records an accepted review submission.
func (p *Producer) ReviewSubmitted(ctx context.Context, productID, userID string, rating int) {
	p.publish(ctx, TopicReviewSubmitted, "review_submitted", productID, ReviewSubmittedData{ProductID: productID, UserID: userID, Rating: rating})
}

func (p *Producer) publish(ctx context.Context, topic, eventType, productID string, data any) {
	if p == nil || p.publisher == nil {
		return
	}

	evt, err := kafka.NewEvent(eventType, productID, data,
		kafka.WithSource(source),
		kafka.WithSubject(subject),
		kafka.WithCorrelationID(logger.CorrelationIDFromContext(ctx)),
		kafka.WithAttribute("visit_id", logger.VisitIDFromContext(ctx)),
		kafka.WithAttribute("user_id", logger.UserIDFromContext(ctx)),
	)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to build event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := p.publisher.Publish(ctx, topic, evt); err != nil {
		logger.WithContext(ctx, p.logger).Warn("storefront event dropped",
			slog.String("topic", topic),
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
	}
}

package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/habit-scoreboard/internal/config"
	"github.com/habit-scoreboard/internal/domain"
)

// SubmissionHandler records batches of submissions
type SubmissionHandler interface {
	CreateSubmissionBatch(ctx context.Context, batch domain.BatchSubmission) (int, error)
}

// Consumer consumes submission messages from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	handler       SubmissionHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler SubmissionHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if err == sarama.ErrClosedConsumerGroup {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	<-c.ready
	c.logger.Info("Kafka consumer ready")

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition. Offsets are
// marked only after the batch holding them was handed off; a failed batch
// ends the session so its messages are delivered again.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := newBatcher(h.consumer.handler, cfg.BatchSize, h.consumer.logger)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	var last *sarama.ConsumerMessage
	commit := func() error {
		if err := batch.flush(); err != nil {
			return err
		}
		if last != nil {
			session.MarkMessage(last, "")
			last = nil
		}
		return nil
	}

	for {
		select {
		case <-session.Context().Done():
			return commit()

		case <-batchTimer.C:
			if err := commit(); err != nil {
				return err
			}
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				return commit()
			}

			last = message
			if batch.add(message.Value) {
				if err := commit(); err != nil {
					return err
				}
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}

// batcher accumulates decoded submissions until the batch is full
type batcher struct {
	handler SubmissionHandler
	size    int
	pending []domain.CreateSubmissionRequest
	logger  *slog.Logger
}

func newBatcher(handler SubmissionHandler, size int, logger *slog.Logger) *batcher {
	if size <= 0 {
		size = 1
	}
	return &batcher{
		handler: handler,
		size:    size,
		pending: make([]domain.CreateSubmissionRequest, 0, size),
		logger:  logger,
	}
}

// add decodes a message into the batch and reports whether the batch is full.
// Malformed messages are logged and dropped.
func (b *batcher) add(value []byte) bool {
	var req domain.CreateSubmissionRequest
	if err := json.Unmarshal(value, &req); err != nil {
		b.logger.Warn("failed to unmarshal message", "error", err)
		return false
	}
	if _, err := req.Validate(); err != nil {
		b.logger.Warn("invalid submission message",
			"user_id", req.UserID,
			"habit_id", req.HabitID,
			"error", err,
		)
		return false
	}

	b.pending = append(b.pending, req)
	return len(b.pending) >= b.size
}

// flush hands the pending submissions to the handler. On failure the
// pending submissions are dropped from the batcher and the error returned.
func (b *batcher) flush() error {
	if len(b.pending) == 0 {
		return nil
	}
	defer func() { b.pending = b.pending[:0] }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	batch := domain.BatchSubmission{
		Submissions: append([]domain.CreateSubmissionRequest(nil), b.pending...),
	}
	created, err := b.handler.CreateSubmissionBatch(ctx, batch)
	if err != nil {
		b.logger.Error("failed to process batch", "error", err, "batch_size", len(b.pending))
		return fmt.Errorf("processing batch of %d submissions: %w", len(b.pending), err)
	}
	b.logger.Debug("processed batch", "batch_size", len(b.pending), "created", created)
	return nil
}

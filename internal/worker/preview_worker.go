package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/cocdeshijie/MikaniroBytes/config"
	"github.com/cocdeshijie/MikaniroBytes/internal/mq"
	"github.com/cocdeshijie/MikaniroBytes/internal/preview"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"
)

// PreviewRunner generates the preview for one file and never fails the job.
type PreviewRunner interface {
	Run(fileID uint64)
}

// RunPreviewWorker consumes preview jobs from RabbitMQ.
func RunPreviewWorker(ctx context.Context, cfg *config.Config, runner PreviewRunner) error {
	client, err := mq.Dial(cfg.RabbitMQURL)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.DeclareTopology(); err != nil {
		return err
	}

	prefetch := cfg.RabbitMQPrefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := client.Channel.Qos(prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := client.Channel.Consume(
		mq.QueuePreview,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	concurrency := cfg.PreviewWorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	limiter := newLimiter(cfg.PreviewRate, cfg.PreviewBurst)

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("preview worker: delivery channel closed")
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				HandlePreviewMessage(ctx, limiter, runner, d.Body, d)
			}(delivery)
		}
	}
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Acknowledger is the subset of amqp.Delivery the handler needs.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// HandlePreviewMessage runs one job. Preview failures are not retried, so
// everything except shutdown is acked.
func HandlePreviewMessage(ctx context.Context, limiter *rate.Limiter, runner PreviewRunner, body []byte, ack Acknowledger) {
	var msg preview.Message
	if err := json.Unmarshal(body, &msg); err != nil || msg.FileID == 0 {
		log.Printf("preview worker: invalid message %q: %v", body, err)
		_ = ack.Ack(false)
		return
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			_ = ack.Nack(false, true)
			return
		}
	}

	runner.Run(msg.FileID)
	_ = ack.Ack(false)
}

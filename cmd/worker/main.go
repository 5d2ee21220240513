package main

// Consume application events and send applicant notices:
//   APPLICATIONS_SQS_QUEUE_URL=... go run ./cmd/worker

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"admissions-portal/internal/bootstrap"
	"admissions-portal/internal/queue"
	"admissions-portal/internal/shared/config"
	"admissions-portal/internal/shared/metrics"
	"admissions-portal/internal/shared/telemetry"
	"admissions-portal/internal/workerproc"
)

const defaultRegion = "eu-west-3"

func main() {
	cfg := config.Load()
	telemetry.SetLevel(cfg.LogLevel)

	queueURL := strings.TrimSpace(cfg.ApplicationsQueueURL)
	if queueURL == "" {
		telemetry.Error("worker.config_invalid", map[string]any{"error": "APPLICATIONS_SQS_QUEUE_URL is required"})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	region := cfg.AWSRegion
	if region == "" {
		region = defaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		telemetry.Error("worker.aws_config_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		telemetry.Error("worker.bootstrap_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer app.Close()

	labels := make(map[string]string, len(app.Form.Slots))
	for _, s := range app.Form.Slots {
		labels[s.Name] = s.Label
	}
	processor := &workerproc.Processor{
		Apps:       app.ApplicationsService,
		Notifier:   workerproc.LogNotifier{},
		SlotLabels: labels,
	}

	concurrency := max(1, cfg.WorkerConcurrency)
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	telemetry.Info("worker.started", map[string]any{
		"queue":       queueURL,
		"concurrency": concurrency,
		"visibility":  cfg.WorkerVisibility.String(),
	})

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(cfg.WorkerVisibility / time.Second),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			telemetry.Warn("worker.receive_failed", map[string]any{"error": err.Error()})
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			metrics.IncWorkerEvent("received")
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(ctx, sqsClient, queueURL, processor, m)
			}(msg)
		}
	}

	telemetry.Info("worker.draining", map[string]any{"timeout": cfg.ShutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(cfg.ShutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", nil)
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type eventHandler interface {
	Handle(ctx context.Context, msg queue.Message) error
}

// handleMessage deletes the message once handled, or when redelivery cannot help.
func handleMessage(ctx context.Context, client sqsAPI, queueURL string, handler eventHandler, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		fields := baseFields(msg, decoded.ApplicationID, decoded.RequestID)
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = err.Error()
		telemetry.Error("worker.event.invalid", fields)
		if deleteMessage(ctx, client, queueURL, msg, decoded.ApplicationID, decoded.RequestID) {
			metrics.IncWorkerEvent("dropped")
		}
		return
	}

	fields := baseFields(msg, decoded.ApplicationID, decoded.RequestID)
	fields["event"] = string(decoded.Event)
	telemetry.Info("worker.event.received", fields)

	if err := handler.Handle(ctx, decoded); err != nil {
		fields["error"] = err.Error()
		var procErr workerproc.ErrProcess
		if errors.As(err, &procErr) && procErr.Unrecoverable {
			telemetry.Error("worker.event.unrecoverable", fields)
			if deleteMessage(ctx, client, queueURL, msg, decoded.ApplicationID, decoded.RequestID) {
				metrics.IncWorkerEvent("dropped")
			}
			return
		}
		telemetry.Error("worker.event.failed", fields)
		metrics.IncWorkerEvent("failed")
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, decoded.ApplicationID, decoded.RequestID) {
		telemetry.Info("worker.event.completed", fields)
		metrics.IncWorkerEvent("completed")
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, applicationID, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, applicationID, requestID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.event.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, applicationID, requestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.event.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, applicationID, requestID string) map[string]any {
	fields := map[string]any{
		"application_id": applicationID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

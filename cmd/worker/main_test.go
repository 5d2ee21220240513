package main

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"admissions-portal/internal/queue"
	"admissions-portal/internal/shared/telemetry"
	"admissions-portal/internal/workerproc"
)

func TestMain(m *testing.M) {
	telemetry.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(context.Context, *sqs.ReceiveMessageInput, ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeHandler struct {
	err  error
	seen []queue.Message
}

func (f *fakeHandler) Handle(_ context.Context, msg queue.Message) error {
	f.seen = append(f.seen, msg)
	return f.err
}

func sqsMessage(t *testing.T, receipt string, msg queue.Message) sqstypes.Message {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return sqstypes.Message{
		MessageId:     aws.String("m-" + receipt),
		ReceiptHandle: aws.String(receipt),
		Body:          aws.String(string(body)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func TestHandleMessage(t *testing.T) {
	valid := queue.Message{ApplicationID: "app-1", Event: queue.EventApplicationCreated, RequestID: "req-1", Version: 1}

	tests := []struct {
		name       string
		msg        sqstypes.Message
		handlerErr error
		wantDelete bool
		wantSeen   int
	}{
		{name: "success deletes", msg: sqsMessage(t, "r1", valid), wantDelete: true, wantSeen: 1},
		{name: "retryable failure keeps message", msg: sqsMessage(t, "r2", valid), handlerErr: errors.New("boom"), wantSeen: 1},
		{
			name:       "unrecoverable failure deletes",
			msg:        sqsMessage(t, "r3", valid),
			handlerErr: workerproc.ErrProcess{ApplicationID: "app-1", Unrecoverable: true, Err: errors.New("gone")},
			wantDelete: true,
			wantSeen:   1,
		},
		{
			name:       "invalid json deletes",
			msg:        sqstypes.Message{MessageId: aws.String("m4"), ReceiptHandle: aws.String("r4"), Body: aws.String("{bad-json")},
			wantDelete: true,
		},
		{name: "missing id deletes", msg: sqsMessage(t, "r5", queue.Message{Event: queue.EventApplicationCreated}), wantDelete: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeSQS{}
			handler := &fakeHandler{err: tc.handlerErr}

			handleMessage(context.Background(), client, "queue", handler, tc.msg)

			if got := len(client.deleted) == 1; got != tc.wantDelete {
				t.Fatalf("delete = %v, want %v", got, tc.wantDelete)
			}
			if len(handler.seen) != tc.wantSeen {
				t.Fatalf("handler called %d times, want %d", len(handler.seen), tc.wantSeen)
			}
		})
	}
}

func TestReceiveCount(t *testing.T) {
	if got := receiveCount(sqstypes.Message{Attributes: map[string]string{"ApproximateReceiveCount": "3"}}); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := receiveCount(sqstypes.Message{}); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

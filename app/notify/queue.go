// Package notify moves outgoing mail off the request path: handlers enqueue
// a NotificationMessage, a worker renders and sends it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"example/portfolio-api/app/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
)

type Queue interface {
	Enqueue(ctx context.Context, msg models.NotificationMessage) error
}

// SQSAPI is the subset of *sqs.Client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// NewSQSClient loads the default AWS credential chain.
func NewSQSClient(ctx context.Context) (*sqs.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg), nil
}

type SQSQueue struct {
	client SQSAPI
	url    string
}

func NewSQSQueue(client SQSAPI, url string) *SQSQueue {
	return &SQSQueue{client: client, url: url}
}

func (q *SQSQueue) Enqueue(ctx context.Context, msg models.NotificationMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// LogQueue stands in when no queue is configured; messages are logged and dropped.
type LogQueue struct {
	Log zerolog.Logger
}

func (q LogQueue) Enqueue(_ context.Context, msg models.NotificationMessage) error {
	q.Log.Info().Str("kind", string(msg.Kind)).Str("email", msg.Email).Msg("QUEUE_URL not set; notification dropped")
	return nil
}

// OpenQueue returns an SQS-backed queue for url, or a LogQueue when url is
// empty or AWS cannot be configured.
func OpenQueue(ctx context.Context, url string, log zerolog.Logger) Queue {
	if url == "" {
		return LogQueue{Log: log}
	}
	client, err := NewSQSClient(ctx)
	if err != nil {
		log.Error().Err(err).Msg("notifications disabled")
		return LogQueue{Log: log}
	}
	return NewSQSQueue(client, url)
}

package notify

import (
	"context"
	"encoding/json"
	"time"

	"example/portfolio-api/app/config"
	"example/portfolio-api/app/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
)

const (
	receiveTimeout = 30 * time.Second
	sendTimeout    = 30 * time.Second
	errorBackoff   = 5 * time.Second
	idleBackoff    = 2 * time.Second
)

// Worker drains the notification queue.
type Worker struct {
	client SQSAPI
	url    string
	mailer Mailer
	mail   config.MailConfig
	log    zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration)
}

func NewWorker(client SQSAPI, url string, mailer Mailer, mail config.MailConfig, log zerolog.Logger) *Worker {
	return &Worker{
		client: client,
		url:    url,
		mailer: mailer,
		mail:   mail,
		log:    log,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Run long-polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info().Str("queue", w.url).Msg("notify worker started")
	for ctx.Err() == nil {
		n, err := w.Poll(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				break
			}
			w.log.Error().Err(err).Msg("ReceiveMessage failed")
			w.sleep(ctx, errorBackoff)
		case n == 0:
			w.sleep(ctx, idleBackoff)
		}
	}
	w.log.Info().Msg("notify worker stopped")
}

// Poll receives one batch and handles it, returning how many messages came in.
func (w *Worker) Poll(ctx context.Context) (int, error) {
	recvCtx, cancel := context.WithTimeout(ctx, receiveTimeout)
	resp, err := w.client.ReceiveMessage(recvCtx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(w.url),
		MaxNumberOfMessages: 5,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
	})
	cancel()
	if err != nil {
		return 0, err
	}
	for _, m := range resp.Messages {
		w.handle(ctx, m)
	}
	return len(resp.Messages), nil
}

func (w *Worker) handle(ctx context.Context, m sqstypes.Message) {
	if m.Body == nil {
		w.log.Warn().Msg("received message with empty body, deleting")
		w.delete(m)
		return
	}

	var msg models.NotificationMessage
	if err := json.Unmarshal([]byte(*m.Body), &msg); err != nil {
		// poison message; retrying cannot help
		w.log.Error().Err(err).Str("body", *m.Body).Msg("bad notification payload, deleting")
		w.delete(m)
		return
	}
	mail, err := Render(msg, w.mail)
	if err != nil {
		w.log.Error().Err(err).Str("kind", string(msg.Kind)).Msg("cannot render notification, deleting")
		w.delete(m)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := w.mailer.Send(sendCtx, mail); err != nil {
		// left on the queue; SQS redelivers after the visibility timeout
		w.log.Error().Err(err).Str("kind", string(msg.Kind)).Msg("send failed, will retry")
		return
	}
	w.log.Info().Str("kind", string(msg.Kind)).Str("to", mail.To).Msg("notification sent")
	w.delete(m)
}

func (w *Worker) delete(m sqstypes.Message) {
	if m.ReceiptHandle == nil {
		return
	}
	_, err := w.client.DeleteMessage(context.Background(), &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.url),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		w.log.Error().Err(err).Msg("failed to delete SQS message")
	}
}

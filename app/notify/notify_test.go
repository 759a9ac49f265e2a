package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"example/portfolio-api/app/config"
	"example/portfolio-api/app/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
)

type fakeSQS struct {
	mu      sync.Mutex
	sent    []string
	inbox   []sqstypes.Message
	deleted []string
	sendErr error
	recvErr error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recvErr != nil {
		return nil, f.recvErr
	}
	msgs := f.inbox
	f.inbox = nil
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type recordingMailer struct {
	mails  []Mail
	err    error
	failTo string // recipient whose mail fails
}

func (r *recordingMailer) Send(_ context.Context, m Mail) error {
	if r.err != nil {
		return r.err
	}
	if r.failTo != "" && m.To == r.failTo {
		return errors.New("mailbox unavailable")
	}
	r.mails = append(r.mails, m)
	return nil
}

var testMail = config.MailConfig{OwnerEmail: "owner@example.com", From: "site@example.com", FrontendURL: "https://example.com"}

func message(receipt string, body string) sqstypes.Message {
	return sqstypes.Message{Body: aws.String(body), ReceiptHandle: aws.String(receipt)}
}

func encode(t *testing.T, msg models.NotificationMessage) string {
	t.Helper()
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestSQSQueueEnqueue(t *testing.T) {
	f := &fakeSQS{}
	q := NewSQSQueue(f, "https://sqs.example/queue")
	msg := models.NotificationMessage{Kind: models.NotifyThankYou, Name: "Ada", Email: "ada@example.com"}
	if err := q.Enqueue(context.Background(), msg); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if len(f.sent) != 1 || !strings.Contains(f.sent[0], `"kind":"thank_you"`) {
		t.Fatalf("sent = %v", f.sent)
	}

	f.sendErr = errors.New("throttled")
	if err := q.Enqueue(context.Background(), msg); err == nil {
		t.Fatalf("Enqueue should surface SendMessage errors")
	}
}

func TestOpenQueueWithoutURL(t *testing.T) {
	q := OpenQueue(context.Background(), "", zerolog.Nop())
	if _, ok := q.(LogQueue); !ok {
		t.Fatalf("OpenQueue(\"\") = %T, want LogQueue", q)
	}
	if err := q.Enqueue(context.Background(), models.NotificationMessage{Kind: models.NotifyContactOwner}); err != nil {
		t.Fatalf("LogQueue.Enqueue error: %v", err)
	}
}

func TestRenderThankYou(t *testing.T) {
	mail, err := Render(models.NotificationMessage{Kind: models.NotifyThankYou, Name: "<Ada>", Email: "ada@example.com"}, testMail)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if mail.To != "ada@example.com" {
		t.Fatalf("mail = %+v", mail)
	}
	if !strings.Contains(mail.HTML, "&lt;Ada&gt;") {
		t.Fatalf("name not escaped: %s", mail.HTML)
	}
	if !strings.Contains(mail.HTML, "https://example.com") {
		t.Fatalf("frontend link missing: %s", mail.HTML)
	}
}

func TestRenderContact(t *testing.T) {
	msg := models.NotificationMessage{Kind: models.NotifyContactOwner, Name: "Bob", Email: "bob@example.com", Message: "hello\nthere"}
	owner, err := Render(msg, testMail)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	msg.Kind = models.NotifyContactReply
	reply, err := Render(msg, testMail)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if owner.To != "owner@example.com" || owner.ReplyTo != "bob@example.com" || !strings.Contains(owner.Subject, "Bob") {
		t.Fatalf("owner mail = %+v", owner)
	}
	if !strings.Contains(owner.HTML, "hello<br>there<br>") {
		t.Fatalf("message lines not preserved: %s", owner.HTML)
	}
	if reply.To != "bob@example.com" || reply.ReplyTo != "" || !strings.Contains(reply.HTML, "hello<br>there<br>") {
		t.Fatalf("auto-reply = %+v", reply)
	}
}

func TestRenderUnknownKind(t *testing.T) {
	if _, err := Render(models.NotificationMessage{Kind: "sms"}, testMail); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("Render(sms) err = %v", err)
	}
}

func TestSMTPMailerCompose(t *testing.T) {
	m := NewSMTPMailer(config.MailConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: "site@example.com"})
	var gotAddr string
	var gotBody []byte
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotBody = msg
		if from != "site@example.com" || len(to) != 1 || to[0] != "bob@example.com" {
			t.Fatalf("envelope from=%s to=%v", from, to)
		}
		return nil
	}
	err := m.Send(context.Background(), Mail{To: "bob@example.com", ReplyTo: "r@example.com", Subject: "Hi", HTML: "<p>x</p>"})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Fatalf("addr = %s", gotAddr)
	}
	body := string(gotBody)
	for _, want := range []string{"Subject: Hi\r\n", "Reply-To: r@example.com\r\n", "text/html", "<p>x</p>"} {
		if !strings.Contains(body, want) {
			t.Fatalf("message missing %q:\n%s", want, body)
		}
	}

	if err := m.Send(context.Background(), Mail{}); err == nil {
		t.Fatalf("Send without recipient should fail")
	}
}

func TestWorkerPoll(t *testing.T) {
	owner := encode(t, models.NotificationMessage{Kind: models.NotifyContactOwner, Name: "Bob", Email: "bob@example.com", Message: "hi"})
	reply := encode(t, models.NotificationMessage{Kind: models.NotifyContactReply, Name: "Bob", Email: "bob@example.com", Message: "hi"})
	f := &fakeSQS{inbox: []sqstypes.Message{
		message("r-owner", owner),
		message("r-reply", reply),
		message("r-bad-json", "{nope"),
		message("r-unknown", `{"kind":"fax"}`),
		{ReceiptHandle: aws.String("r-empty")},
	}}
	mailer := &recordingMailer{}
	w := NewWorker(f, "q", mailer, testMail, zerolog.Nop())

	n, err := w.Poll(context.Background())
	if err != nil || n != 5 {
		t.Fatalf("Poll = (%d, %v), want 5 messages", n, err)
	}
	if len(mailer.mails) != 2 {
		t.Fatalf("sent %d mails, want 2", len(mailer.mails))
	}
	want := map[string]bool{"r-owner": true, "r-reply": true, "r-bad-json": true, "r-unknown": true, "r-empty": true}
	if len(f.deleted) != len(want) {
		t.Fatalf("deleted = %v", f.deleted)
	}
	for _, d := range f.deleted {
		if !want[d] {
			t.Fatalf("unexpected delete %s", d)
		}
	}
}

func TestWorkerKeepsFailedSends(t *testing.T) {
	body := encode(t, models.NotificationMessage{Kind: models.NotifyThankYou, Name: "Ada", Email: "ada@example.com"})
	f := &fakeSQS{inbox: []sqstypes.Message{message("r-1", body)}}
	w := NewWorker(f, "q", &recordingMailer{err: errors.New("smtp down")}, testMail, zerolog.Nop())

	if _, err := w.Poll(context.Background()); err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if len(f.deleted) != 0 {
		t.Fatalf("failed send was deleted: %v", f.deleted)
	}
}

func TestWorkerRetriesOnlyFailedContactMail(t *testing.T) {
	owner := encode(t, models.NotificationMessage{Kind: models.NotifyContactOwner, Name: "Bob", Email: "bob@example.com", Message: "hi"})
	reply := encode(t, models.NotificationMessage{Kind: models.NotifyContactReply, Name: "Bob", Email: "bob@example.com", Message: "hi"})
	f := &fakeSQS{inbox: []sqstypes.Message{message("r-owner", owner), message("r-reply", reply)}}
	mailer := &recordingMailer{failTo: "bob@example.com"}
	w := NewWorker(f, "q", mailer, testMail, zerolog.Nop())

	if _, err := w.Poll(context.Background()); err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if len(f.deleted) != 1 || f.deleted[0] != "r-owner" {
		t.Fatalf("deleted = %v, want only the owner message", f.deleted)
	}

	// redelivery of the auto-reply after the mailbox recovers
	mailer.failTo = ""
	f.inbox = []sqstypes.Message{message("r-reply", reply)}
	if _, err := w.Poll(context.Background()); err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	var toOwner, toSender int
	for _, m := range mailer.mails {
		switch m.To {
		case "owner@example.com":
			toOwner++
		case "bob@example.com":
			toSender++
		}
	}
	if toOwner != 1 || toSender != 1 {
		t.Fatalf("owner got %d mails, sender %d; want 1 each", toOwner, toSender)
	}
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	f := &fakeSQS{recvErr: errors.New("no network")}
	w := NewWorker(f, "q", &recordingMailer{}, testMail, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	sleeps := 0
	w.sleep = func(context.Context, time.Duration) {
		sleeps++
		if sleeps == 3 {
			cancel()
		}
	}
	w.Run(ctx)
	if sleeps != 3 {
		t.Fatalf("Run slept %d times before stopping, want 3", sleeps)
	}
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-registration/internal/config"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishJSON(ctx context.Context, topic, key string, v interface{}) error {
	return m.Called(ctx, topic, key, v).Error(0)
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to, subject, body string) error {
	return m.Called(ctx, to, subject, body).Error(0)
}

var topics = config.TopicConfig{Registrations: "registration-events", Waitlist: "waitlist-events"}

func sample(t models.NotificationType) models.Notification {
	return models.Notification{
		Type:           t,
		EventID:        "evt-1",
		EventTitle:     "Go Night",
		EventStart:     time.Date(2026, 12, 1, 18, 0, 0, 0, time.UTC),
		RegistrationID: "reg-1",
		AttendeeName:   "Ada",
		AttendeeEmail:  "ada@example.com",
		QRCode:         "EVT-1-ABC-0123456789abcdef",
		PaymentStatus:  models.PaymentStatusFree,
		OccurredAt:     time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestKafkaNotifierRoutesByFamily(t *testing.T) {
	pub := &MockPublisher{}
	k := NewKafkaNotifier(pub, topics, logger.Nop())

	reg := sample(models.NotificationRegistrationCreated)
	offer := sample(models.NotificationWaitlistOffered)
	offer.RegistrationID = ""
	offer.WaitlistEntryID = "wl-1"

	pub.On("PublishJSON", mock.Anything, "registration-events", "reg-1", reg).Return(nil).Once()
	pub.On("PublishJSON", mock.Anything, "waitlist-events", "wl-1", offer).Return(nil).Once()

	k.Notify(context.Background(), reg)
	k.Notify(context.Background(), offer)
	pub.AssertExpectations(t)
}

func TestKafkaNotifierSurvivesCancelledContextAndErrors(t *testing.T) {
	pub := &MockPublisher{}
	k := NewKafkaNotifier(pub, topics, logger.Nop())

	pub.On("PublishJSON", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NotPanics(t, func() { k.Notify(ctx, sample(models.NotificationRegistrationCancelled)) })
	pub.AssertExpectations(t)
}

func TestTopicFor(t *testing.T) {
	k := NewKafkaNotifier(nil, topics, nil)
	for _, typ := range models.NotificationTypes {
		want := topics.Registrations
		if strings.HasPrefix(string(typ), "waitlist.") {
			want = topics.Waitlist
		}
		assert.Equal(t, want, k.TopicFor(typ), typ)
	}
}

func TestMultiNotifiesAll(t *testing.T) {
	a, b := &MockPublisher{}, &MockPublisher{}
	a.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	b.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	m := Multi{NewKafkaNotifier(a, topics, nil), LogNotifier{Logger: logger.Nop()}, NewKafkaNotifier(b, topics, nil)}
	m.Notify(context.Background(), sample(models.NotificationRegistrationPaid))

	a.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestRender(t *testing.T) {
	for _, typ := range models.NotificationTypes {
		subject, body := Render(sample(typ))
		assert.Contains(t, subject, "Go Night", typ)
		assert.True(t, strings.HasPrefix(body, "Hi Ada,"), typ)
	}

	_, body := Render(sample(models.NotificationRegistrationCreated))
	assert.Contains(t, body, "Ticket code: EVT-1-ABC-0123456789abcdef")
	assert.Contains(t, body, "Tue, 01 Dec 2026 18:00 UTC")

	joined := sample(models.NotificationWaitlistJoined)
	joined.Position = 3
	_, body = Render(joined)
	assert.Contains(t, body, "position 3")

	pending := sample(models.NotificationRegistrationCreated)
	pending.PaymentStatus = models.PaymentStatusPending
	_, body = Render(pending)
	assert.Contains(t, body, "Payment is still pending")

	anon := sample(models.NotificationRegistrationCancelled)
	anon.AttendeeName = "  "
	_, body = Render(anon)
	assert.True(t, strings.HasPrefix(body, "Hi there,"))
}

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("no-reply@events.local", "ada@example.com", "Hello", "line one\nline two\n")
	assert.Contains(t, msg, "To: ada@example.com\r\n")
	assert.Contains(t, msg, "Subject: Hello\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nline one\r\nline two\r\n"))
}

func TestBuildMessageKeepsHeadersOnOneLine(t *testing.T) {
	msg := buildMessage("no-reply@events.local", "ada@example.com\r\nCc: x@evil.example",
		"You're registered: Gopher Day\r\nBcc: attacker@evil.example", "hi\n")
	headers, _, found := strings.Cut(msg, "\r\n\r\n")
	require.True(t, found)

	for _, line := range strings.Split(headers, "\r\n") {
		assert.False(t, strings.HasPrefix(line, "Bcc:"), line)
		assert.False(t, strings.HasPrefix(line, "Cc:"), line)
	}
	assert.Contains(t, headers, "Subject: You're registered: Gopher Day Bcc: attacker@evil.example")
}

func TestBuildMessageEncodesNonASCIISubject(t *testing.T) {
	msg := buildMessage("no-reply@events.local", "ada@example.com", "Café Meetup", "hi\n")
	assert.Contains(t, msg, "Subject: =?utf-8?q?Caf=C3=A9_Meetup?=\r\n")
}

func TestWorkerHandle(t *testing.T) {
	mailer := &MockMailer{}
	w := NewWorker(mailer, logger.Nop())

	n := sample(models.NotificationWaitlistPromoted)
	value, err := json.Marshal(n)
	require.NoError(t, err)

	mailer.On("Send", mock.Anything, "ada@example.com", "A spot opened up: Go Night", mock.AnythingOfType("string")).Return(nil).Once()
	require.NoError(t, w.Handle(context.Background(), kafka.Message{Value: value}))

	mailer.On("Send", mock.Anything, "ada@example.com", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()
	assert.Error(t, w.Handle(context.Background(), kafka.Message{Value: value}))

	n.AttendeeEmail = ""
	value, _ = json.Marshal(n)
	assert.NoError(t, w.Handle(context.Background(), kafka.Message{Value: value}))

	assert.Error(t, w.Handle(context.Background(), kafka.Message{Value: []byte("{")}))
	mailer.AssertExpectations(t)
}

package activitysink_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	auth "github.com/txnjournal/go-txn-auth"
	"github.com/txnjournal/go-txn-auth/activitymap"
	"github.com/txnjournal/go-txn-auth/activitysink"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockWriter) Close() error {
	return m.Called().Error(0)
}

func TestKafkaSinkPublishesRecord(t *testing.T) {
	writer := new(MockWriter)
	cfg := activitysink.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t", Channel: "journal-prod"}
	sink := activitysink.NewKafkaSink(writer, cfg.RecordOptions()...)
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	var published kafka.Message
	writer.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		return len(msgs) == 1
	})).Run(func(args mock.Arguments) {
		published = args.Get(1).([]kafka.Message)[0]
	}).Return(nil).Once()

	err := sink.Record(context.Background(), auth.ActivityEvent{
		EventType:  auth.ActivityEventUserApproved,
		Actor:      auth.ActorRef{ID: "admin-1", Role: auth.RoleAdmin},
		UserID:     "user-9",
		FromStatus: auth.StatusPending,
		ToStatus:   auth.StatusActive,
		OccurredAt: at,
	})
	require.NoError(t, err)
	writer.AssertExpectations(t)

	var record activitymap.Record
	require.NoError(t, json.Unmarshal(published.Value, &record))
	assert.Equal(t, "user-9", string(published.Key))
	assert.True(t, published.Time.Equal(at))
	assert.Equal(t, []kafka.Header{
		{Key: "event_type", Value: []byte(auth.ActivityEventUserApproved)},
		{Key: "category", Value: []byte(activitymap.CategoryAdmin)},
	}, published.Headers)
	assert.Equal(t, "journal-prod", record.Channel)
	assert.Equal(t, "admin-1", record.ActorID)
	require.NotNil(t, record.Status)
	assert.Equal(t, "active", record.Status.To)
}

func TestKafkaSinkWrapsWriteErrors(t *testing.T) {
	writer := new(MockWriter)
	writer.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	writer.On("Close").Return(nil)

	sink := activitysink.NewKafkaSink(writer)
	err := sink.Record(context.Background(), auth.ActivityEvent{EventType: auth.ActivityEventSignedIn, UserID: "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish activity record")
	assert.NoError(t, sink.Close())
}

func TestNewKafkaWriterRequiresBrokersAndTopic(t *testing.T) {
	_, err := activitysink.NewKafkaWriter(activitysink.KafkaConfig{Topic: "t"}, nil)
	assert.True(t, auth.IsConfigMissing(err))

	w, err := activitysink.NewKafkaWriter(activitysink.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "t", w.Topic)
	assert.Equal(t, 3, w.MaxAttempts)
}

func TestMemorySink(t *testing.T) {
	m := &activitysink.Memory{}
	ctx := context.Background()
	require.NoError(t, m.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventSignedIn}))
	require.NoError(t, m.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventSignedOut}))

	assert.Len(t, m.Events(), 2)
	assert.Len(t, m.OfType(auth.ActivityEventSignedOut), 1)
}

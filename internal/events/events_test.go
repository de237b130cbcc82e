package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
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

func TestKafkaPublisher_Publish(t *testing.T) {
	// Arrange
	writer := new(MockWriter)
	p := &KafkaPublisher{writer: writer}
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	var sent []kafka.Message
	writer.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]kafka.Message) }).
		Return(nil)

	// Act
	err := p.Publish(context.Background(), Event{
		Type:       TypeSaleCompleted,
		Key:        "42",
		Payload:    map[string]int{"order_no": 42},
		OccurredAt: at,
	})

	// Assert
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "42", string(sent[0].Key))
	assert.JSONEq(t, `{"order_no":42}`, string(sent[0].Value))
	assert.Equal(t, at, sent[0].Time)
	assert.Equal(t, []kafka.Header{{Key: "event_type", Value: []byte(TypeSaleCompleted)}}, sent[0].Headers)
	writer.AssertExpectations(t)
}

func TestKafkaPublisher_WriteFailure(t *testing.T) {
	writer := new(MockWriter)
	p := &KafkaPublisher{writer: writer}
	writer.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	err := p.Publish(context.Background(), Event{Type: TypeReplenishmentConfirmed, Key: "isbn", Payload: struct{}{}})

	assert.ErrorContains(t, err, "broker down")
}

func TestKafkaPublisher_UnmarshalablePayload(t *testing.T) {
	writer := new(MockWriter)
	p := &KafkaPublisher{writer: writer}

	err := p.Publish(context.Background(), Event{Type: TypeSaleCompleted, Payload: make(chan int)})

	assert.Error(t, err)
	writer.AssertNotCalled(t, "WriteMessages", mock.Anything, mock.Anything)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), Event{Type: TypeSaleCompleted}))
}

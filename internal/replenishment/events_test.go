package replenishment

import (
	"context"
	"errors"
	"testing"

	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"github.com/matheusmosca/bookstore-inventory/internal/events"
	"github.com/matheusmosca/bookstore-inventory/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, evs ...events.Event) error {
	args := m.Called(ctx, evs)
	return args.Error(0)
}

func eventOfType(eventType string) any {
	return mock.MatchedBy(func(evs []events.Event) bool {
		return len(evs) == 1 && evs[0].Type == eventType
	})
}

func TestManager_PublishesOrderEvents(t *testing.T) {
	// Arrange
	s := memory.NewMemoryStore()
	s.Seed(newBook("A", 2, 10, publisher(4)))
	m := newManager(s)
	pub := new(MockPublisher)
	m.SetPublisher(pub)
	pub.On("Publish", mock.Anything, eventOfType(events.TypeReplenishmentCreated)).Return(nil).Once()
	pub.On("Publish", mock.Anything, eventOfType(events.TypeReplenishmentConfirmed)).Return(nil).Once()
	ctx := context.Background()

	// Act
	order, err := m.Create(ctx, CreateRequest{ISBN: "A", AdminID: 1, Quantity: 20})
	require.NoError(t, err)
	_, err = m.Confirm(ctx, order.ID)
	require.NoError(t, err)
	_, err = m.Confirm(ctx, order.ID)
	require.NoError(t, err)

	// Assert
	pub.AssertExpectations(t)
	pub.AssertNumberOfCalls(t, "Publish", 2)
}

func TestManager_PublishFailureDoesNotUndoConfirm(t *testing.T) {
	s := memory.NewMemoryStore()
	s.Seed(newBook("A", 2, 10, publisher(4)))
	m := newManager(s)
	pub := new(MockPublisher)
	m.SetPublisher(pub)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	ctx := context.Background()

	order, err := m.Create(ctx, CreateRequest{ISBN: "A", AdminID: 1, Quantity: 20})
	require.NoError(t, err)
	confirmed, err := m.Confirm(ctx, order.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, confirmed.Status)
	assert.Equal(t, 22, stockOf(t, s, "A"))
}

package alerting

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func TestBrokerNotifier_Deliver(t *testing.T) {
	ctx := context.Background()
	n := Notification{UserID: "u1", Title: TitleExceeded, Body: "over"}

	t.Run("published under user key", func(t *testing.T) {
		publisher := &MockPublisher{}
		publisher.On("Publish", ctx, "u1", n).Return(nil).Once()

		require.NoError(t, NewBrokerNotifier(newTestLogger(), publisher).Deliver(ctx, n))
		publisher.AssertExpectations(t)
	})

	t.Run("publish failure", func(t *testing.T) {
		publisher := &MockPublisher{}
		brokerErr := errors.New("broker down")
		publisher.On("Publish", ctx, "u1", n).Return(brokerErr).Once()

		err := NewBrokerNotifier(newTestLogger(), publisher).Deliver(ctx, n)
		assert.ErrorIs(t, err, brokerErr)
	})
}

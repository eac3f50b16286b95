package push

import (
	"context"
	"order_lifecycle/internal/pkg/config"
	"order_lifecycle/internal/pkg/notify"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockPushService struct {
	mock.Mock
}

func (m *mockPushService) PushToAccount(accountID string, title, body string, ext map[string]string) error {
	return m.Called(accountID, title, body, ext).Error(0)
}

func (m *mockPushService) PushToTag(tag string, title, body string, ext map[string]string) error {
	return m.Called(tag, title, body, ext).Error(0)
}

func TestNotifierRoutesByAudience(t *testing.T) {
	svc := new(mockPushService)
	n := NewNotifier(svc)
	event := notify.Event{Type: notify.EventStatusChanged, OrderID: "ORD001", From: "Pending", To: "Accepted"}

	svc.On("PushToAccount", "CUST1", "Order update", "Order ORD001 is now Accepted", mock.Anything).Return(nil).Once()
	svc.On("PushToTag", AdminTag, "Order update", "Order ORD001 is now Accepted", mock.Anything).Return(nil).Once()

	assert.NoError(t, n.Notify(context.Background(), notify.Audience{Kind: notify.AudienceCustomer, Ref: "CUST1"}, event))
	assert.NoError(t, n.Notify(context.Background(), notify.Audience{Kind: notify.AudienceAdmin}, event))
	svc.AssertExpectations(t)
}

func TestNewAliyunPushServiceRequiresConfig(t *testing.T) {
	_, err := NewAliyunPushService(config.PushConfig{})
	assert.Error(t, err)
}

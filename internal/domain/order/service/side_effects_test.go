package service

import (
	"context"
	"errors"
	"order_lifecycle/internal/domain/order/model"
	"order_lifecycle/internal/pkg/notify"
	"order_lifecycle/internal/pkg/worker"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// 客户、专业人员、管理员
const seededAudiences = 3

func TestNotificationRetryOnlyResendsFailedChannel(t *testing.T) {
	f := newFixture(t)
	seed(f, "ORD063", model.StatusPending, model.PaymentPending)
	delivered := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("rabbitmq down")}
	f.engine.notifier = notify.Multi{delivered, nil, failing}

	_, err := transition(f, "ORD063", model.StatusAccepted, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 2*seededAudiences, f.disp.count("notify"))

	failed := f.disp.drain()
	require.Len(t, failed, seededAudiences)

	// 按工作池的方式重试两次
	for i := 0; i < 2; i++ {
		for _, task := range failed {
			assert.Error(t, task.Run(context.Background()))
		}
	}

	assert.Len(t, delivered.events, seededAudiences)
	assert.Len(t, failing.events, 3*seededAudiences)
	assert.Equal(t, float64(3*seededAudiences), f.counter(t, "order_side_effect_failures_total", "kind", "notification"))
}

func TestNotificationRetryThroughWorkerPool(t *testing.T) {
	f := newFixture(t)
	seed(f, "ORD064", model.StatusPending, model.PaymentPending)
	delivered := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("rabbitmq down")}
	f.engine.notifier = notify.Multi{delivered, failing}

	dead := make(chan worker.Task, 2*seededAudiences)
	pool := worker.NewWorkerPool(worker.Options{
		Workers:     1,
		QueueSize:   16,
		MaxRetry:    2,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  time.Millisecond,
		OnDeadLetter: func(task worker.Task, err error) {
			dead <- task
		},
	})
	pool.Start()
	defer pool.Stop()
	f.engine.dispatcher = pool

	_, err := transition(f, "ORD064", model.StatusAccepted, adminActor)
	require.NoError(t, err)

	for i := 0; i < seededAudiences; i++ {
		select {
		case task := <-dead:
			assert.Equal(t, "notify", task.Name)
			assert.Equal(t, 2, task.Attempt)
		case <-time.After(2 * time.Second):
			t.Fatal("failing channel was not dead lettered")
		}
	}

	delivered.mu.Lock()
	defer delivered.mu.Unlock()
	assert.Len(t, delivered.events, seededAudiences, "a healthy channel is delivered once per audience")
}

func TestRefundRetryWithoutDispatcherStaysPending(t *testing.T) {
	f := newFixture(t)
	o := seed(f, "ORD044", model.StatusCancelled, model.PaymentPaid)
	o.RefundStatus = model.RefundPending
	o.PaymentChannel = "alipay"
	o.Cancellation = &model.Cancellation{Reason: "Shop closed", Source: model.CancelSourceShop}
	f.repo.put(o)
	f.engine.dispatcher = nil

	f.refunder.On("IssueRefund", mock.Anything).Return(nil, errors.New("gateway timeout")).Once()

	snapshot, err := f.engine.RequestRefund(context.Background(), "ORD044", adminActor)
	assert.ErrorIs(t, err, model.ErrRefundDispatchFailed)
	require.NotNil(t, snapshot)
	assert.Equal(t, model.RefundPending, f.repo.get(t, "ORD044").RefundStatus)
	// 同步失败一次，重试无法入队一次
	assert.Equal(t, 2.0, f.counter(t, "order_side_effect_failures_total", "kind", "refund"))
	f.refunder.AssertExpectations(t)
}

func TestRefundRetryQueueFullStaysPending(t *testing.T) {
	f := newFixture(t)
	o := seed(f, "ORD045", model.StatusCancelled, model.PaymentPaid)
	o.RefundStatus = model.RefundPending
	o.Cancellation = &model.Cancellation{Reason: "Shop closed", Source: model.CancelSourceShop}
	f.repo.put(o)
	f.disp.full = true

	f.refunder.On("IssueRefund", mock.Anything).Return(nil, errors.New("gateway timeout")).Once()

	_, err := f.engine.RequestRefund(context.Background(), "ORD045", adminActor)
	assert.ErrorIs(t, err, model.ErrRefundDispatchFailed)
	assert.Equal(t, 0, f.disp.count("refund"))
	assert.Equal(t, model.RefundPending, f.repo.get(t, "ORD045").RefundStatus)
	assert.Equal(t, 2.0, f.counter(t, "order_side_effect_failures_total", "kind", "refund"))
}

package trader

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailskim/notifier"
)

func newTestReconciler(m MarketData, g OrderGateway, n notifier.Notifier) (*Reconciler, *int) {
	r := NewReconciler(m, g, n)
	sleeps := 0
	r.sleep = func(time.Duration) { sleeps++ }
	return r, &sleeps
}

func TestReconcileDeadband(t *testing.T) {
	gw := &fakeGateway{}
	r, _ := newTestReconciler(newFakeMarket(), gw, &fakeNotifier{})

	st := shortState(100)
	setStop(st, 93.0)

	// 93.0 → 93.05 变化 0.054% < 0.1%，不动挂单
	placed, err := r.Reconcile(st, 93.05, 90)
	require.NoError(t, err)

	assert.False(t, placed)
	assert.Empty(t, gw.places)
	assert.Empty(t, gw.cancels)
	assert.Empty(t, gw.closes)
}

func TestReconcilePlacesNewStop(t *testing.T) {
	m := newFakeMarket()
	m.orders["BTCUSDT"] = []OpenOrder{
		{OrderID: 11, Type: "STOP_MARKET", ReduceOnly: true, StopPrice: 95},
		{OrderID: 12, Type: "LIMIT"}, // 用户自己的挂单，不许碰
	}
	gw := &fakeGateway{}
	r, _ := newTestReconciler(m, gw, &fakeNotifier{})

	st := shortState(100)
	setStop(st, 95.0)

	placed, err := r.Reconcile(st, 93.0, 90)
	require.NoError(t, err)

	assert.True(t, placed)
	assert.Equal(t, []int64{11}, gw.cancels, "只撤保护单")
	require.Len(t, gw.places, 1)
	assert.Equal(t, 93.0, gw.places[0].triggerPrice)
	assert.Equal(t, 10.0, gw.places[0].size)
}

func TestReconcileEmergencyClose(t *testing.T) {
	gw := &fakeGateway{fillPrice: 93.2}
	alerts := &fakeNotifier{}
	r, _ := newTestReconciler(newFakeMarket(), gw, alerts)

	st := shortState(100)

	// 空单价格 94 已越过止损 93：直接市价全平，不挂必然立即触发的单
	placed, err := r.Reconcile(st, 93.0, 94)
	require.NoError(t, err)

	assert.False(t, placed)
	require.Len(t, gw.closes, 1)
	assert.Equal(t, 10.0, gw.closes[0].size)
	assert.Empty(t, gw.places)
	assert.Zero(t, st.CurrentSize)
	assert.NotEmpty(t, alerts.byPriority(notifier.PriorityCritical))
}

func TestReconcileCancelFailureDoesNotBlock(t *testing.T) {
	m := newFakeMarket()
	m.orders["BTCUSDT"] = []OpenOrder{
		{OrderID: 21, Type: "STOP_MARKET", ClosePosition: true},
	}
	gw := &fakeGateway{cancelErr: fmt.Errorf("order already gone")}
	r, _ := newTestReconciler(m, gw, &fakeNotifier{})

	st := shortState(100)
	placed, err := r.Reconcile(st, 93.0, 90)
	require.NoError(t, err)

	assert.True(t, placed, "撤单失败不能阻止挂新止损")
	require.Len(t, gw.places, 1)
}

func TestReconcileOrderListFailureDoesNotBlock(t *testing.T) {
	m := newFakeMarket()
	m.ordersErr = fmt.Errorf("timeout")
	gw := &fakeGateway{}
	r, _ := newTestReconciler(m, gw, &fakeNotifier{})

	st := shortState(100)
	placed, err := r.Reconcile(st, 93.0, 90)
	require.NoError(t, err)
	assert.True(t, placed)
}

func TestReconcileRetriesThenSucceeds(t *testing.T) {
	gw := &fakeGateway{placeFailN: 2}
	r, sleeps := newTestReconciler(newFakeMarket(), gw, &fakeNotifier{})

	st := shortState(100)
	placed, err := r.Reconcile(st, 93.0, 90)
	require.NoError(t, err)

	assert.True(t, placed)
	assert.Equal(t, 2, *sleeps, "前两次失败各等一次")
	require.Len(t, gw.places, 1)
}

func TestReconcileRetryExhaustion(t *testing.T) {
	gw := &fakeGateway{placeErr: fmt.Errorf("rate limited")}
	alerts := &fakeNotifier{}
	r, sleeps := newTestReconciler(newFakeMarket(), gw, alerts)

	st := shortState(100)
	placed, err := r.Reconcile(st, 93.0, 90)

	assert.Error(t, err)
	assert.False(t, placed)
	assert.Equal(t, placeAttempts-1, *sleeps)
	assert.NotEmpty(t, alerts.byPriority(notifier.PriorityCritical))
	assert.Nil(t, st.CurrentTrailStop, "失败时不得记录新止损，下一轮重算重挂")
}

func TestIsProtectiveOrder(t *testing.T) {
	cases := []struct {
		order OpenOrder
		want  bool
	}{
		{OpenOrder{Type: "STOP_MARKET", ReduceOnly: true}, true},
		{OpenOrder{Type: "STOP", ClosePosition: true}, true},
		{OpenOrder{Type: "TAKE_PROFIT_MARKET", ReduceOnly: true}, true},
		{OpenOrder{Type: "STOP_MARKET"}, false},
		{OpenOrder{Type: "LIMIT", ReduceOnly: true}, false},
		{OpenOrder{Type: "MARKET"}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isProtectiveOrder(tc.order), "%+v", tc.order)
	}
}

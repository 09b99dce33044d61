package inventory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application/inventory"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/sqlstore/sqlitetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (c *collector) Publish(_ context.Context, e domoutbox.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestWatchRaisesLowStock(t *testing.T) {
	s, _ := sqlitetest.Open(t)
	plenty := sqlitetest.Product(t, s, "Plenty", "1.00", 50)
	few := sqlitetest.Product(t, s, "Few", "1.00", 2)
	gone := sqlitetest.Product(t, s, "Gone", "1.00", 0)
	pub := &collector{}

	report, err := inventory.NewWatchStockUseCase(s, pub, 3, nil).Execute(context.Background(),
		dominv.NewStockSoldEvent(9, []dominv.Adjustment{
			{ProductID: plenty.ID, Quantity: 1},
			{ProductID: few.ID, Quantity: 1},
			{ProductID: gone.ID, Quantity: 1},
			{ProductID: 9999, Quantity: 1},
		}))
	require.NoError(t, err)
	require.Len(t, report.Low, 2)
	assert.Equal(t, few.ID, report.Low[0].ProductID)
	assert.False(t, report.Low[0].SoldOut())
	assert.Equal(t, gone.ID, report.Low[1].ProductID)
	assert.True(t, report.Low[1].SoldOut())
	assert.Equal(t, 2, pub.len())
}

func TestWorkerRunsWatchFromBus(t *testing.T) {
	s, _ := sqlitetest.Open(t)
	few := sqlitetest.Product(t, s, "Few", "1.00", 1)
	pub := &collector{}
	bus := outbox.NewBus(nil)
	inventory.NewWorker(bus, inventory.NewWatchStockUseCase(s, pub, inventory.DefaultLowStockThreshold, nil), nil).Start()
	bus.Start(context.Background())

	require.NoError(t, bus.Publish(context.Background(), dominv.NewStockSoldEvent(1, []dominv.Adjustment{{ProductID: few.ID, Quantity: 1}})))
	require.NoError(t, bus.Publish(context.Background(), dominv.NewStockRestockedEvent(1, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(ctx))
	assert.Equal(t, 1, pub.len())
}

package circulation

import (
	"context"
	"testing"

	"bookstore/internal/model"
	"bookstore/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func findSum(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Sum[int64] {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			return sum
		}
	}
	t.Fatalf("metric %s not found", name)
	return metricdata.Sum[int64]{}
}

func TestBorrowCountersAreRecorded(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	f := newFixture(t, WithMeterProvider(provider))

	book := testutil.SeedBook(t, f.store, testutil.Copies(1))
	_, err := f.svc.Borrow(ctx, testutil.SeedUser(t, f.store).ID, book.ID)
	require.NoError(t, err)
	_, err = f.svc.Borrow(ctx, testutil.SeedUser(t, f.store).ID, book.ID)
	require.ErrorIs(t, err, model.ErrCapacityExceeded)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	borrows := findSum(t, rm, "bookstore.circulation.borrows")
	require.Len(t, borrows.DataPoints, 1)
	assert.Equal(t, int64(1), borrows.DataPoints[0].Value)

	rejections := findSum(t, rm, "bookstore.circulation.rejections")
	require.Len(t, rejections.DataPoints, 1)
	point := rejections.DataPoints[0]
	assert.Equal(t, int64(1), point.Value)
	want := attribute.NewSet(attribute.String("code", string(model.CodeCapacityExceeded)))
	assert.True(t, point.Attributes.Equals(&want), "got %v", point.Attributes.ToSlice())
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockStatusFor(t *testing.T) {
	zero, some, negative := 0, 4, -1

	assert.Equal(t, StockOutOfStock, StockStatusFor(nil))
	assert.Equal(t, StockOutOfStock, StockStatusFor(&zero))
	assert.Equal(t, StockOutOfStock, StockStatusFor(&negative))
	assert.Equal(t, StockInStock, StockStatusFor(&some))
}

func TestNewCapture(t *testing.T) {
	bogota := time.FixedZone("COT", -5*60*60)
	now := time.Date(2025, 3, 10, 21, 30, 0, 0, bogota)

	c := NewCapture("https://shop.example/c", now)

	assert.Equal(t, "https://shop.example/c", c.CategoryURL)
	assert.Equal(t, "2025-03-10", c.Date)
	assert.Equal(t, time.UTC, c.Timestamp.Location())
	assert.Equal(t, "2025-03-11 02:30:00.000000 UTC", c.Timestamp.Format(TimestampLayout))
}

func TestSnapshotSeal(t *testing.T) {
	snap := NewSnapshot(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	assert.True(t, snap.Empty())
	assert.Equal(t, "2025-03-10", snap.Date())

	require.NoError(t, snap.Append(ProductRecord{ProductURL: "a"}, ProductRecord{ProductURL: "b"}))
	assert.Equal(t, 2, snap.Len())

	snap.Seal()
	assert.True(t, snap.Sealed())
	assert.ErrorIs(t, snap.Append(ProductRecord{ProductURL: "c"}), ErrSnapshotSealed)
	assert.Equal(t, 2, snap.Len())
}

func TestSnapshotRecordsIsCopy(t *testing.T) {
	snap := NewSnapshot(time.Now())
	require.NoError(t, snap.Append(ProductRecord{ProductURL: "a"}))

	records := snap.Records()
	records[0].ProductURL = "changed"

	assert.Equal(t, "a", snap.Records()[0].ProductURL)
}

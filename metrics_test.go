package hnswtag

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBasicMetricsCollector(t *testing.T) {
	mc := &BasicMetricsCollector{}
	boom := errors.New("boom")

	mc.RecordInsert(10*time.Millisecond, nil)
	mc.RecordInsert(20*time.Millisecond, boom)
	mc.RecordBatchInsert(5, 1, time.Second)
	mc.RecordSearch(10, 4*time.Millisecond, nil)
	mc.RecordDelete(time.Millisecond, boom)
	mc.RecordMaterialize(40, time.Second, nil)
	mc.RecordSave(time.Second, nil)
	mc.RecordLoad(time.Second, boom)

	s := mc.GetStats()
	assert.Equal(t, int64(2), s.InsertCount)
	assert.Equal(t, int64(1), s.InsertErrors)
	assert.Equal(t, (15 * time.Millisecond).Nanoseconds(), s.InsertAvgNanos)
	assert.Equal(t, int64(1), s.BatchInsertCount)
	assert.Equal(t, int64(5), s.BatchInsertItems)
	assert.Equal(t, int64(1), s.BatchInsertFailed)
	assert.Equal(t, int64(1), s.SearchCount)
	assert.Equal(t, (4 * time.Millisecond).Nanoseconds(), s.SearchAvgNanos)
	assert.Equal(t, int64(1), s.DeleteErrors)
	assert.Equal(t, int64(1), s.MaterializeCount)
	assert.Equal(t, int64(0), s.MaterializeErrors)
	assert.Equal(t, int64(1), s.SaveCount)
	assert.Equal(t, int64(1), s.LoadErrors)
}

func TestBasicMetricsCollectorEmpty(t *testing.T) {
	s := (&BasicMetricsCollector{}).GetStats()
	assert.Zero(t, s.InsertAvgNanos)
	assert.Zero(t, s.SearchAvgNanos)
}

func TestNilMetricsCollector(t *testing.T) {
	o := applyOptions([]Option{WithMetricsCollector(nil), WithLogger(nil)})
	assert.IsType(t, NoopMetricsCollector{}, o.metricsCollector)
	assert.NotNil(t, o.logger)
}

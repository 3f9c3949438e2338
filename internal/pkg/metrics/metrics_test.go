package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeStat struct {
	acquired, idle, total int32
	empty, canceled       int64
}

func (f fakeStat) AcquiredConns() int32        { return f.acquired }
func (f fakeStat) IdleConns() int32            { return f.idle }
func (f fakeStat) TotalConns() int32           { return f.total }
func (f fakeStat) EmptyAcquireCount() int64    { return f.empty }
func (f fakeStat) CanceledAcquireCount() int64 { return f.canceled }

func TestUpdateDBPoolMetrics(t *testing.T) {
	emptyBefore := testutil.ToFloat64(DBPoolEmptyAcquires)
	canceledBefore := testutil.ToFloat64(DBPoolCanceledAcquires)

	UpdateDBPoolMetrics(fakeStat{acquired: 3, idle: 2, total: 5, empty: lastEmptyAcquire + 4, canceled: lastCanceled + 1})
	if got := testutil.ToFloat64(DBPoolConnsOpen); got != 5 {
		t.Errorf("open conns = %v, want 5", got)
	}
	if got := testutil.ToFloat64(DBPoolConnsAcquired); got != 3 {
		t.Errorf("acquired conns = %v, want 3", got)
	}
	if got := testutil.ToFloat64(DBPoolEmptyAcquires) - emptyBefore; got != 4 {
		t.Errorf("empty acquires delta = %v, want 4", got)
	}

	// Same cumulative counts again must not add anything.
	UpdateDBPoolMetrics(fakeStat{total: 5, empty: lastEmptyAcquire, canceled: lastCanceled})
	if got := testutil.ToFloat64(DBPoolEmptyAcquires) - emptyBefore; got != 4 {
		t.Errorf("empty acquires delta after repeat = %v, want 4", got)
	}
	if got := testutil.ToFloat64(DBPoolCanceledAcquires) - canceledBefore; got != 1 {
		t.Errorf("canceled acquires delta = %v, want 1", got)
	}
}

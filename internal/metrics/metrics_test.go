package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPlanBuilt(t *testing.T) {
	before := testutil.ToFloat64(PlanCount(StyleResource))
	PlanBuilt(StyleResource)
	PlanBuilt(StyleResource)
	assert.Equal(t, before+2, testutil.ToFloat64(PlanCount(StyleResource)))
}

func TestRejectedDefaultsUnknown(t *testing.T) {
	before := testutil.ToFloat64(RejectionCount("unknown"))
	Rejected("")
	assert.Equal(t, before+1, testutil.ToFloat64(RejectionCount("unknown")))
}

func TestObserveQuery(t *testing.T) {
	before := testutil.CollectAndCount(queryDuration)
	ObserveQuery(BackendMemory, 3*time.Millisecond)
	ObserveQuery(BackendSQL, time.Millisecond)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(queryDuration), before)
	assert.LessOrEqual(t, testutil.CollectAndCount(queryDuration), 2)
}

package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.SettlementsTotal.WithLabelValues("success").Inc()
	m.RewardPayouts.WithLabelValues("buyer", "paid").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SettlementsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RewardPayouts.WithLabelValues("buyer", "paid")))
}

func TestRecordRewardPayout(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.RewardDisbursed.WithLabelValues("seller"))

	RecordRewardPayout("seller", "paid", 50)
	RecordRewardPayout("seller", "skipped", 70)

	after := testutil.ToFloat64(DefaultMetrics.RewardDisbursed.WithLabelValues("seller"))
	assert.Equal(t, 50.0, after-before, "skipped payouts must not count as disbursed")
}

func TestRecordDBQuery_Errors(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", "test_op"))

	RecordDBQuery("postgres", "test_op", 0.01, nil)
	RecordDBQuery("postgres", "test_op", 0.01, errors.New("boom"))

	after := testutil.ToFloat64(DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", "test_op"))
	assert.Equal(t, 1.0, after-before)
}

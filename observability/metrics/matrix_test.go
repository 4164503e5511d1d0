package metrics

import (
	"errors"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveTxSplitsOutcome(t *testing.T) {
	m := Matrix()
	require.Same(t, m, Matrix())

	before := testutil.ToFloat64(m.txs.WithLabelValues("register", "success"))
	m.ObserveTx("register", nil, "")
	require.Equal(t, before+1, testutil.ToFloat64(m.txs.WithLabelValues("register", "success")))

	m.ObserveTx("upgrade", errors.New("boom"), "")
	require.GreaterOrEqual(t, testutil.ToFloat64(m.rejections.WithLabelValues("upgrade", "internal")), 1.0)
}

func TestPayoutAndGauges(t *testing.T) {
	m := Matrix()
	before := testutil.ToFloat64(m.payouts.WithLabelValues("referral"))
	m.AddPayout("referral", big.NewInt(250))
	m.AddPayout("referral", big.NewInt(-5))
	m.AddPayout("referral", nil)
	require.Equal(t, before+250, testutil.ToFloat64(m.payouts.WithLabelValues("referral")))

	m.SetUsers(7)
	require.Equal(t, 7.0, testutil.ToFloat64(m.users))
	m.SetRoyaltyPool(2, big.NewInt(1234))
	require.Equal(t, 1234.0, testutil.ToFloat64(m.royaltyPool.WithLabelValues("2")))

	var nilMetrics *MatrixMetrics
	nilMetrics.SetUsers(1)
}

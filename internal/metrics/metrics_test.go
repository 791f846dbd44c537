package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordScan(t *testing.T) {
	before := testutil.ToFloat64(scansTotal.WithLabelValues("error"))
	RecordScan(time.Millisecond, errors.New("boom"), false)
	assert.Equal(t, before+1, testutil.ToFloat64(scansTotal.WithLabelValues("error")))

	before = testutil.ToFloat64(scansTotal.WithLabelValues("cancelled"))
	RecordScan(0, nil, true)
	assert.Equal(t, before+1, testutil.ToFloat64(scansTotal.WithLabelValues("cancelled")))
}

func TestOperationGauge(t *testing.T) {
	base := testutil.ToFloat64(operationsActive)
	OperationStarted()
	assert.Equal(t, base+1, testutil.ToFloat64(operationsActive))
	RecordOperation("copy", "succeeded", time.Second)
	assert.Equal(t, base, testutil.ToFloat64(operationsActive))
	assert.GreaterOrEqual(t, testutil.ToFloat64(operationsTotal.WithLabelValues("copy", "succeeded")), 1.0)
}

func TestHandler(t *testing.T) {
	AddBytesCopied(42)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "strop_bytes_copied_total"))
}

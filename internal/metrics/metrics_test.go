package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersExposed(t *testing.T) {
	before := testutil.ToFloat64(RepliesTotal.WithLabelValues(OutcomeFallbackScript))
	RepliesTotal.WithLabelValues(OutcomeFallbackScript).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RepliesTotal.WithLabelValues(OutcomeFallbackScript)))

	ReviewsTotal.WithLabelValues("good").Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `dreamate_replies_total{outcome="fallback_script"}`)
	assert.Contains(t, string(body), `dreamate_reviews_total{rating="good"}`)
}

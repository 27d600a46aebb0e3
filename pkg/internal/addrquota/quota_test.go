package addrquota

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuota_Blocked(t *testing.T) {
	q := New(0.0001, 2, 10)

	assert.False(t, q.Blocked("10.0.0.1:1234"))
	assert.False(t, q.Blocked("10.0.0.2:1234"), "same network shares the burst")
	assert.True(t, q.Blocked("10.0.0.3:1234"))

	assert.False(t, q.Blocked("10.0.1.1:1234"), "other network has its own limiter")
	assert.False(t, q.Blocked("not-an-ip"), "unparsable addresses are never blocked")
}

func TestNetworkKey(t *testing.T) {
	assert.Equal(t, "192.168.1.0", networkKey("192.168.1.77:25565"))
	assert.Equal(t, "192.168.1.0", networkKey("192.168.1.77"))
	assert.Equal(t, "", networkKey("localhost:80"))
}

func TestQuota_Middleware(t *testing.T) {
	q := New(0.0001, 1, 10)
	h := q.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func() int {
		r := httptest.NewRequest(http.MethodGet, "/bridge", nil)
		r.RemoteAddr = "172.16.0.5:4000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}
	assert.Equal(t, http.StatusNoContent, do())
	assert.Equal(t, http.StatusTooManyRequests, do())

	var nilQuota *Quota
	assert.NotNil(t, nilQuota.Middleware(http.NotFoundHandler()))
}

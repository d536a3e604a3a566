package runnerbridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingRequests_ResolveDeliversPayload(t *testing.T) {
	p := newPendingRequests()
	resolve := p.register("req-1", "spawn-child", func() { t.Fatal("timeout should not fire") })

	p.resolve("req-1", map[string]any{"childSessionId": "s2"})

	select {
	case res := <-resolve:
		require.NoError(t, res.err)
		assert.Equal(t, "s2", res.payload["childSessionId"])
	case <-time.After(time.Second):
		t.Fatal("resolve channel never delivered")
	}
}

func TestPendingRequests_TimeoutDeliversError(t *testing.T) {
	p := newPendingRequests()
	resolve := p.register("req-1", "create-pr", func() {})

	p.timeout("req-1")

	select {
	case res := <-resolve:
		assert.Error(t, res.err)
	case <-time.After(time.Second):
		t.Fatal("resolve channel never delivered")
	}
}

func TestPendingRequests_CancelAllRejectsEveryCaller(t *testing.T) {
	p := newPendingRequests()
	r1 := p.register("req-1", "op", func() {})
	r2 := p.register("req-2", "op", func() {})

	p.cancelAll(assertErr)

	for _, r := range []<-chan pendingResult{r1, r2} {
		select {
		case res := <-r:
			assert.ErrorIs(t, res.err, assertErr)
		case <-time.After(time.Second):
			t.Fatal("resolve channel never delivered")
		}
	}
}

func TestPendingRequests_ResolveUnknownIDIsNoop(t *testing.T) {
	p := newPendingRequests()
	p.resolve("never-registered", nil) // must not panic
}

var assertErr = errAssert{}

type errAssert struct{}

func (errAssert) Error() string { return "test error" }

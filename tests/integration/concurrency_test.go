package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"groupbuy-core/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentIntake_SameKey fires many concurrent submissions carrying the
// same idempotency key and body. The ledger reservation is atomic, so exactly
// one request creates the order; the rest either replay the stored outcome or
// are told a twin is still in flight. Under no interleaving may a second
// order exist.
func TestConcurrentIntake_SameKey(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	tenant := app.seedTenant(t, "bento-club")
	app.seedHostUser(t, tenant.ID, "staff1", "StrongPass123!", domain.RoleStaff)
	variantID := app.seedVariant(tenant.ID, 40000)

	concurrency := 20
	var wg sync.WaitGroup
	var created atomic.Int64
	var replayed atomic.Int64
	var inProgress atomic.Int64
	var other atomic.Int64
	orderIDs := make([]string, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			resp := app.submitOrder(t, "bento-club", "key-racing", variantID, 2)
			defer resp.Body.Close()

			var body map[string]interface{}
			_ = json.NewDecoder(resp.Body).Decode(&body)

			switch resp.StatusCode {
			case http.StatusCreated:
				created.Add(1)
				orderIDs[idx] = body["data"].(map[string]interface{})["order_id"].(string)
			case http.StatusOK:
				replayed.Add(1)
				orderIDs[idx] = body["data"].(map[string]interface{})["order_id"].(string)
			case http.StatusConflict:
				inProgress.Add(1)
				assert.Equal(t, "IDEMPOTENCY_IN_PROGRESS", body["error_code"])
			default:
				other.Add(1)
			}
		}(i)
	}
	wg.Wait()

	t.Logf("concurrent intake: %d created, %d replayed, %d in-progress", created.Load(), replayed.Load(), inProgress.Load())

	assert.Equal(t, int64(1), created.Load(), "exactly one request may create the order")
	assert.Equal(t, int64(0), other.Load(), "every request must resolve to created, replayed or in-progress")

	// Every resolved response refers to the same order
	unique := make(map[string]struct{})
	for _, id := range orderIDs {
		if id != "" {
			unique[id] = struct{}{}
		}
	}
	assert.Len(t, unique, 1)

	// The host's view confirms a single order exists
	token := loginAndGetToken(t, app, "bento-club", "staff1", "StrongPass123!")
	req, _ := http.NewRequest(http.MethodGet, app.server.URL+"/api/host/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	listData := decodeData(t, resp)
	assert.Equal(t, float64(1), listData["total"])
}

// TestConcurrentTransitions_SingleWinner races many hosts applying the same
// action against the same seen version. The version CAS admits exactly one;
// every loser gets a stale-state conflict and the version advances once.
func TestConcurrentTransitions_SingleWinner(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	tenant := app.seedTenant(t, "bento-club")
	app.seedHostUser(t, tenant.ID, "staff1", "StrongPass123!", domain.RoleStaff)
	variantID := app.seedVariant(tenant.ID, 60000)

	resp := app.submitOrder(t, "bento-club", "key-transition-race", variantID, 1)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	orderID := decodeData(t, resp)["order_id"].(string)

	token := loginAndGetToken(t, app, "bento-club", "staff1", "StrongPass123!")

	concurrency := 10
	var wg sync.WaitGroup
	var winners atomic.Int64
	var stale atomic.Int64
	var other atomic.Int64

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			body, _ := json.Marshal(map[string]any{
				"action":           "confirm-payment",
				"expected_version": 2,
				"provider_ref":     "prov-race",
			})
			req, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/host/orders/"+orderID+"/transition", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)

			r, err := http.DefaultClient.Do(req)
			if err != nil {
				other.Add(1)
				return
			}
			defer r.Body.Close()

			var respBody map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&respBody)

			switch r.StatusCode {
			case http.StatusOK:
				winners.Add(1)
			case http.StatusConflict:
				stale.Add(1)
				assert.Equal(t, "STALE_ORDER_STATE", respBody["error_code"])
			default:
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	t.Logf("concurrent transitions: %d won, %d stale", winners.Load(), stale.Load())

	assert.Equal(t, int64(1), winners.Load(), "the version check admits exactly one transition")
	assert.Equal(t, int64(concurrency-1), stale.Load())
	assert.Equal(t, int64(0), other.Load())

	// The order advanced exactly once
	reqGet, _ := http.NewRequest(http.MethodGet, app.server.URL+"/api/host/orders/"+orderID, nil)
	reqGet.Header.Set("Authorization", "Bearer "+token)
	respGet, err := http.DefaultClient.Do(reqGet)
	require.NoError(t, err)
	getData := decodeData(t, respGet)
	assert.Equal(t, "PAID", getData["status"])
	assert.Equal(t, float64(3), getData["version"])
}

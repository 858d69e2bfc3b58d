package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atelierlabs/atelier/api/handlers"
	"github.com/atelierlabs/atelier/royalty"
	apitesting "github.com/atelierlabs/atelier/api/testing"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	apitesting.SetupTestDB(t, testDB)
	require.NoError(t, handlers.Setup(slog.Default()))

	// Each test gets the full write burst; earlier tests' mutations share
	// the loopback IP and would otherwise count against it.
	handlers.WriteRateLimiter.Reset()

	server := httptest.NewServer(handlers.NewRouter())
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, server *httptest.Server, method, path string, body any) (int, []byte) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, server.URL+path, reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func syncWork(t *testing.T, server *httptest.Server, id, creator, parentID string, ratio int, fee int64) {
	t.Helper()
	status, body := doJSON(t, server, http.MethodPost, "/api/works/sync", map[string]any{
		"id":           id,
		"creator":      creator,
		"parentId":     parentID,
		"title":        "work " + id,
		"fee":          fee,
		"royaltyRatio": ratio,
	})
	require.Equal(t, http.StatusCreated, status, "sync %s: %s", id, body)
}

func TestWorksEndpoints(t *testing.T) {
	server := newTestServer(t)

	syncWork(t, server, "api-w1", "0xcreator1", "", 25, 100)
	syncWork(t, server, "api-w2", "0xcreator1", "api-w1", 10, 50)

	// Get a single work.
	status, body := doJSON(t, server, http.MethodGet, "/api/works/api-w1", nil)
	require.Equal(t, http.StatusOK, status)
	var work royalty.Work
	require.NoError(t, json.Unmarshal(body, &work))
	require.Equal(t, "0xcreator1", work.Creator)
	require.Equal(t, 25, work.RoyaltyRatio)

	// List by creator.
	status, body = doJSON(t, server, http.MethodGet, "/api/works?creator=0xcreator1", nil)
	require.Equal(t, http.StatusOK, status)
	var list handlers.WorkListResponse
	require.NoError(t, json.Unmarshal(body, &list))
	require.Equal(t, 2, list.Total)
	require.False(t, list.HasMore)

	// Unknown work is a 404.
	status, _ = doJSON(t, server, http.MethodGet, "/api/works/api-missing", nil)
	require.Equal(t, http.StatusNotFound, status)

	// Ratio outside 0-100 is rejected.
	status, _ = doJSON(t, server, http.MethodPost, "/api/works/sync", map[string]any{
		"id": "api-bad", "creator": "0xcreator1", "royaltyRatio": 101,
	})
	require.Equal(t, http.StatusBadRequest, status)

	// Revoke and read back.
	status, body = doJSON(t, server, http.MethodPatch, "/api/works/api-w2/revoke", map[string]any{"revoked": true})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &work))
	require.True(t, work.Revoked)
}

func TestLineageEndpoint(t *testing.T) {
	server := newTestServer(t)

	syncWork(t, server, "lin-a", "0xa", "", 20, 100)
	syncWork(t, server, "lin-b", "0xb", "lin-a", 30, 100)
	syncWork(t, server, "lin-c", "0xc", "lin-b", 0, 100)

	status, body := doJSON(t, server, http.MethodGet, "/api/lineage/lin-c", nil)
	require.Equal(t, http.StatusOK, status)

	var lineage handlers.LineageResponse
	require.NoError(t, json.Unmarshal(body, &lineage))
	require.Len(t, lineage.Ancestors, 2)
	require.Equal(t, "lin-b", lineage.Ancestors[0].ID)
	require.Equal(t, "lin-a", lineage.Ancestors[1].ID)
	require.Empty(t, lineage.Children)

	status, body = doJSON(t, server, http.MethodGet, "/api/lineage/lin-b", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &lineage))
	require.Len(t, lineage.Ancestors, 1)
	require.Len(t, lineage.Children, 1)
	require.Equal(t, "lin-c", lineage.Children[0].ID)

	status, _ = doJSON(t, server, http.MethodGet, "/api/lineage/lin-missing", nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestPaymentAndRoyaltyFlow(t *testing.T) {
	server := newTestServer(t)

	// A (ratio 20) <- B (ratio 30) <- C
	syncWork(t, server, "flow-a", "0xflowa", "", 20, 100)
	syncWork(t, server, "flow-b", "0xflowb", "flow-a", 30, 100)
	syncWork(t, server, "flow-c", "0xflowc", "flow-b", 0, 100)

	// Settle a payment of 100 for C.
	payReq := map[string]any{
		"workId":            "flow-c",
		"transactionDigest": "flow-tx-1",
		"transfers": []map[string]any{
			{"recipient": "0xflowc", "amount": 70},
			{"recipient": "0xflowb", "amount": 24},
			{"recipient": "0xflowa", "amount": 6},
		},
	}
	status, body := doJSON(t, server, http.MethodPost, "/api/transactions/pay", payReq)
	require.Equal(t, http.StatusOK, status, "pay: %s", body)

	var payment handlers.PaymentResponse
	require.NoError(t, json.Unmarshal(body, &payment))
	require.Len(t, payment.Events, 3)
	require.Equal(t, map[string]int64{"flow-c": 70, "flow-b": 24, "flow-a": 6}, payment.Distribution)

	// Replaying the same digest must not change earned totals.
	status, _ = doJSON(t, server, http.MethodPost, "/api/transactions/pay", payReq)
	require.Equal(t, http.StatusOK, status)

	// B's summary: earned 24, nothing claimed, one direct derivative.
	status, body = doJSON(t, server, http.MethodGet, "/api/royalty/summary?workId=flow-b", nil)
	require.Equal(t, http.StatusOK, status)
	var summary royalty.Summary
	require.NoError(t, json.Unmarshal(body, &summary))
	require.Equal(t, int64(24), summary.Earned)
	require.Equal(t, int64(24), summary.Claimable)
	require.Len(t, summary.Breakdown, 1)
	require.Equal(t, "flow-c", summary.Breakdown[0].ChildWorkID)

	// Claim part of it.
	status, body = doJSON(t, server, http.MethodPost, "/api/royalty/claim", map[string]any{
		"workId": "flow-b", "amount": 20,
	})
	require.Equal(t, http.StatusOK, status, "claim: %s", body)
	var claim royalty.ClaimResult
	require.NoError(t, json.Unmarshal(body, &claim))
	require.Equal(t, int64(20), claim.Claimed)
	require.Equal(t, int64(4), claim.Remaining)

	// Over-claim is rejected.
	status, _ = doJSON(t, server, http.MethodPost, "/api/royalty/claim", map[string]any{
		"workId": "flow-b", "amount": 5,
	})
	require.Equal(t, http.StatusUnprocessableEntity, status)

	// Non-positive claim is a bad request.
	status, _ = doJSON(t, server, http.MethodPost, "/api/royalty/claim", map[string]any{
		"workId": "flow-b", "amount": 0,
	})
	require.Equal(t, http.StatusBadRequest, status)

	// Earnings stats for B's creator: 24 royalty revenue, no sales.
	status, body = doJSON(t, server, http.MethodGet, "/api/earnings/stats?address=0xflowb", nil)
	require.Equal(t, http.StatusOK, status)
	var stats struct {
		SalesRevenue   int64 `json:"salesRevenue"`
		RoyaltyRevenue int64 `json:"royaltyRevenue"`
		TotalRevenue   int64 `json:"totalRevenue"`
	}
	require.NoError(t, json.Unmarshal(body, &stats))
	require.Equal(t, int64(0), stats.SalesRevenue)
	require.Equal(t, int64(24), stats.RoyaltyRevenue)

	// C's creator got the sale.
	status, body = doJSON(t, server, http.MethodGet, "/api/earnings/stats?address=0xflowc", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &stats))
	require.Equal(t, int64(70), stats.SalesRevenue)

	// Transactions feed for B's creator.
	status, body = doJSON(t, server, http.MethodGet, "/api/earnings/transactions?address=0xflowb", nil)
	require.Equal(t, http.StatusOK, status)
	var feed handlers.EarningsTransactionsResponse
	require.NoError(t, json.Unmarshal(body, &feed))
	require.Len(t, feed.Transactions, 1)
	require.Equal(t, royalty.RevenueTypeRoyalty, feed.Transactions[0].Type)
}

func TestManualDistribute(t *testing.T) {
	server := newTestServer(t)

	syncWork(t, server, "man-a", "0xmana", "", 50, 100)
	syncWork(t, server, "man-b", "0xmanb", "man-a", 0, 100)

	status, body := doJSON(t, server, http.MethodPost, "/api/royalty/distribute", map[string]any{
		"workId": "man-b", "amount": 100, "transactionDigest": "man-tx-1",
	})
	require.Equal(t, http.StatusOK, status, "distribute: %s", body)

	var resp handlers.DistributeResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Equal(t, map[string]int64{"man-b": 50, "man-a": 50}, resp.Distribution)

	// Replay is a no-op.
	status, _ = doJSON(t, server, http.MethodPost, "/api/royalty/distribute", map[string]any{
		"workId": "man-b", "amount": 100, "transactionDigest": "man-tx-1",
	})
	require.Equal(t, http.StatusOK, status)

	status, body = doJSON(t, server, http.MethodGet, "/api/royalty/summary?workId=man-a", nil)
	require.Equal(t, http.StatusOK, status)
	var summary royalty.Summary
	require.NoError(t, json.Unmarshal(body, &summary))
	require.Equal(t, int64(50), summary.Earned)

	// Distribution for an unknown work is a 404.
	status, _ = doJSON(t, server, http.MethodPost, "/api/royalty/distribute", map[string]any{
		"workId": "man-missing", "amount": 100, "transactionDigest": "man-tx-2",
	})
	require.Equal(t, http.StatusNotFound, status)

	// Missing digest is a bad request.
	status, _ = doJSON(t, server, http.MethodPost, "/api/royalty/distribute", map[string]any{
		"workId": "man-b", "amount": 100,
	})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestHealthEndpoints(t *testing.T) {
	server := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		status, body := doJSON(t, server, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, status, fmt.Sprintf("%s: %s", path, body))
	}

	status, body := doJSON(t, server, http.MethodGet, "/api/version", nil)
	require.Equal(t, http.StatusOK, status)
	var version handlers.VersionResponse
	require.NoError(t, json.Unmarshal(body, &version))
	require.NotEmpty(t, version.Version)
}

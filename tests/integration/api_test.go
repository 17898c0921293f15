package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	httpHandler "wallet-registry/internal/adapter/http/handler"
	"wallet-registry/internal/adapter/http/middleware"
	memStorage "wallet-registry/internal/adapter/storage/memory"
	redisStorage "wallet-registry/internal/adapter/storage/redis"
	"wallet-registry/internal/core/domain"
	"wallet-registry/internal/core/ports"
	"wallet-registry/internal/service"
	"wallet-registry/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp builds the full application stack over the in-memory primary store
// and a miniredis-backed search index, rate limiter and idempotency cache.
type testApp struct {
	server    *httptest.Server
	redis     *miniredis.Miniredis
	store     *memStorage.WalletStore
	index     *switchableIndex
	reindexer *service.Reindexer
	audit     *inMemoryAuditRepo
	token     string
}

const basePath = "/api"

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.NewWithWriter("error", io.Discard)

	store := memStorage.NewWalletStore()
	index := &switchableIndex{WalletIndex: redisStorage.NewWalletIndex(rdb, "wallet:")}
	audit := newInMemoryAuditRepo()

	reindexer := service.NewReindexer(store, index, log)
	walletSvc := service.NewWalletService(store, index, reindexer, service.NewAuditService(audit, log), log)
	tokenSvc := service.NewJWTTokenService("integration-secret-key-32-bytes!", time.Hour, "wallet-registry")

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WalletSvc:        walletSvc,
		Maintainer:       reindexer,
		TokenSvc:         tokenSvc,
		RateLimitStore:   redisStorage.NewRateLimitStore(rdb),
		RateLimitRules:   middleware.WalletRateLimitRules(1000, 1000, 1000),
		IdempotencyCache: redisStorage.NewIdempotencyCache(rdb),
		IdempotencyTTL:   time.Hour,
		Metrics:          middleware.NewMetrics("wallet_registry"),
		HealthCheckers:   []ports.HealthChecker{store, redisStorage.NewHealthCheck(rdb)},
		BasePath:         basePath,
		AppName:          "walletRegistry",
		Logger:           log,
	})

	token, _, err := tokenSvc.Generate("integration", []string{middleware.AuthorityUser})
	require.NoError(t, err)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testApp{
		server:    server,
		redis:     mr,
		store:     store,
		index:     index,
		reindexer: reindexer,
		audit:     audit,
		token:     token,
	}
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}, headers ...string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func searchPath(q string) string {
	return basePath + "/_search/wallets?query=" + url.QueryEscape(q)
}

func ids(wallets []domain.Wallet) []int64 {
	out := make([]int64, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, *w.ID)
	}
	return out
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]interface{}](t, resp)
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_RequiresToken(t *testing.T) {
	app := newTestApp(t)

	resp, err := http.Get(app.server.URL + basePath + "/wallets")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_EmptyList(t *testing.T) {
	app := newTestApp(t)

	resp := app.do(t, http.MethodGet, basePath+"/wallets", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestIntegration_WalletLifecycle(t *testing.T) {
	app := newTestApp(t)

	// create
	resp := app.do(t, http.MethodPost, basePath+"/wallets", map[string]string{"name": "Holiday fund", "description": "beach trip"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[domain.Wallet](t, resp)
	require.NotNil(t, created.ID)
	id := *created.ID
	assert.Equal(t, fmt.Sprintf("%s/wallets/%d", basePath, id), resp.Header.Get("Location"))
	assert.Equal(t, "walletRegistry.wallet.created", resp.Header.Get("X-walletRegistry-Alert"))
	assert.Equal(t, fmt.Sprint(id), resp.Header.Get("X-walletRegistry-Params"))

	// get
	resp = app.do(t, http.MethodGet, fmt.Sprintf("%s/wallets/%d", basePath, id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Holiday fund", decode[domain.Wallet](t, resp).Name)

	// search by the original name
	resp = app.do(t, http.MethodGet, searchPath("holiday"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []int64{id}, ids(decode[[]domain.Wallet](t, resp)))

	// update
	resp = app.do(t, http.MethodPut, basePath+"/wallets", map[string]interface{}{"id": id, "name": "Ski fund"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "walletRegistry.wallet.updated", resp.Header.Get("X-walletRegistry-Alert"))
	updated := decode[domain.Wallet](t, resp)
	assert.Equal(t, "Ski fund", updated.Name)
	assert.Nil(t, updated.Description)

	// search reflects the update
	resp = app.do(t, http.MethodGet, searchPath("holiday"), nil)
	assert.Empty(t, decode[[]domain.Wallet](t, resp))
	resp = app.do(t, http.MethodGet, searchPath("name:ski"), nil)
	assert.Equal(t, []int64{id}, ids(decode[[]domain.Wallet](t, resp)))

	// delete
	resp = app.do(t, http.MethodDelete, fmt.Sprintf("%s/wallets/%d", basePath, id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "walletRegistry.wallet.deleted", resp.Header.Get("X-walletRegistry-Alert"))

	// gone from both stores
	resp = app.do(t, http.MethodGet, fmt.Sprintf("%s/wallets/%d", basePath, id), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = app.do(t, http.MethodGet, searchPath("*"), nil)
	assert.Empty(t, decode[[]domain.Wallet](t, resp))

	// deleting again is a no-op
	resp = app.do(t, http.MethodDelete, fmt.Sprintf("%s/wallets/%d", basePath, id), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Eventually(t, func() bool { return len(app.audit.all()) == 4 }, time.Second, 10*time.Millisecond)
}

func TestIntegration_IDPreconditions(t *testing.T) {
	app := newTestApp(t)

	resp := app.do(t, http.MethodPost, basePath+"/wallets", map[string]interface{}{"id": 5, "name": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "error.idexists", resp.Header.Get("X-walletRegistry-Error"))

	resp = app.do(t, http.MethodPut, basePath+"/wallets", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "error.idnull", resp.Header.Get("X-walletRegistry-Error"))

	resp = app.do(t, http.MethodGet, basePath+"/wallets", nil)
	assert.Empty(t, decode[[]domain.Wallet](t, resp), "rejected requests leave the store untouched")
}

func TestIntegration_UpdateUnknownIDCreates(t *testing.T) {
	app := newTestApp(t)

	resp := app.do(t, http.MethodPut, basePath+"/wallets", map[string]interface{}{"id": 40, "name": "Imported"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = app.do(t, http.MethodPost, basePath+"/wallets", map[string]string{"name": "Next"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Greater(t, *decode[domain.Wallet](t, resp).ID, int64(40))
}

// indexState returns every search index key under "wallet:" with its value.
func (a *testApp) indexState(t *testing.T) map[string]interface{} {
	t.Helper()
	out := make(map[string]interface{})
	for _, k := range a.redis.Keys() {
		if !strings.HasPrefix(k, "wallet:") {
			continue
		}
		var (
			v   interface{}
			err error
		)
		switch a.redis.Type(k) {
		case "string":
			v, err = a.redis.Get(k)
		case "set":
			v, err = a.redis.Members(k)
		case "zset":
			v, err = a.redis.ZMembers(k)
		default:
			t.Fatalf("unexpected type %q for key %s", a.redis.Type(k), k)
		}
		require.NoError(t, err)
		out[k] = v
	}
	return out
}

func TestIntegration_RepeatedUpdateIsIdempotent(t *testing.T) {
	app := newTestApp(t)

	resp := app.do(t, http.MethodPost, basePath+"/wallets", map[string]string{"name": "Holiday fund", "description": "beach trip"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = app.do(t, http.MethodPost, basePath+"/wallets", map[string]string{"name": "Other"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	update := map[string]interface{}{"id": 1, "name": "Ski fund", "description": "mountain trip"}
	resp = app.do(t, http.MethodPut, basePath+"/wallets", update)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	once := app.indexState(t)
	resp = app.do(t, http.MethodGet, basePath+"/wallets", nil)
	listOnce := decode[[]domain.Wallet](t, resp)

	resp = app.do(t, http.MethodPut, basePath+"/wallets", update)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = app.do(t, http.MethodGet, basePath+"/wallets", nil)

	assert.Equal(t, listOnce, decode[[]domain.Wallet](t, resp))
	assert.Equal(t, once, app.indexState(t))
	assert.NotContains(t, once, "wallet:term:name:holiday")
	assert.Empty(t, app.reindexer.Pending())
}

func TestIntegration_SearchLanguage(t *testing.T) {
	app := newTestApp(t)

	for _, w := range []map[string]string{
		{"name": "Main wallet", "description": "everyday spending"},
		{"name": "Savings", "description": "family savings account"},
		{"name": "Travel savings"},
	} {
		resp := app.do(t, http.MethodPost, basePath+"/wallets", w)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	tests := []struct {
		query string
		want  []int64
	}{
		{"", []int64{1, 2, 3}},
		{"savings", []int64{2, 3}},
		{"sav*", []int64{2, 3}},
		{"description:family", []int64{2}},
		{"savings -travel", []int64{2}},
		{"+wallet", []int64{1}},
		{"travel savings", []int64{3, 2}},
		{"savings AND family", []int64{2}},
		{"savings NOT travel", []int64{2}},
		{"savings AND NOT travel", []int64{2}},
		{"NOT savings", []int64{1}},
		{"main OR travel", []int64{1, 3}},
		{"wallet and", []int64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp := app.do(t, http.MethodGet, searchPath(tt.query), nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.want, ids(decode[[]domain.Wallet](t, resp)))
		})
	}

	resp := app.do(t, http.MethodGet, searchPath("owner:bob"), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = app.do(t, http.MethodGet, basePath+"/_search/wallets", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = app.do(t, http.MethodGet, searchPath("savings AND"), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIntegration_PartialCommitIsReconciled(t *testing.T) {
	app := newTestApp(t)

	app.index.down.Store(true)
	resp := app.do(t, http.MethodPost, basePath+"/wallets", map[string]string{"name": "Orphan"})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decode[map[string]interface{}](t, resp)
	assert.Equal(t, "SYS_004", body["error_code"])

	// The primary store kept the write; the index did not.
	resp = app.do(t, http.MethodGet, basePath+"/wallets/1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = app.do(t, http.MethodGet, searchPath("orphan"), nil)
	assert.Empty(t, decode[[]domain.Wallet](t, resp))
	assert.Equal(t, []int64{1}, app.reindexer.Pending())

	// A failed pass keeps the id pending.
	_, err := app.reindexer.ReconcileOnce(t.Context())
	assert.Error(t, err)
	assert.Equal(t, []int64{1}, app.reindexer.Pending())

	app.index.down.Store(false)
	n, err := app.reindexer.ReconcileOnce(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, app.reindexer.Pending())

	resp = app.do(t, http.MethodGet, searchPath("orphan"), nil)
	assert.Equal(t, []int64{1}, ids(decode[[]domain.Wallet](t, resp)))

	assert.Eventually(t, func() bool {
		entries := app.audit.all()
		return len(entries) == 1 && entries[0].Commit == domain.CommitPartial
	}, time.Second, 10*time.Millisecond)
}

func TestIntegration_ReindexEndpoint(t *testing.T) {
	app := newTestApp(t)

	for _, name := range []string{"One", "Two"} {
		resp := app.do(t, http.MethodPost, basePath+"/wallets", map[string]string{"name": name})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	app.redis.FlushAll()

	resp := app.do(t, http.MethodGet, searchPath("*"), nil)
	assert.Empty(t, decode[[]domain.Wallet](t, resp))

	resp = app.do(t, http.MethodPost, basePath+"/_reindex/wallets", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"indexed":2}`, string(raw))

	resp = app.do(t, http.MethodGet, searchPath("*"), nil)
	assert.Equal(t, []int64{1, 2}, ids(decode[[]domain.Wallet](t, resp)))
}

func TestIntegration_IdempotentCreate(t *testing.T) {
	app := newTestApp(t)

	first := app.do(t, http.MethodPost, basePath+"/wallets", map[string]string{"name": "Once"}, middleware.HeaderIdempotencyKey, "create-once")
	require.Equal(t, http.StatusCreated, first.StatusCode)
	second := app.do(t, http.MethodPost, basePath+"/wallets", map[string]string{"name": "Once"}, middleware.HeaderIdempotencyKey, "create-once")
	require.Equal(t, http.StatusCreated, second.StatusCode)

	assert.Equal(t, "true", second.Header.Get(middleware.HeaderIdempotentReplay))
	assert.Equal(t, first.Header.Get("Location"), second.Header.Get("Location"))

	reused := app.do(t, http.MethodPost, basePath+"/wallets", map[string]string{"name": "Twice"}, middleware.HeaderIdempotencyKey, "create-once")
	assert.Equal(t, http.StatusUnprocessableEntity, reused.StatusCode)

	resp := app.do(t, http.MethodGet, basePath+"/wallets", nil)
	assert.Len(t, decode[[]domain.Wallet](t, resp), 1)
}

func TestIntegration_Metrics(t *testing.T) {
	app := newTestApp(t)
	app.do(t, http.MethodGet, basePath+"/wallets", nil)

	resp, err := http.Get(app.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `route="/api/wallets"`)
}

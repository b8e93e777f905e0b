package database

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"house-price-workers/internal/common/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMigrateCommitsAllStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err = Migrate(context.Background(), db,
		"CREATE TABLE IF NOT EXISTS a (id int)",
		"CREATE INDEX IF NOT EXISTS b ON a (id)",
	)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err = Migrate(context.Background(), db, "CREATE TABLE IF NOT EXISTS a (id int)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration statement 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newESServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *ElasticsearchClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewElasticsearch(config.ElasticsearchConfig{URL: srv.URL})
	require.NoError(t, err)
	return client
}

func TestEnsureIndexSkipsExisting(t *testing.T) {
	var mu sync.Mutex
	var methods []string
	client := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.EnsureIndex(context.Background(), "house-valuations", `{}`))
	assert.Equal(t, []string{"HEAD /house-valuations"}, methods)
}

func TestEnsureIndexCreatesMissing(t *testing.T) {
	var mu sync.Mutex
	var methods []string
	client := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	})

	require.NoError(t, client.EnsureIndex(context.Background(), "house-valuations", `{"mappings":{}}`))
	assert.Equal(t, []string{"HEAD /house-valuations", "PUT /house-valuations"}, methods)
}

func TestEnsureIndexReportsServerError(t *testing.T) {
	client := newESServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := client.EnsureIndex(context.Background(), "house-valuations", `{}`)
	assert.Error(t, err)
}

func TestRedisPing(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()))

	mr.Close()
	assert.Error(t, client.Ping(context.Background()))
}

func TestRetry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", 3, time.Millisecond, zap.NewNop(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(context.Background(), "op", 2, time.Millisecond, zap.NewNop(), func(context.Context) error {
		calls++
		return errors.New("down")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op failed after 2 attempts")
	assert.Equal(t, 2, calls)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, "op", 5, time.Hour, zap.NewNop(), func(context.Context) error {
		return errors.New("down")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

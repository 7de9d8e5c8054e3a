package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readingattendance/readingd/internal/config"
	"github.com/readingattendance/readingd/internal/paystack"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "reading.db")
	return config.Config{
		Database: config.DatabaseConfig{
			Driver:       "sqlite",
			DSN:          fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_txlock=immediate", path),
			MaxOpenConns: 1,
		},
		TokenSecret:        "token-secret",
		TokenTTL:           time.Hour,
		Paystack:           config.PaystackConfig{SecretKey: "sk_test_123", BaseURL: "http://127.0.0.1:1"},
		PaymentCurrency:    "NGN",
		FirstUserFree:      true,
		MinSessionDuration: time.Hour,
		SessionRetention:   30 * 24 * time.Hour,
		Jobs: config.JobsConfig{
			SweepInterval:   time.Minute,
			RankInterval:    time.Hour,
			CleanupInterval: 24 * time.Hour,
		},
		Log:    config.LogConfig{Level: "error"},
		NodeID: 1,
	}
}

func staticConfig(cfg config.Config) configLoader {
	return func() (config.Config, error) { return cfg, nil }
}

func execute(t *testing.T, cfg config.Config, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd(staticConfig(cfg))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestIDSource(t *testing.T) {
	t.Parallel()

	ids, err := newIDSource(7)
	require.NoError(t, err)

	_, err = uuid.Parse(ids.entityID())
	assert.NoError(t, err)

	_, err = ksuid.Parse(ids.reference())
	assert.NoError(t, err)

	first, second := ids.eventID(), ids.eventID()
	assert.NotEqual(t, first, second)
	parsed, err := snowflake.ParseString(first)
	require.NoError(t, err)
	assert.EqualValues(t, 7, parsed.Node())

	_, err = newIDSource(2048)
	assert.Error(t, err)
}

func TestPaystackProvider(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"id":42,"status":"success","reference":"reading_tracker_abc","amount":50000,"currency":"NGN"}}`))
	}))
	t.Cleanup(server.Close)

	provider := paystackProvider{client: paystack.NewClient(paystack.Options{BaseURL: server.URL, SecretKey: "sk_test_123"})}

	txn, err := provider.VerifyTransaction(context.Background(), "reading_tracker_abc")
	require.NoError(t, err)
	assert.Equal(t, "success", txn.Status)
	assert.EqualValues(t, 50000, txn.Amount)
	assert.Equal(t, "42", txn.ID)

	txn, err = provider.VerifyTransaction(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, statusNotFound, txn.Status)
	assert.Equal(t, "missing", txn.Reference)
}

func TestMigrateCommand(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	_, err := execute(t, cfg, "migrate")
	require.NoError(t, err)

	_, err = execute(t, cfg, "migrate")
	require.NoError(t, err, "migrations are idempotent")
}

func TestRunJobCommand(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	for _, job := range []string{jobAutoComplete, jobRecomputeRanks, jobCleanupSessions} {
		out, err := execute(t, cfg, "run-job", job)
		require.NoError(t, err, job)
		assert.Equal(t, job+" finished\n", out)
	}

	_, err := execute(t, cfg, "run-job", "reticulate-splines")
	assert.Error(t, err)

	_, err = execute(t, cfg, "run-job")
	assert.Error(t, err)
}

func TestConfigErrorsStopCommands(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd(func() (config.Config, error) {
		return config.Config{}, fmt.Errorf("missing required environment variables: READING_TOKEN_SECRET")
	})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"migrate"})
	assert.ErrorContains(t, cmd.Execute(), "READING_TOKEN_SECRET")
}

func TestServe(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, testConfig(t), io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.migrate(ctx))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, listener, 5*time.Second) }()

	base := "http://" + listener.Addr().String()
	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(base+"/accounts", "application/json", strings.NewReader(`{"email":"first@example.com","password":"secret123"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `route="GET /healthz"`)
	assert.Contains(t, string(body), `route="POST /accounts"`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}

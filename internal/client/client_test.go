package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decentium/decentium-go/internal/metrics"
	"github.com/decentium/decentium-go/internal/models"
	"github.com/decentium/decentium-go/internal/query"
	"github.com/decentium/decentium-go/internal/retry"
)

const testBlock = `{
	"block_num": 59923115,
	"transactions": [
		{"status": "executed", "trx": "8c5b7a6f5b7e1f2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4"},
		{"status": "executed", "trx": {
			"id": "0ef9aa310e6e7efb7b10192dc80e5b09826c4369be6b1ba54990b8a66302500e",
			"transaction": {"actions": [
				{"account": "decentiumorg", "name": "post",
				 "authorization": [{"actor": "almstdigital", "permission": "active"}],
				 "data": {"author": "almstdigital", "title": "Hello World"}},
				{"account": "eosio.token", "name": "transfer",
				 "authorization": [{"actor": "almstdigital", "permission": "active"}],
				 "data": {"from": "almstdigital", "to": "decentiumorg", "quantity": "0.0001 EOS", "memo": ""}},
				{"account": "decentiumorg", "name": "endorse",
				 "authorization": [{"actor": "almstdigital", "permission": "active"}],
				 "data": "0a0b0c"}
			]}
		}}
	]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) (*Client, *metrics.Metrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.NodeURL = srv.URL
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Policy{MaxAttempts: 3, Delay: 10 * time.Millisecond}
	}
	m := metrics.New(nil)
	c, err := New(cfg, m, nil)
	require.NoError(t, err)
	return c, m
}

func TestNewRequiresNodeURL(t *testing.T) {
	_, err := New(Config{}, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{NodeURL: "http://localhost", RateLimit: -1}, nil, nil)
	assert.Error(t, err)
}

func TestRetryTransientFailures(t *testing.T) {
	var calls atomic.Int32
	delay := 20 * time.Millisecond
	c, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, `{"code":500,"message":"Internal Service Error"}`, http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `{"rows":[{"author":"almstdigital"}],"more":false}`)
	}, Config{Retry: retry.Policy{MaxAttempts: 3, Delay: delay}})

	start := time.Now()
	rows, err := c.GetTableRows(context.Background(), query.TableQuery{Code: "decentiumorg", Scope: "decentiumorg", Table: "blogs"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 2*delay)
	assert.Len(t, rows.Rows, 1)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RPCRetries.WithLabelValues("get_table_rows")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RPCRequests.WithLabelValues("get_table_rows", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RPCRequests.WithLabelValues("get_table_rows", "ok")))
}

func TestRetryExhausted(t *testing.T) {
	cases := []struct {
		name        string
		maxAttempts int
	}{
		{name: "single attempt", maxAttempts: 1},
		{name: "default attempts", maxAttempts: 3},
		{name: "five attempts", maxAttempts: 5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, "unknown block", http.StatusBadRequest)
			}, Config{Retry: retry.Policy{MaxAttempts: tc.maxAttempts, Delay: time.Millisecond}})

			_, err := c.GetBlock(context.Background(), 1)
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
			assert.Contains(t, apiErr.Body, "unknown block")

			time.Sleep(20 * time.Millisecond)
			assert.Equal(t, int32(tc.maxAttempts), calls.Load())
		})
	}
}

func TestGetBlock(t *testing.T) {
	var gotBody map[string]string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathGetBlock, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = io.WriteString(w, testBlock)
	}, Config{})

	block, err := c.GetBlock(context.Background(), 59923115)
	require.NoError(t, err)
	assert.Equal(t, "59923115", gotBody["block_num_or_id"])
	assert.Equal(t, uint32(59923115), block.Number)
	require.Len(t, block.Transactions, 2)

	pruned := block.Transactions[0]
	assert.Equal(t, "8c5b7a6f5b7e1f2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4", pruned.ID)
	assert.Empty(t, pruned.Actions)

	tx := block.Transactions[1]
	require.Len(t, tx.Actions, 3)
	assert.Equal(t, []models.PermissionLevel{{Actor: "almstdigital", Permission: "active"}}, tx.Actions[0].Authorization)
	post, ok := tx.Actions[0].Decoded()
	require.True(t, ok)
	assert.Equal(t, "Hello World", post["title"])
	assert.Equal(t, models.RawData{0x0a, 0x0b, 0x0c}, tx.Actions[2].Data)
}

func TestGetBlockWhitelist(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, testBlock)
	}, Config{Whitelist: []string{"decentiumorg"}})

	block, err := c.GetBlock(context.Background(), 59923115)
	require.NoError(t, err)

	tx, ok := block.Transaction("0ef9aa310e6e7efb7b10192dc80e5b09826c4369be6b1ba54990b8a66302500e")
	require.True(t, ok)
	require.Len(t, tx.Actions, 2)
	for _, a := range tx.Actions {
		assert.Equal(t, "decentiumorg", a.Account)
	}
}

func TestGetBlockMalformedData(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"odd length hex", `"abc"`},
		{"non hex string", `"zz"`},
		{"number", `42`},
		{"array", `[1,2]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = fmt.Fprintf(w, `{"block_num":5,"transactions":[{"trx":{"id":"a","transaction":{"actions":[
					{"account":"decentiumorg","name":"post","authorization":[],"data":{"title":"Hello World"}},
					{"account":"x","name":"y","authorization":[],"data":%s}
				]}}}]}`, tc.data)
			}, Config{})

			block, err := c.GetBlock(context.Background(), 5)
			require.NoError(t, err)
			require.Len(t, block.Transactions, 1)
			actions := block.Transactions[0].Actions
			require.Len(t, actions, 2)
			assert.Equal(t, models.DecodedData{"title": "Hello World"}, actions[0].Data)
			assert.Equal(t, "y", actions[1].Name)
			assert.Equal(t, models.DecodedData{}, actions[1].Data)
		})
	}
}

func TestGetTableRowsRequest(t *testing.T) {
	var got map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathGetTableRows, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"rows":[{"author":"a"},{"author":"b"}],"more":true}`)
	}, Config{})

	q, err := query.Trending("decentiumorg", nil, "decentium", 1)
	require.NoError(t, err)
	resp, err := c.GetTableRows(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, resp.More)

	assert.Equal(t, true, got["json"])
	assert.Equal(t, "trending", got["table"])
	assert.Equal(t, "i128", got["key_type"])
	assert.Equal(t, "3", got["index_position"])
	assert.Equal(t, "0x0000000000000000000090dae5a9904a", got["lower_bound"])

	type row struct {
		Author string `json:"author"`
	}
	rows, err := DecodeRows[row](resp.Rows)
	require.NoError(t, err)
	assert.Equal(t, []row{{Author: "a"}, {Author: "b"}}, rows)
}

func TestGetABI(t *testing.T) {
	cases := []struct {
		name     string
		response string
		wantNil  bool
	}{
		{name: "account with schema", response: `{"account_name":"decentiumorg","abi":{"version":"eosio::abi/1.1","actions":[{"name":"post","type":"post"}]}}`},
		{name: "account without schema", response: `{"account_name":"someaccount"}`, wantNil: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, pathGetABI, r.URL.Path)
				_, _ = io.WriteString(w, tc.response)
			}, Config{})

			got, err := c.GetABI(context.Background(), "decentiumorg")
			require.NoError(t, err)
			if tc.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, "post", got.Actions[0].Name)
		})
	}
}

func TestGetInfo(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathGetInfo, r.URL.Path)
		_, _ = io.WriteString(w, `{"chain_id":"aca376f2","head_block_num":300,"last_irreversible_block_num":280}`)
	}, Config{})

	info, err := c.GetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(300), info.HeadBlockNum)
	assert.Equal(t, uint32(280), info.LastIrreversibleBlockNum)
	assert.Zero(t, info.EarliestAvailableBlockNum)
}

func TestRateLimiterHonoursContext(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"head_block_num":1}`)
	}, Config{RateLimit: 0.001, RateBurst: 1, Retry: retry.Policy{MaxAttempts: 1}})

	_, err := c.GetInfo(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.GetInfo(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

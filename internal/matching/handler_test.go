package matching

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/ranking"
	apperrors "github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNotifier struct {
	reasons []string
	err     error
}

func (n *stubNotifier) Notify(_ context.Context, reason string) error {
	n.reasons = append(n.reasons, reason)
	return n.err
}

type fixture struct {
	server   *httptest.Server
	cache    *corpus.Cache
	notifier *stubNotifier
	agg      *analytics.Aggregator
}

func newFixture(t *testing.T, texts []string, rankers ...ranking.Ranker) *fixture {
	t.Helper()
	if len(rankers) == 0 {
		rankers = []ranking.Ranker{ranking.NewTFIDF(), ranking.NewBM25()}
	}
	cache := corpus.NewCache(corpus.StaticProvider(texts), 0, 42, nil)
	agg := analytics.NewAggregator(100)
	svc := NewService(ranking.NewRegistry(rankers...), cache, Options{TopK: 2, Tracker: agg})
	notifier := &stubNotifier{}

	checker := health.NewChecker()
	router := NewRouter(NewHandler(svc, cache, notifier), analytics.NewHandler(agg, nil), checker, RouterOptions{Timeout: 5 * time.Second})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &fixture{server: srv, cache: cache, notifier: notifier, agg: agg}
}

func (f *fixture) post(t *testing.T, path, body string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	resp, err := http.Post(f.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (f *fixture) get(t *testing.T, path string, dst any) *http.Response {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	return resp
}

func TestMatchEndpoint(t *testing.T) {
	f := newFixture(t, smallCorpus)
	resp, body := f.post(t, "/match/tfidf", `{"resume_text":"Experienced Python developer"}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.HeaderRequestID))

	var matches []ranking.NormalizedMatch
	require.NoError(t, json.Unmarshal(body["matches"], &matches))
	require.Len(t, matches, 2)
	assert.Equal(t, ranking.NormalizedMatch{Index: 0, Score: 1, Preview: smallCorpus[0]}, matches[0])
	assert.Equal(t, 2, matches[1].Index)

	var raw [][]any
	require.NoError(t, json.Unmarshal(body["matches"], &raw))
	assert.Len(t, raw[0], 3)

	var seconds float64
	require.NoError(t, json.Unmarshal(body["time"], &seconds))
	assert.GreaterOrEqual(t, seconds, 0.0)
	assert.Len(t, body, 2)
}

func TestMatchEndpointErrors(t *testing.T) {
	failing := &stubRanker{st: ranking.StrategyEmbedding, err: apperrors.ModelUnavailable("minilm", errors.New("oom"))}
	f := newFixture(t, smallCorpus, ranking.NewTFIDF(), failing)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		msg    string
	}{
		{"missing resume", "/match/tfidf", `{}`, http.StatusBadRequest, "resume_text is required"},
		{"empty resume", "/match/tfidf", `{"resume_text":""}`, http.StatusBadRequest, "resume_text is required"},
		{"blank resume", "/match/tfidf", `{"resume_text":"  "}`, http.StatusBadRequest, "resume_text is required"},
		{"bad json", "/match/tfidf", `{"resume_text":`, http.StatusBadRequest, "invalid JSON body"},
		{"unknown strategy", "/match/word2vec", `{"resume_text":"go"}`, http.StatusBadRequest, `invalid input: unknown strategy "word2vec"`},
		{"model down", "/match/bert", `{"resume_text":"go"}`, http.StatusServiceUnavailable, "model unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.post(t, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			var msg string
			require.NoError(t, json.Unmarshal(body["error"], &msg))
			assert.Equal(t, tt.msg, msg)
		})
	}
}

func TestMatchEndpointEmptyCorpus(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.post(t, "/match/bm25", `{"resume_text":"go"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `"job corpus is empty"`, string(body["error"]))
	assert.JSONEq(t, `"invalid_input"`, string(body["code"]))
}

func TestMatchEndpointWrongMethod(t *testing.T) {
	f := newFixture(t, smallCorpus)
	resp, err := http.Get(f.server.URL + "/match/tfidf")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStrategiesEndpoint(t *testing.T) {
	f := newFixture(t, smallCorpus)
	var out struct {
		Strategies []StrategyInfo `json:"strategies"`
		TopK       int            `json:"top_k"`
	}
	f.get(t, "/api/v1/strategies", &out)
	require.Len(t, out.Strategies, 2)
	assert.Equal(t, ranking.StrategyTFIDF, out.Strategies[0].ID)
	assert.Equal(t, []string{"tf-idf"}, out.Strategies[0].Aliases)
	assert.Equal(t, []string{}, out.Strategies[1].Aliases)
	assert.Equal(t, 2, out.TopK)
}

func TestCorpusEndpointsAndInvalidation(t *testing.T) {
	f := newFixture(t, smallCorpus)

	var info CorpusInfo
	f.get(t, "/api/v1/corpus", &info)
	assert.False(t, info.Loaded)

	resp, _ := f.post(t, "/match/bm25", `{"resume_text":"python"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f.get(t, "/api/v1/corpus", &info)
	assert.True(t, info.Loaded)
	assert.Equal(t, 3, info.Documents)
	assert.Equal(t, []string{"bm25"}, info.Artifacts)

	resp, body := f.post(t, "/api/v1/corpus/invalidate?reason=reindex", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `true`, string(body["notified"]))
	assert.Equal(t, []string{"reindex"}, f.notifier.reasons)
	assert.Nil(t, f.cache.Current())

	f.notifier.err = errors.New("broker down")
	_, body = f.post(t, "/api/v1/corpus/invalidate", "")
	assert.JSONEq(t, `false`, string(body["notified"]))
}

func TestExperienceEndpoint(t *testing.T) {
	f := newFixture(t, smallCorpus)
	resp, body := f.post(t, "/api/v1/experience", `{"text":"Doctor, 10 years of experience"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `10`, string(body["years"]))

	resp, _ = f.post(t, "/api/v1/experience", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyticsAndHealthRoutes(t *testing.T) {
	f := newFixture(t, smallCorpus)
	f.post(t, "/match/tfidf", `{"resume_text":"python"}`)
	f.post(t, "/match/tfidf", `{"resume_text":""}`)

	var stats analytics.AggregatedStats
	f.get(t, "/api/v1/analytics", &stats)
	assert.Equal(t, int64(2), stats.ByStrategy["tfidf"].Requests)
	assert.Equal(t, int64(1), stats.ByStrategy["tfidf"].Invalid)

	var report health.Report
	resp := f.get(t, "/health/ready", &report)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRPCRank(t *testing.T) {
	svc := newService(t, smallCorpus, Options{TopK: 2})
	server := rpc.NewServer()
	RegisterRPC(server, svc)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go server.ServeListener(ln)
	t.Cleanup(server.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := rpc.Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	var reply RankReply
	require.NoError(t, client.Call(ctx, MethodRank, RankParams{Strategy: "tfidf", ResumeText: "Experienced Python developer"}, &reply))
	assert.Equal(t, ranking.StrategyTFIDF, reply.Strategy)
	require.Len(t, reply.Matches, 2)
	assert.Equal(t, 0, reply.Matches[0].Index)
	assert.NotEmpty(t, reply.CorpusVersion)

	var strategies []ranking.Strategy
	require.NoError(t, client.Call(ctx, MethodStrategies, nil, &strategies))
	assert.Len(t, strategies, 4)

	err = client.Call(ctx, MethodRank, RankParams{Strategy: "tfidf"}, &reply)
	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, http.StatusBadRequest, rpcErr.Code)
	assert.Equal(t, "resume_text is required", rpcErr.Message)

	err = client.Call(ctx, MethodRank, RankParams{Strategy: "lda", ResumeText: "go"}, &reply)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, http.StatusBadRequest, rpcErr.Code)
}

package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(9), percentile(sorted, 90))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Zero(t, percentile(nil, 50))
}

func TestStatsReport(t *testing.T) {
	s := NewStats()
	s.RecordRequest(time.Millisecond, 200, &searchOutcome{TotalHits: 2, CacheHit: true}, nil)
	s.RecordRequest(2*time.Millisecond, 200, &searchOutcome{TotalHits: 0}, nil)
	s.RecordRequest(3*time.Millisecond, 400, nil, nil)
	s.RecordRequest(0, 0, nil, errors.New("refused"))

	var buf bytes.Buffer
	require.True(t, s.WriteReport(&buf, time.Second))
	out := buf.String()
	assert.Contains(t, out, "Total Requests:  4")
	assert.Contains(t, out, "Successful:      2")
	assert.Contains(t, out, "Errors:          2")
	assert.Contains(t, out, "Cache Hits:      1")
	assert.Contains(t, out, "Zero-hit Words:  1")
	assert.Contains(t, out, "  400: 1")

	assert.False(t, NewStats().WriteReport(&bytes.Buffer{}, time.Second))
}

func TestWordList(t *testing.T) {
	list, err := wordList(" fox, the ,,", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"fox", "the"}, list)

	p := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(p, []byte("whale\n\nsea\n"), 0o644))
	list, err = wordList("fox", p)
	require.NoError(t, err)
	assert.Equal(t, []string{"fox", "whale", "sea"}, list)

	list, err = wordList("", "")
	require.NoError(t, err)
	assert.Equal(t, defaultWords, list)
}

func TestSearchURL(t *testing.T) {
	assert.Equal(t, "http://h/api/v1/search?context=3&q=don%27t",
		searchURL("http://h", "don't", 3))
}

func TestRunLoadTest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("q") == "wolf" {
			w.Write([]byte(`{"total_hits":0,"cache_hit":false}`))
			return
		}
		w.Write([]byte(`{"total_hits":2,"cache_hit":true}`))
	}))
	defer srv.Close()

	stats := runLoadTest(Config{
		BaseURL:     srv.URL,
		Concurrency: 2,
		Duration:    100 * time.Millisecond,
		Context:     1,
		RPS:         200,
		Words:       []string{"fox", "wolf"},
	})
	assert.Positive(t, stats.totalRequests.Load())
	assert.Zero(t, stats.errorCount.Load())
	assert.Positive(t, stats.cacheHits.Load())
	assert.Positive(t, stats.zeroHits.Load())
}

package main

import (
	"bytes"
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	httpserver "github.com/fyrsmithlabs/agecompute/internal/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoadOptions() loadOptions {
	return loadOptions{
		count:      40,
		workers:    4,
		invalid:    0.5,
		maxRecords: 5,
		users:      []string{"john", "jane"},
		seed:       7,
	}
}

func TestRunLoad_CountsEveryRequest(t *testing.T) {
	ts, serverTel := newTestServer(t)
	c := newClient(ts.URL, nil, 5*time.Second)

	stats, err := runLoad(context.Background(), c, testLoadOptions(), &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, int64(40), stats.sent.Load())
	assert.Equal(t, int64(0), stats.failed.Load())
	assert.Equal(t, int64(40), stats.ok.Load()+stats.rejected.Load())
	assert.Positive(t, stats.rejected.Load())
	assert.Positive(t, stats.ok.Load())

	assert.Equal(t, int64(40), serverTel.CounterTotal(t, httpserver.RequestCountMetric))
	assert.Len(t, serverTel.SpansByName(httpserver.SpanName), 40)
	serverTel.AssertNoOpenSpans(t)
}

func TestRunLoad_StopsOnCancel(t *testing.T) {
	ts, _ := newTestServer(t)
	c := newClient(ts.URL, nil, 5*time.Second)

	opts := testLoadOptions()
	opts.count = 0
	opts.rate = 50

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	stats, err := runLoad(ctx, c, opts, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Positive(t, stats.sent.Load())
	assert.Less(t, stats.sent.Load(), int64(50))
}

func TestRunLoad_ConnectionFailuresReported(t *testing.T) {
	c := newClient("http://127.0.0.1:1", nil, time.Second)

	opts := testLoadOptions()
	opts.count = 3
	var progress bytes.Buffer

	stats, err := runLoad(context.Background(), c, opts, &progress)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.failed.Load())
	assert.Contains(t, progress.String(), "request failed")
}

func TestLoadOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*loadOptions)
		want   string
	}{
		{"negative rate", func(o *loadOptions) { o.rate = -1 }, "rate"},
		{"negative count", func(o *loadOptions) { o.count = -1 }, "count"},
		{"no workers", func(o *loadOptions) { o.workers = 0 }, "workers"},
		{"invalid above one", func(o *loadOptions) { o.invalid = 1.5 }, "invalid"},
		{"no records", func(o *loadOptions) { o.maxRecords = 0 }, "max-records"},
		{"no users", func(o *loadOptions) { o.users = nil }, "user"},
	}

	require.NoError(t, testLoadOptions().validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testLoadOptions()
			tt.modify(&opts)
			err := opts.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGenerator(t *testing.T) {
	opts := testLoadOptions()
	opts.invalid = 0
	gen := newGenerator(rand.New(rand.NewSource(1)), opts)

	for i := 0; i < 50; i++ {
		records, bag := gen.next()
		require.NotEmpty(t, records)
		assert.LessOrEqual(t, len(records), opts.maxRecords+1)
		assert.Contains(t, opts.users, bag.Member("user.name").Value())
		assert.True(t, strings.HasPrefix(bag.Member("user.id").Value(), "1234"))
	}
}

func TestLoadCommand(t *testing.T) {
	ts, _ := newTestServer(t)

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"load", "--server", ts.URL, "--count", "5", "--rate", "0", "--invalid", "0", "--seed", "3"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "sent=5 ok=5 rejected=0 failed=0\n", out.String())
}

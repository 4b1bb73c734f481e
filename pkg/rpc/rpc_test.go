package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoParams struct {
	Text string `json:"text"`
}

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer()
	s.Register("Echo.Wait", func(ctx context.Context, params json.RawMessage) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s.Register("Echo.Panic", func(ctx context.Context, params json.RawMessage) (any, error) {
		panic("boom")
	})
	s.Register("Echo.Upper", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p echoParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, apperrors.Invalid("bad params")
		}
		if p.Text == "" {
			return nil, apperrors.Invalid("text is required")
		}
		return echoParams{Text: p.Text + "!"}, nil
	})
	go s.ServeListener(ln)
	t.Cleanup(s.Stop)
	return s, ln.Addr().String()
}

func TestCallRoundTrip(t *testing.T) {
	s, addr := startServer(t)
	assert.Equal(t, 3, s.MethodCount())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr)
	require.NoError(t, err)
	defer c.Close()

	var out echoParams
	require.NoError(t, c.Call(ctx, "Echo.Upper", echoParams{Text: "go"}, &out))
	assert.Equal(t, "go!", out.Text)

	require.NoError(t, c.Call(ctx, "Echo.Upper", echoParams{Text: "again"}, &out))
	assert.Equal(t, "again!", out.Text)
}

func TestCallReportsErrorCode(t *testing.T) {
	_, addr := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr)
	require.NoError(t, err)
	defer c.Close()

	err = c.Call(ctx, "Echo.Upper", echoParams{}, nil)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 400, rpcErr.Code)
	assert.Equal(t, "invalid_input", rpcErr.Kind)
	assert.Equal(t, "text is required", rpcErr.Message)

	err = c.Call(ctx, "Echo.Missing", echoParams{}, nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 404, rpcErr.Code)
}

func dial(t *testing.T, addr string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConcurrentCallsShareConnection(t *testing.T) {
	_, addr := startServer(t)
	c := dial(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, 20)
	outs := make([]echoParams, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.Call(ctx, "Echo.Upper", echoParams{Text: fmt.Sprint(i)}, &outs[i])
		}()
	}
	wg.Wait()
	for i := range 20 {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("%d!", i), outs[i].Text)
	}
}

func TestDeadlineIsForwarded(t *testing.T) {
	_, addr := startServer(t)
	c := dial(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := c.Call(ctx, "Echo.Wait", nil, nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var out echoParams
	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	require.NoError(t, c.Call(ctx2, "Echo.Upper", echoParams{Text: "still up"}, &out))
}

func TestHandlerPanicIsInternalError(t *testing.T) {
	_, addr := startServer(t)
	c := dial(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := c.Call(ctx, "Echo.Panic", nil, nil)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 500, rpcErr.Code)
	assert.Equal(t, "internal", rpcErr.Kind)
}

func TestCallsFailAfterServerStops(t *testing.T) {
	s, addr := startServer(t)
	c := dial(t, addr)
	s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Eventually(t, func() bool {
		return errors.Is(c.Call(ctx, "Echo.Upper", echoParams{Text: "x"}, nil), ErrClosed)
	}, time.Second, 10*time.Millisecond)
}

func readResponse(t *testing.T, r *bufio.Reader) Response {
	t.Helper()
	line, err := r.ReadBytes('\n')
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	return resp
}

func TestMalformedLineGetsInvalidRequest(t *testing.T) {
	_, addr := startServer(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write([]byte("this is not json\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	resp := readResponse(t, r)
	assert.Equal(t, 400, resp.Status)
	assert.Equal(t, "invalid_request", resp.Kind)
	assert.Equal(t, "invalid request", resp.Error)

	_, err = r.ReadByte()
	assert.Error(t, err, "connection closes after a syntax error")
}

func TestMistypedRequestKeepsConnection(t *testing.T) {
	_, addr := startServer(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write([]byte(`{"id":"a","method":42}` + "\n"))
	require.NoError(t, err)
	r := bufio.NewReader(conn)
	resp := readResponse(t, r)
	assert.Equal(t, "a", resp.ID)
	assert.Equal(t, "invalid_request", resp.Kind)

	_, err = conn.Write([]byte(`{"id":"b","method":"Echo.Upper","params":{"text":"go"}}` + "\n"))
	require.NoError(t, err)
	resp = readResponse(t, r)
	assert.Equal(t, "b", resp.ID)
	assert.Empty(t, resp.Error)
	assert.JSONEq(t, `{"text":"go!"}`, string(resp.Data))
}

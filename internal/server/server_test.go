package server

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rs/zerolog"
)

func startTestServer(t *testing.T) string {
	srv := New(Config{
		Addr:         "127.0.0.1:0",
		PollInterval: 5 * time.Millisecond,
		ExpiryTick:   2 * time.Millisecond,
	}, zerolog.New(io.Discard))
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Shutdown)
	return srv.listener.Addr().String()
}

func dial(t *testing.T, addr string) net.Conn {
	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func readN(t *testing.T, r io.Reader, n int) string {
	buf := make([]byte, n)
	_, err := io.ReadFull(r, buf)
	require.NoError(t, err)
	return string(buf)
}

func TestPingPongRoundTrip(t *testing.T) {
	addr := startTestServer(t)
	c := dial(t, addr)

	_, err := c.Write([]byte("*1\r\n$4\r\nPING\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "+PONG\r\n", readN(t, c, len("+PONG\r\n")))
}

func TestSetGetOverTheWire(t *testing.T) {
	addr := startTestServer(t)
	c := dial(t, addr)

	_, err := c.Write([]byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "+OK\r\n", readN(t, c, len("+OK\r\n")))

	_, err = c.Write([]byte("*2\r\n$3\r\nGET\r\n$1\r\nk\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "$1\r\nv\r\n", readN(t, c, len("$1\r\nv\r\n")))
}

// TestPipelinedFragmentedRequest replays spec scenario 4: a SET followed by a
// GET, both split across three separate writes, each delivered to the
// connection as its own TCP segment. The server must reply exactly
// "+OK\r\n$1\r\nv\r\n" in order regardless of where the writes were split.
func TestPipelinedFragmentedRequest(t *testing.T) {
	addr := startTestServer(t)
	c := dial(t, addr)

	full := "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n*2\r\n$3\r\nGET\r\n$1\r\nk\r\n"
	chunks := []string{full[:10], full[10:25], full[25:]}
	for _, chunk := range chunks {
		_, err := c.Write([]byte(chunk))
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	want := "+OK\r\n$1\r\nv\r\n"
	assert.Equal(t, want, readN(t, c, len(want)))
}

func TestTransactionRunsQueuedCommandsAtomically(t *testing.T) {
	addr := startTestServer(t)
	c := dial(t, addr)
	r := bufio.NewReader(c)

	send := func(s string) {
		_, err := c.Write([]byte(s))
		require.NoError(t, err)
	}
	line := func() string {
		l, err := r.ReadString('\n')
		require.NoError(t, err)
		return l
	}

	send("*3\r\n$3\r\nSET\r\n$3\r\nctr\r\n$2\r\n10\r\n")
	assert.Equal(t, "+OK\r\n", line())

	send("*1\r\n$5\r\nMULTI\r\n")
	assert.Equal(t, "+OK\r\n", line())

	send("*2\r\n$4\r\nINCR\r\n$3\r\nctr\r\n")
	assert.Equal(t, "+QUEUED\r\n", line())

	send("*3\r\n$5\r\nLPUSH\r\n$3\r\nctr\r\n$1\r\nx\r\n")
	assert.Equal(t, "+QUEUED\r\n", line())

	send("*2\r\n$4\r\nINCR\r\n$3\r\nctr\r\n")
	assert.Equal(t, "+QUEUED\r\n", line())

	send("*1\r\n$4\r\nEXEC\r\n")
	assert.Equal(t, "*3\r\n", line())
	assert.Equal(t, ":11\r\n", line())
	assert.Contains(t, line(), "WRONGTYPE")
	assert.Equal(t, ":12\r\n", line())
}

// TestStreamRangeScenario replays spec scenario 5.
func TestStreamRangeScenario(t *testing.T) {
	addr := startTestServer(t)
	c := dial(t, addr)
	r := bufio.NewReader(c)

	send := func(s string) {
		_, err := c.Write([]byte(s))
		require.NoError(t, err)
	}
	readReply := func(n int) string {
		buf := make([]byte, n)
		_, err := io.ReadFull(r, buf)
		require.NoError(t, err)
		return string(buf)
	}

	send("*5\r\n$4\r\nXADD\r\n$1\r\ns\r\n$3\r\n1-0\r\n$1\r\na\r\n$1\r\n1\r\n")
	assert.Equal(t, "$3\r\n1-0\r\n", readReply(len("$3\r\n1-0\r\n")))

	send("*5\r\n$4\r\nXADD\r\n$1\r\ns\r\n$3\r\n2-0\r\n$1\r\na\r\n$1\r\n2\r\n")
	assert.Equal(t, "$3\r\n2-0\r\n", readReply(len("$3\r\n2-0\r\n")))

	send("*5\r\n$4\r\nXADD\r\n$1\r\ns\r\n$3\r\n1-5\r\n$1\r\na\r\n$1\r\n3\r\n")
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "smaller")

	send("*4\r\n$6\r\nXRANGE\r\n$1\r\ns\r\n$1\r\n-\r\n$1\r\n+\r\n")
	want := "*2\r\n" +
		"*2\r\n$3\r\n1-0\r\n*2\r\n$1\r\na\r\n$1\r\n1\r\n" +
		"*2\r\n$3\r\n2-0\r\n*2\r\n$1\r\na\r\n$1\r\n2\r\n"
	assert.Equal(t, want, readReply(len(want)))
}

// TestBLPOPCancelsWhenConnectionCloses guards against a blocked command's
// poll loop failing to notice the connection went away and spinning until
// its own timeout: a long-timeout BLPOP's connection is closed out from
// under it, and Shutdown (which force-closes every tracked connection) must
// still return promptly instead of blocking for the BLPOP's timeout.
func TestBLPOPCancelsWhenConnectionCloses(t *testing.T) {
	srv := New(Config{
		Addr:         "127.0.0.1:0",
		PollInterval: 5 * time.Millisecond,
		ExpiryTick:   2 * time.Millisecond,
	}, zerolog.New(io.Discard))
	require.NoError(t, srv.Start())
	addr := srv.listener.Addr().String()

	c := dial(t, addr)
	_, err := c.Write([]byte("*3\r\n$5\r\nBLPOP\r\n$1\r\nq\r\n$3\r\n600\r\n"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	c.Close()

	done := make(chan struct{})
	go func() {
		srv.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return promptly: a blocked poll loop failed to observe connection close")
	}
}

func TestCrossConnectionBLPOPWakesOnPush(t *testing.T) {
	addr := startTestServer(t)
	connA := dial(t, addr)
	connB := dial(t, addr)

	_, err := connA.Write([]byte("*3\r\n$5\r\nBLPOP\r\n$1\r\nq\r\n$1\r\n5\r\n"))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = connB.Write([]byte("*3\r\n$5\r\nRPUSH\r\n$1\r\nq\r\n$5\r\nhello\r\n"))
	require.NoError(t, err)
	want := ":1\r\n"
	assert.Equal(t, want, readN(t, connB, len(want)))

	wantA := "*2\r\n$1\r\nq\r\n$5\r\nhello\r\n"
	connA.SetReadDeadline(time.Now().Add(2 * time.Second))
	assert.Equal(t, wantA, readN(t, connA, len(wantA)))
}

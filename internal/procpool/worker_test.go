package procpool

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trashcan/internal/fsops"
)

// servePipe runs Serve in-process and returns the parent ends of the pipes
func servePipe(t *testing.T, d fsops.Deleter, threads int) (*json.Encoder, io.Closer, *json.Decoder, <-chan error) {
	t.Helper()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	done := make(chan error, 1)
	go func() {
		err := Serve(reqR, respW, d)
		respW.Close()
		done <- err
	}()

	enc := json.NewEncoder(reqW)
	dec := json.NewDecoder(respR)
	require.NoError(t, enc.Encode(Init{Protocol: protocolVersion, Threads: threads}))

	var ready Ready
	require.NoError(t, dec.Decode(&ready))
	require.True(t, ready.Ready)
	require.Equal(t, os.Getpid(), ready.PID)
	return enc, reqW, dec, done
}

func TestServeSynchronous(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	enc, stdin, dec, done := servePipe(t, fsops.OSDeleter{}, 0)

	// a synchronous worker answers before it reads the next request
	var first, second Response
	require.NoError(t, enc.Encode(Request{ID: "1", Path: []byte(file)}))
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, enc.Encode(Request{ID: "2", Path: []byte(filepath.Join(dir, "not.there"))}))
	require.NoError(t, dec.Decode(&second))

	assert.Equal(t, "1", first.ID)
	assert.Nil(t, first.Error)
	assert.Zero(t, first.Pools, "synchronous worker must not build a pool")

	assert.Equal(t, "2", second.ID)
	require.NotNil(t, second.Error)
	assert.True(t, errors.Is(second.Error.Err(), fs.ErrNotExist))

	require.NoError(t, stdin.Close())
	require.NoError(t, <-done)

	_, err := os.Lstat(file)
	assert.True(t, os.IsNotExist(err))
}

func TestServeNestedPoolCreatedOnce(t *testing.T) {
	fake := &fsops.FakeDeleter{}
	enc, stdin, dec, done := servePipe(t, fake, 4)

	const n = 40
	for i := 0; i < n; i++ {
		require.NoError(t, enc.Encode(Request{ID: fmt.Sprint(i), Path: []byte(fmt.Sprintf("/p/%d", i))}))
	}

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		var resp Response
		require.NoError(t, dec.Decode(&resp))
		assert.Nil(t, resp.Error)
		assert.Equal(t, 1, resp.Pools)
		seen[resp.ID] = true
	}
	assert.Len(t, seen, n)

	require.NoError(t, stdin.Close())
	require.NoError(t, <-done)
	assert.Len(t, fake.Calls(), n)
}

func TestServeAnswersQueuedRequestsAfterEOF(t *testing.T) {
	release := make(chan struct{})
	slow := fsops.DeleterFunc(func(string) error {
		<-release
		return nil
	})
	enc, stdin, dec, done := servePipe(t, slow, 2)

	for i := 0; i < 5; i++ {
		require.NoError(t, enc.Encode(Request{ID: fmt.Sprint(i), Path: []byte("/slow")}))
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	require.NoError(t, stdin.Close())

	for i := 0; i < 5; i++ {
		var resp Response
		require.NoError(t, dec.Decode(&resp))
	}
	require.NoError(t, <-done)
}

func TestServeRejectsBadProtocol(t *testing.T) {
	r, w := io.Pipe()
	go func() {
		_ = json.NewEncoder(w).Encode(Init{Protocol: 99})
		w.Close()
	}()
	err := Serve(r, io.Discard, &fsops.FakeDeleter{})
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestThreadPoolLazyInitIsSafe(t *testing.T) {
	s := &server{threads: 2, deleter: &fsops.FakeDeleter{}}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.threadPool()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), s.poolsCreated.Load())
	require.NoError(t, s.pool.Shutdown())
}

package resource

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(context.Background(), 50))
	require.NoError(t, c.AcquireMemory(context.Background(), 40))
	assert.Equal(t, int64(90), c.MemoryUsage())

	assert.False(t, c.TryAcquireMemory(20))
	assert.Equal(t, int64(90), c.MemoryUsage())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireMemory(ctx, 20), context.DeadlineExceeded)

	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())

	require.NoError(t, c.AcquireMemory(context.Background(), 20))
	assert.Equal(t, int64(60), c.MemoryUsage())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireMemory(context.Background(), 1000))
	assert.Equal(t, int64(1000), c.MemoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())
}

func TestController_Workers(t *testing.T) {
	c := NewController(Config{MaxWorkers: 2})
	assert.Equal(t, 2, c.MaxWorkers())

	require.NoError(t, c.AcquireWorker(context.Background()))
	require.NoError(t, c.AcquireWorker(context.Background()))
	assert.False(t, c.TryAcquireWorker())

	c.ReleaseWorker()
	assert.True(t, c.TryAcquireWorker())
}

func TestController_DefaultWorkers(t *testing.T) {
	c := NewController(Config{})
	assert.Positive(t, c.MaxWorkers())
}

func TestNilController(t *testing.T) {
	var c *Controller

	assert.NoError(t, c.AcquireWorker(context.Background()))
	assert.True(t, c.TryAcquireWorker())
	c.ReleaseWorker()

	assert.NoError(t, c.AcquireMemory(context.Background(), 1<<40))
	assert.True(t, c.TryAcquireMemory(1<<40))
	c.ReleaseMemory(1 << 40)
	assert.Zero(t, c.MemoryUsage())

	assert.NoError(t, c.AcquireIO(context.Background(), 1<<30))
	assert.Positive(t, c.MaxWorkers())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.AcquireWorker(ctx), context.Canceled)
}

func TestWriterSplitsLargeWrites(t *testing.T) {
	// burst of 1 MiB; the first second is free
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	var dst bytes.Buffer
	w := NewWriter(context.Background(), &dst, c)
	data := bytes.Repeat([]byte{7}, 1<<19)
	n, err := w.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, dst.Bytes())
}

func TestWriterHonorsContext(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 16})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	w := NewWriter(ctx, io.Discard, c)
	// 16 bytes pass on the initial burst, the rest must wait seconds
	_, err := w.Write(make([]byte, 64))
	assert.Error(t, err)
}

func TestReaderUnlimited(t *testing.T) {
	r := NewReader(context.Background(), strings.NewReader("keyframes"), nil)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "keyframes", string(got))
}

func TestReaderLimited(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})
	r := NewReader(context.Background(), bytes.NewReader(make([]byte, 4096)), c)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, got, 4096)
}

package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
)

type fakeSession struct {
	closed atomic.Int32
}

func (f *fakeSession) Navigate(context.Context, string) error   { return nil }
func (f *fakeSession) Location(context.Context) (string, error) { return "about:blank", nil }
func (f *fakeSession) Reload(context.Context) error             { return nil }
func (f *fakeSession) Click(context.Context, string) error      { return nil }
func (f *fakeSession) ClearCookies(context.Context) error       { return nil }
func (f *fakeSession) CaptureViewport(context.Context) ([]byte, error) {
	return nil, nil
}
func (f *fakeSession) WaitFor(context.Context, string, time.Duration) ([]interfaces.Element, error) {
	return nil, ErrWaitTimeout
}
func (f *fakeSession) Find(context.Context, string) (interfaces.Element, bool, error) {
	return nil, false, nil
}
func (f *fakeSession) Cookies(context.Context) ([]models.CookieRecord, error) {
	return nil, nil
}
func (f *fakeSession) AddCookie(context.Context, models.CookieRecord) error { return nil }
func (f *fakeSession) Close() error {
	f.closed.Add(1)
	return nil
}

type fakeFactory struct {
	mu       sync.Mutex
	created  []*fakeSession
	failFrom int // 1-based index of the first creation that fails; 0 disables
}

func (f *fakeFactory) NewSession(context.Context) (interfaces.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFrom > 0 && len(f.created)+1 >= f.failFrom {
		return nil, errors.New("browser refused to start")
	}
	s := &fakeSession{}
	f.created = append(f.created, s)
	return s, nil
}

func (f *fakeFactory) NewInteractiveSession(ctx context.Context) (interfaces.Session, error) {
	return f.NewSession(ctx)
}

func TestSessionPool_EagerCreation(t *testing.T) {
	factory := &fakeFactory{}

	pool, err := NewSessionPool(context.Background(), factory, 3, common.GetLogger())
	require.NoError(t, err)
	defer pool.Cleanup()

	assert.Len(t, factory.created, 3, "all sessions are created at startup")
	assert.Equal(t, 3, pool.Size())
}

func TestSessionPool_FailFastTearsDownPartialPool(t *testing.T) {
	factory := &fakeFactory{failFrom: 3}

	_, err := NewSessionPool(context.Background(), factory, 3, common.GetLogger())
	require.Error(t, err)

	require.Len(t, factory.created, 2)
	for _, s := range factory.created {
		assert.Equal(t, int32(1), s.closed.Load(), "partial pool sessions must be closed")
	}
}

func TestSessionPool_AcquireBlocksUntilRelease(t *testing.T) {
	factory := &fakeFactory{}
	pool, err := NewSessionPool(context.Background(), factory, 1, common.GetLogger())
	require.NoError(t, err)
	defer pool.Cleanup()

	first, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	// With the only session out, a second Acquire must block
	blockedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(blockedCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	pool.Release(first)

	got, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, got)
	pool.Release(got)
}

func TestSessionPool_ConcurrencyNeverExceedsPoolSize(t *testing.T) {
	const poolSize = 2
	const tasks = 6

	factory := &fakeFactory{}
	pool, err := NewSessionPool(context.Background(), factory, poolSize, common.GetLogger())
	require.NoError(t, err)
	defer pool.Cleanup()

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := pool.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			pool.Release(s)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(poolSize))
	assert.Positive(t, peak.Load())
}

func TestSessionPool_CleanupIdempotent(t *testing.T) {
	factory := &fakeFactory{}
	pool, err := NewSessionPool(context.Background(), factory, 2, common.GetLogger())
	require.NoError(t, err)

	pool.Cleanup()
	pool.Cleanup()

	for _, s := range factory.created {
		assert.Equal(t, int32(1), s.closed.Load(), "each session closes exactly once")
	}
}

package bookdb

import (
	"encoding/json"
	"errors"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"orderbookdb/internal/core/infosub"
	"orderbookdb/internal/core/model"
)

// recorder 记录投递内容的 Sink
type recorder struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (r *recorder) Send(payload json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, string(payload))
	return nil
}

func (r *recorder) received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func TestMakeBookListeners_ReturnsSameEntry(t *testing.T) {
	db := New(zap.NewNop())
	key := issuedKey(usd, gateway, eur, bitstamp)

	a := db.MakeBookListeners(key)
	b := db.MakeBookListeners(key)
	assert.Same(t, a, b)
	assert.Same(t, a, db.GetBookListeners(key))
	assert.Equal(t, key, a.Key())
}

func TestMakeBookListeners_Concurrent(t *testing.T) {
	db := New(zap.NewNop())
	key := nativeKey(usd, gateway)

	const n = 32
	got := make([]*BookListeners, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = db.MakeBookListeners(key)
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, got[0], got[i])
	}
}

func TestGetBookListeners_DoesNotCreate(t *testing.T) {
	db := New(zap.NewNop())
	key := nativeKey(eur, bitstamp)

	assert.Nil(t, db.GetBookListeners(key))
	assert.Nil(t, db.GetBookListeners(key))
}

func TestBookListeners_SurviveRebuild(t *testing.T) {
	db := New(zap.NewNop())
	key := nativeKey(usd, gateway)
	l := db.MakeBookListeners(key)

	require.True(t, db.Setup(newSnapshot(1)))
	db.Invalidate()
	require.True(t, db.Setup(newSnapshot(2)))

	assert.Same(t, l, db.GetBookListeners(key))
}

func TestPublish_DeliversToLiveSubscribers(t *testing.T) {
	db := New(zap.NewNop())
	l := db.MakeBookListeners(nativeKey(usd, gateway))

	r1, r2 := &recorder{}, &recorder{}
	s1, s2 := infosub.New(r1), infosub.New(r2)
	l.AddSubscriber(s1)
	l.AddSubscriber(s2)

	delivered, pruned := l.Publish(json.RawMessage(`{"n":1}`))
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 0, pruned)
	assert.Equal(t, []string{`{"n":1}`}, r1.received())
	assert.Equal(t, []string{`{"n":1}`}, r2.received())
	runtime.KeepAlive(s1)
	runtime.KeepAlive(s2)
}

func TestPublish_PrunesClosedSubscribers(t *testing.T) {
	db := New(zap.NewNop())
	l := db.MakeBookListeners(nativeKey(usd, gateway))

	live, dead := &recorder{}, &recorder{}
	s1, s2 := infosub.New(live), infosub.New(dead)
	l.AddSubscriber(s1)
	l.AddSubscriber(s2)
	require.Equal(t, 2, l.Len())

	s2.Close()
	delivered, pruned := l.Publish(json.RawMessage(`"a"`))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, pruned)
	assert.Equal(t, 1, l.Len())
	assert.Empty(t, dead.received())

	// 后续发布不再尝试已清理的订阅者
	delivered, pruned = l.Publish(json.RawMessage(`"b"`))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 0, pruned)
	assert.Equal(t, []string{`"a"`, `"b"`}, live.received())
	runtime.KeepAlive(s1)
}

func TestPublish_KeepsSubscriberOnSendError(t *testing.T) {
	db := New(zap.NewNop())
	l := db.MakeBookListeners(nativeKey(usd, gateway))

	r := &recorder{err: errors.New("缓冲区已满")}
	s := infosub.New(r)
	l.AddSubscriber(s)

	delivered, pruned := l.Publish(json.RawMessage(`1`))
	assert.Equal(t, 0, delivered, "投递失败不计入成功")
	assert.Equal(t, 0, pruned)
	assert.Equal(t, 1, l.Len())

	// 恢复后继续投递
	r.mu.Lock()
	r.err = nil
	r.mu.Unlock()
	delivered, _ = l.Publish(json.RawMessage(`2`))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, []string{`2`}, r.received())
	runtime.KeepAlive(s)
}

// addUnreferenced 注册一个之后不再被持有的订阅者
//
//go:noinline
func addUnreferenced(l *BookListeners) {
	l.AddSubscriber(infosub.New(&recorder{}))
}

func TestPublish_PrunesCollectedSubscribers(t *testing.T) {
	db := New(zap.NewNop())
	l := db.MakeBookListeners(nativeKey(usd, gateway))

	live := &recorder{}
	s := infosub.New(live)
	l.AddSubscriber(s)
	addUnreferenced(l)
	require.Equal(t, 2, l.Len())

	for i := 0; i < 10; i++ {
		runtime.GC()
	}

	delivered, pruned := l.Publish(json.RawMessage(`"gc"`))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, pruned)
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, []string{`"gc"`}, live.received())
	runtime.KeepAlive(s)
}

func TestRemoveSubscriber(t *testing.T) {
	db := New(zap.NewNop())
	l := db.MakeBookListeners(issuedKey(usd, gateway, model.NativeCurrency, model.NoAccount))

	r := &recorder{}
	s := infosub.New(r)
	l.AddSubscriber(s)
	l.RemoveSubscriber(s.Seq())
	l.RemoveSubscriber(s.Seq())
	l.RemoveSubscriber(12345)

	delivered, _ := l.Publish(json.RawMessage(`1`))
	assert.Equal(t, 0, delivered)
	assert.Empty(t, r.received())
	assert.Equal(t, 0, l.Len())
}

func TestAddSubscriber_SameSeqReplaces(t *testing.T) {
	db := New(zap.NewNop())
	l := db.MakeBookListeners(nativeKey(usd, gateway))

	old, cur := &recorder{}, &recorder{}
	l.AddSubscriber(infosub.NewWithSeq(42, old))
	s := infosub.NewWithSeq(42, cur)
	l.AddSubscriber(s)

	assert.Equal(t, 1, l.Len())
	l.Publish(json.RawMessage(`1`))
	assert.Empty(t, old.received())
	assert.Equal(t, []string{`1`}, cur.received())
	runtime.KeepAlive(s)
}

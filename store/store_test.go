package store_test

import (
	"sync"
	"testing"
	"time"

	"github.com/aacfactory/sharedcache/channel"
	"github.com/aacfactory/sharedcache/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniqueName(t *testing.T) string {
	return t.Name() + "-" + time.Now().Format("150405.000000000")
}

func TestSetThenGetSameHandle(t *testing.T) {
	s := store.New(uniqueName(t))
	defer s.Close()

	ok := s.Set("greeting", "hello")
	require.True(t, ok)

	v, found := s.Get("greeting")
	require.True(t, found)
	assert.Equal(t, "hello", v)
}

func TestGetUnknownKeyIsAbsent(t *testing.T) {
	s := store.New(uniqueName(t))
	defer s.Close()

	_, found := s.Get("nope")
	assert.False(t, found)
}

func TestSetRejectsEmptyAndOversizedKeys(t *testing.T) {
	s := store.New(uniqueName(t))
	defer s.Close()

	assert.False(t, s.Set("", "v"))

	big := make([]byte, store.MaxKeyLength+1)
	for i := range big {
		big[i] = 'a'
	}
	assert.False(t, s.Set(string(big), "v"))
}

func TestSetPropagatesToOtherHandleOnSameName(t *testing.T) {
	name := uniqueName(t)
	a := store.New(name)
	defer a.Close()
	b := store.New(name)
	defer b.Close()

	require.True(t, a.Set("k", "v1"))

	require.Eventually(t, func() bool {
		v, found := b.Get("k")
		return found && v == "v1"
	}, time.Second, 5*time.Millisecond)
}

func TestLateJoinerAdoptsExistingBindings(t *testing.T) {
	name := uniqueName(t)
	a := store.New(name)
	defer a.Close()

	require.True(t, a.Set("existing", "already-here"))
	time.Sleep(20 * time.Millisecond)

	b := store.New(name) // New blocks through its own handshake window.
	defer b.Close()

	v, found := b.Get("existing")
	require.True(t, found)
	assert.Equal(t, "already-here", v)
}

func TestInPlaceReuseDoesNotRebroadcastSet(t *testing.T) {
	name := uniqueName(t)
	a := store.New(name)
	defer a.Close()

	require.True(t, a.Set("counter", "same-length-0"))
	time.Sleep(20 * time.Millisecond)

	var mu sync.Mutex
	setMessages := 0
	bus := channel.Get(name)
	unsubscribe := bus.Subscribe(channel.NewOrigin(), func(msg channel.Message) {
		if msg.Action == channel.ActionSet {
			mu.Lock()
			setMessages++
			mu.Unlock()
		}
	})
	defer unsubscribe()

	require.True(t, a.Set("counter", "same-length-1"))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, setMessages, "reusing an existing DataRegion in place must not publish a new set message")
}

func TestSetWithImmutableForcesReallocationAndBroadcast(t *testing.T) {
	name := uniqueName(t)
	a := store.New(name)
	defer a.Close()

	require.True(t, a.Set("k", "v0"))
	time.Sleep(20 * time.Millisecond)

	var mu sync.Mutex
	setMessages := 0
	bus := channel.Get(name)
	unsubscribe := bus.Subscribe(channel.NewOrigin(), func(msg channel.Message) {
		if msg.Action == channel.ActionSet {
			mu.Lock()
			setMessages++
			mu.Unlock()
		}
	})
	defer unsubscribe()

	require.True(t, a.Set("k", "v1", store.WithImmutable()))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, setMessages)
}

func TestDeleteRemovesBindingAndPropagates(t *testing.T) {
	name := uniqueName(t)
	a := store.New(name)
	defer a.Close()
	b := store.New(name)
	defer b.Close()

	require.True(t, a.Set("doomed", "v"))
	require.Eventually(t, func() bool {
		_, found := b.Get("doomed")
		return found
	}, time.Second, 5*time.Millisecond)

	require.True(t, a.Delete("doomed"))
	_, found := a.Get("doomed")
	assert.False(t, found)

	require.Eventually(t, func() bool {
		_, found := b.Get("doomed")
		return !found
	}, time.Second, 5*time.Millisecond)
}

func TestDeleteUnknownKeyFails(t *testing.T) {
	s := store.New(uniqueName(t))
	defer s.Close()
	assert.False(t, s.Delete("never-set"))
}

func TestDeletePatternRemovesMatchingKeysOnly(t *testing.T) {
	s := store.New(uniqueName(t))
	defer s.Close()

	require.True(t, s.Set("user:1", "a"))
	require.True(t, s.Set("user:2", "b"))
	require.True(t, s.Set("order:1", "c"))

	ok := s.Delete("user:*")
	require.True(t, ok)

	_, found1 := s.Get("user:1")
	_, found2 := s.Get("user:2")
	_, found3 := s.Get("order:1")
	assert.False(t, found1)
	assert.False(t, found2)
	assert.True(t, found3)
}

func TestListKeysWithAndWithoutPattern(t *testing.T) {
	s := store.New(uniqueName(t))
	defer s.Close()

	require.True(t, s.Set("a:1", 1))
	require.True(t, s.Set("a:2", 2))
	require.True(t, s.Set("b:1", 3))

	all := s.ListKeys()
	assert.Len(t, all, 3)

	aOnly := s.ListKeys("a:*")
	assert.Len(t, aOnly, 2)
}

func TestLockBlocksConcurrentSetUntilReleased(t *testing.T) {
	s := store.New(uniqueName(t))
	defer s.Close()

	require.True(t, s.Set("shared", "v0"))
	require.True(t, s.Lock("shared"))

	done := make(chan bool, 1)
	go func() {
		done <- s.Set("shared", "v1")
	}()

	select {
	case <-done:
		t.Fatal("Set proceeded while the key's exclusive lock was held externally")
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, s.Release("shared"))

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Set did not complete after the lock was released")
	}
}

func TestSetWithSkipLockBypassesExternalLock(t *testing.T) {
	s := store.New(uniqueName(t))
	defer s.Close()

	require.True(t, s.Set("shared", "v0"))
	require.True(t, s.Lock("shared"))
	defer s.Release("shared")

	assert.True(t, s.Set("shared", "v1", store.WithSkipLock()))
}

func TestLockOnUnknownKeyFails(t *testing.T) {
	s := store.New(uniqueName(t))
	defer s.Close()
	assert.False(t, s.Lock("absent"))
}

func TestClearWipesBindingsAndPropagates(t *testing.T) {
	name := uniqueName(t)
	a := store.New(name)
	defer a.Close()
	b := store.New(name)
	defer b.Close()

	require.True(t, a.Set("x", "1"))
	require.Eventually(t, func() bool {
		_, found := b.Get("x")
		return found
	}, time.Second, 5*time.Millisecond)

	a.Clear()
	_, found := a.Get("x")
	assert.False(t, found)

	require.Eventually(t, func() bool {
		_, found := b.Get("x")
		return !found
	}, time.Second, 5*time.Millisecond)
}

func TestTTLSetPropagatesExpiryToOtherHandles(t *testing.T) {
	name := uniqueName(t)
	a := store.New(name)
	defer a.Close()
	b := store.New(name)
	defer b.Close()

	require.True(t, a.Set("session", "tok", store.WithTTL(50*time.Millisecond)))
	require.Eventually(t, func() bool {
		_, found := b.Get("session")
		return found
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, found := b.Get("session")
		return !found
	}, 3*time.Second, 20*time.Millisecond)
}

func TestCloseDoesNotBlockAndIsIdempotent(t *testing.T) {
	name := uniqueName(t)
	a := store.New(name)
	b := store.New(name)

	require.True(t, a.Set("before-close", "v"))
	require.Eventually(t, func() bool {
		_, found := b.Get("before-close")
		return found
	}, time.Second, 5*time.Millisecond)

	b.Close()
	a.Close()
	// Close must not panic or block, and a second Close must be a no-op.
	b.Close()
}

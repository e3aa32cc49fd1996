package membership_test

import (
	"testing"
	"time"

	"github.com/aacfactory/sharedcache/channel"
	"github.com/aacfactory/sharedcache/membership"
	"github.com/aacfactory/sharedcache/region"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdopter struct {
	storeLock  *region.Region
	keys       []channel.KeyState
	adopted    chan struct{}
	adoptedLk  *region.Region
	adoptedKey []channel.KeyState
}

func newFakeAdopter() *fakeAdopter {
	return &fakeAdopter{storeLock: region.New(8), adopted: make(chan struct{}, 1)}
}

func (f *fakeAdopter) Snapshot() (*region.Region, []channel.KeyState) {
	return f.storeLock, f.keys
}

func (f *fakeAdopter) Adopt(storeLock *region.Region, keys []channel.KeyState) {
	f.adoptedLk = storeLock
	f.adoptedKey = keys
	select {
	case f.adopted <- struct{}{}:
	default:
	}
}

func TestOlderPeerDonatesToNewcomer(t *testing.T) {
	bus := channel.Get(t.Name())

	olderAdopter := newFakeAdopter()
	olderAdopter.keys = []channel.KeyState{{Key: "x"}}
	olderOrigin := channel.NewOrigin()
	older := membership.New(bus, olderOrigin, time.Unix(0, 1000), olderAdopter)
	unsubOlder := bus.Subscribe(olderOrigin, older.HandleMessage)
	defer unsubOlder()

	newerAdopter := newFakeAdopter()
	newerOrigin := channel.NewOrigin()
	newer := membership.New(bus, newerOrigin, time.Unix(0, 2000), newerAdopter)
	unsubNewer := bus.Subscribe(newerOrigin, newer.HandleMessage)
	defer unsubNewer()

	newer.Announce()

	select {
	case <-newerAdopter.adopted:
	case <-time.After(time.Second):
		require.Fail(t, "newcomer never adopted the older peer's state")
	}
	assert.Same(t, olderAdopter.storeLock, newerAdopter.adoptedLk)
	assert.Equal(t, []channel.KeyState{{Key: "x"}}, newerAdopter.adoptedKey)
	assert.Equal(t, int64(1000), newer.InitTimestamp())
}

func TestYoungerPeerDoesNotDonate(t *testing.T) {
	bus := channel.Get(t.Name())

	youngerAdopter := newFakeAdopter()
	youngerOrigin := channel.NewOrigin()
	younger := membership.New(bus, youngerOrigin, time.Unix(0, 5000), youngerAdopter)
	unsubYounger := bus.Subscribe(youngerOrigin, younger.HandleMessage)
	defer unsubYounger()

	requesterAdopter := newFakeAdopter()
	requesterOrigin := channel.NewOrigin()
	requester := membership.New(bus, requesterOrigin, time.Unix(0, 1000), requesterAdopter)
	unsubRequester := bus.Subscribe(requesterOrigin, requester.HandleMessage)
	defer unsubRequester()

	requester.Announce()

	select {
	case <-requesterAdopter.adopted:
		require.Fail(t, "a younger peer must not be adopted as a donor")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestAdoptionIsIdempotentUnderDuplicateResponses(t *testing.T) {
	bus := channel.Get(t.Name())
	adopter := newFakeAdopter()
	origin := channel.NewOrigin()
	m := membership.New(bus, origin, time.Unix(0, 9000), adopter)

	msg := channel.Message{Action: channel.ActionInitializeResponse, Timestamp: 100, StoreLock: region.New(8)}
	m.HandleMessage(msg)
	assert.EqualValues(t, 100, m.InitTimestamp())
	m.HandleMessage(msg) // duplicate, same timestamp: must not re-trigger adoption semantics
	assert.EqualValues(t, 100, m.InitTimestamp())

	older := channel.Message{Action: channel.ActionInitializeResponse, Timestamp: 50, StoreLock: region.New(8)}
	m.HandleMessage(older)
	assert.EqualValues(t, 50, m.InitTimestamp())
}

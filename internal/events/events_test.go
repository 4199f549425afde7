package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)

	bus.Publish(KindActiveBinChanged, ActiveBinChanged{NewBin: 100})

	select {
	case e := <-a:
		require.Equal(t, KindActiveBinChanged, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("subscriber a got nothing")
	}
	select {
	case e := <-b:
		require.Equal(t, KindActiveBinChanged, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("subscriber b got nothing")
	}
}

func TestBusDropsOnFullBuffer(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(1)
	bus.Publish(KindHarvestNeeded, HarvestNeeded{})
	bus.Publish(KindHarvestNeeded, HarvestNeeded{}) // dropped, buffer full

	require.Len(t, sub, 1)
}

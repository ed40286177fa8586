package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRooms(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		clientID string
		expected []string
	}{
		{"user and client", "u1", "cl1", []string{"u1", "cl1", RoomInventory, RoomTransactions, RoomMasters}},
		{"master admin without client", "u1", "", []string{"u1", RoomInventory, RoomTransactions, RoomMasters}},
		{"anonymous", "", "", []string{RoomInventory, RoomTransactions, RoomMasters}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rooms(tt.userID, tt.clientID)
			if len(got) != len(tt.expected) {
				t.Fatalf("Rooms() = %v, expected %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("Rooms()[%d] = %s, expected %s", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestDispatcher(t *testing.T) {
	d := NewDispatcher()

	var sales, anyCount int
	d.On(func(Message) { sales++ }, EventSalesUpdate, EventReceiptUpdate)
	d.OnAny(func(Message) { anyCount++ })

	if !d.Dispatch(Message{Event: EventSalesUpdate}) {
		t.Error("Dispatch() = false for handled event")
	}
	d.Dispatch(Message{Event: EventReceiptUpdate})
	if d.Dispatch(Message{Event: EventProductUpdate}) {
		t.Error("Dispatch() = true for unhandled event")
	}

	if sales != 2 {
		t.Errorf("sales handler ran %d times, expected 2", sales)
	}
	if anyCount != 3 {
		t.Errorf("catch-all handler ran %d times, expected 3", anyCount)
	}
}

type countingRefresher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error
}

func (r *countingRefresher) Refresh(ctx context.Context) error {
	r.calls.Add(1)
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.release != nil {
		<-r.release
	}
	return r.err
}

func TestInvalidatorCoalescesBursts(t *testing.T) {
	target := &countingRefresher{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	inv := NewInvalidator(target, nil)

	var wg sync.WaitGroup
	refreshed := make(chan error, 4)
	inv.OnRefresh = func(err error) { refreshed <- err }

	d := NewDispatcher()
	inv.Bind(d)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg.Add(1)
	go func() {
		defer wg.Done()
		inv.Run(ctx)
	}()

	d.Dispatch(Message{Event: EventSalesUpdate})
	<-target.started

	// these arrive while the first refresh runs and collapse into one
	d.Dispatch(Message{Event: EventPaymentUpdate})
	d.Dispatch(Message{Event: EventReceiptUpdate})
	d.Dispatch(Message{Event: EventPurchaseUpdate})
	// not a ledger event
	d.Dispatch(Message{Event: EventProductUpdate})

	close(target.release)
	for i := 0; i < 2; i++ {
		select {
		case <-refreshed:
		case <-time.After(2 * time.Second):
			t.Fatal("refresh did not run")
		}
	}

	cancel()
	wg.Wait()

	if got := target.calls.Load(); got != 2 {
		t.Errorf("Refresh called %d times, expected 2", got)
	}
}

func TestInvalidatorReportsErrors(t *testing.T) {
	target := &countingRefresher{err: errors.New("503")}
	inv := NewInvalidator(target, nil)
	refreshed := make(chan error, 1)
	inv.OnRefresh = func(err error) { refreshed <- err }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go inv.Run(ctx)

	inv.Notify()
	select {
	case err := <-refreshed:
		if err == nil {
			t.Error("expected refresh error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not run")
	}
}

func TestInvalidatorRefreshesOnPermissionUpdate(t *testing.T) {
	target := &countingRefresher{}
	inv := NewInvalidator(target, nil)
	refreshed := make(chan error, 1)
	inv.OnRefresh = func(err error) { refreshed <- err }

	d := NewDispatcher()
	inv.Bind(d)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go inv.Run(ctx)

	if !d.Dispatch(Message{Event: EventPermissionUpdate, Room: "u1"}) {
		t.Fatal("PERMISSION_UPDATE not handled")
	}
	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not run")
	}
	if got := target.calls.Load(); got != 1 {
		t.Errorf("Refresh called %d times, expected 1", got)
	}
}

package pool

import (
	"context"
	"net"
	"testing"
	"time"
)

func pipeConn(t *testing.T) net.Conn {
	t.Helper()
	a, _ := net.Pipe()
	return a
}

func TestAddGetBasic(t *testing.T) {
	p := New(WithCapacity(2))
	if err := p.Add(pipeConn(t)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if st := p.Status(); st.Available != 1 {
		t.Fatalf("Status.Available = %d, want 1", st.Available)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	item, err := p.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item == nil {
		t.Fatal("Get returned nil item")
	}
	if st := p.Status(); st.Available != 0 {
		t.Fatalf("Status.Available after Get = %d, want 0", st.Available)
	}
}

func TestAddRejectsAtCapacity(t *testing.T) {
	p := New(WithCapacity(1))
	if err := p.Add(pipeConn(t)); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := p.Add(pipeConn(t)); err != ErrFull {
		t.Fatalf("second Add = %v, want ErrFull", err)
	}
}

func TestGetBlocksUntilAdd(t *testing.T) {
	p := New(WithCapacity(10))
	resultCh := make(chan *Item, 1)
	go func() {
		item, err := p.Get(context.Background())
		if err != nil {
			t.Error(err)
			return
		}
		resultCh <- item
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-resultCh:
		t.Fatal("Get returned before Add")
	default:
	}

	if err := p.Add(pipeConn(t)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	select {
	case <-resultCh:
	case <-time.After(time.Second):
		t.Fatal("Get did not unblock after Add")
	}
}

func TestGetCanceledByContext(t *testing.T) {
	p := New(WithCapacity(10))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Get(ctx); err == nil {
		t.Fatal("expected error from canceled context")
	}
}

func TestStaleOlderThan(t *testing.T) {
	now := time.Now()
	old := now.Add(-9 * time.Second)
	item := &Item{LastReleasedAt: &old}
	if !StaleOlderThan(item, 8*time.Second, now) {
		t.Fatal("expected stale item to be reported stale")
	}
	fresh := now.Add(-1 * time.Second)
	item2 := &Item{LastReleasedAt: &fresh}
	if StaleOlderThan(item2, 8*time.Second, now) {
		t.Fatal("expected fresh item not to be reported stale")
	}
}

func TestReturnRefusesDisconnected(t *testing.T) {
	p := New(WithRecycleTTL(10 * time.Second))
	item := NewItem(pipeConn(t))
	item.Disconnected = true
	if p.Return(item) {
		t.Fatal("expected Return to refuse a disconnected item")
	}
}

func TestReturnRefusesStaleBeyondRecycleTTL(t *testing.T) {
	p := New(WithRecycleTTL(10 * time.Second))
	item := NewItem(pipeConn(t))
	old := time.Now().Add(-11 * time.Second)
	item.LastReleasedAt = &old
	if p.Return(item) {
		t.Fatal("expected Return to refuse an item past RecycleTTL")
	}
}

func TestReturnAcceptsFreshItem(t *testing.T) {
	p := New(WithRecycleTTL(10 * time.Second))
	item := NewItem(pipeConn(t))
	if !p.Return(item) {
		t.Fatal("expected Return to accept a fresh item")
	}
	if st := p.Status(); st.Available != 1 {
		t.Fatalf("Status.Available = %d, want 1", st.Available)
	}
}

func TestGetDialsOnMiss(t *testing.T) {
	dialed := 0
	p := New(WithDialOnMiss(func(ctx context.Context) (net.Conn, error) {
		dialed++
		return pipeConn(t), nil
	}))
	item, err := p.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item == nil || dialed != 1 {
		t.Fatalf("expected exactly one dial, got %d", dialed)
	}
}

package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	received := make(chan *domain.Message, 1)
	sub, err := b.Subscribe(ctx, "tenant-1", domain.TopicBatchIngested, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Unsubscribe()

	if err := b.Publish(ctx, "tenant-1", domain.TopicBatchIngested, []byte(`{"batchId":"batch-1"}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg.TenantID != "tenant-1" || msg.Topic != domain.TopicBatchIngested {
			t.Errorf("message envelope = %+v", msg)
		}
		if string(msg.Payload) != `{"batchId":"batch-1"}` {
			t.Errorf("payload = %s", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestChannelBusTenantIsolation(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	sub, err := b.Subscribe(ctx, "tenant-a", domain.TopicBatchScored, func(ctx context.Context, msg *domain.Message) error {
		mu.Lock()
		got = append(got, msg.TenantID)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Unsubscribe()

	// Another tenant's publish must not reach this subscriber.
	if err := b.Publish(ctx, "tenant-b", domain.TopicBatchScored, []byte("x")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := b.Publish(ctx, "tenant-a", domain.TopicBatchScored, []byte("y")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "tenant-a" {
		t.Errorf("received tenants = %v, want [tenant-a]", got)
	}
}

func TestChannelBusMultipleSubscribers(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		_, err := b.Subscribe(ctx, "tenant-1", domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
	}

	if err := b.Publish(ctx, "tenant-1", domain.TopicAlert, []byte("alert")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all subscribers received the message")
	}
}

func TestChannelBusUnsubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	received := make(chan struct{}, 10)
	sub, err := b.Subscribe(ctx, "tenant-1", domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
		received <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if sub.Topic() != domain.TopicAlert {
		t.Errorf("Topic() = %q", sub.Topic())
	}

	sub.Unsubscribe()
	time.Sleep(10 * time.Millisecond)

	b.Publish(ctx, "tenant-1", domain.TopicAlert, []byte("after"))
	select {
	case <-received:
		t.Error("received message after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelBusClosed(t *testing.T) {
	b := NewChannelBus(10)
	ctx := context.Background()

	if err := b.Ping(ctx); err != nil {
		t.Errorf("Ping() on open bus error = %v", err)
	}

	b.Close()

	if err := b.Publish(ctx, "tenant-1", domain.TopicAlert, []byte("x")); err == nil {
		t.Error("expected publish on closed bus to fail")
	}
	if _, err := b.Subscribe(ctx, "tenant-1", domain.TopicAlert, nil); err == nil {
		t.Error("expected subscribe on closed bus to fail")
	}
	if err := b.Ping(ctx); err == nil {
		t.Error("expected ping on closed bus to fail")
	}
	// Double close is safe.
	if err := b.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestChannelBusRequiresTenant(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	if err := b.Publish(ctx, "", domain.TopicAlert, []byte("x")); err == nil {
		t.Error("expected publish without tenant to fail")
	}
	if _, err := b.Subscribe(ctx, "", domain.TopicAlert, nil); err == nil {
		t.Error("expected subscribe without tenant to fail")
	}
}

func TestNewBusFactory(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
	if err != nil {
		t.Fatalf("New(channel) error = %v", err)
	}
	defer b.Close()

	if _, ok := b.(*ChannelBus); !ok {
		t.Errorf("New(channel) returned %T, want *ChannelBus", b)
	}

	if _, err := New(domain.EventBusConfig{Type: "bogus"}); err == nil {
		t.Error("expected error for unsupported bus type")
	}
}

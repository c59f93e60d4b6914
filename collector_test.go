package netq

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCollectSuccess(t *testing.T) {
	store := newFakeStore()
	store.responses[1] = Response{ID: 1, Status: StatusSuccess, StatusCode: 200}

	collection, err := NewCollector(store).Collect(context.Background(), 1, CollectOptions{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if collection.Status != CollectSuccess || collection.Message != "ok" {
		t.Fatalf("unexpected collection %+v", collection)
	}
	if collection.Response == nil || collection.Response.StatusCode != 200 {
		t.Fatalf("expected response, got %+v", collection.Response)
	}
}

func TestCollectError(t *testing.T) {
	store := newFakeStore()
	store.responses[1] = Response{ID: 1, Status: StatusTimeout, TimedOut: true, Error: "Timeout of 1 ms reached."}

	collection, err := NewCollector(store).Collect(context.Background(), 1, CollectOptions{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if collection.Status != CollectError || collection.Message != "Timeout of 1 ms reached." {
		t.Fatalf("unexpected collection %+v", collection)
	}
}

func TestCollectPending(t *testing.T) {
	store := newFakeStore()
	id := store.add(Request{URL: "http://good"})

	collection, err := NewCollector(store).Collect(context.Background(), id, CollectOptions{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if collection.Status != CollectPending || collection.Message != "request is pending processing" {
		t.Fatalf("unexpected collection %+v", collection)
	}
	if collection.Response != nil {
		t.Fatalf("pending collection must not carry a response")
	}
}

func TestCollectNotFound(t *testing.T) {
	collection, err := NewCollector(newFakeStore()).Collect(context.Background(), 42, CollectOptions{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if collection.Status != CollectNotFound {
		t.Fatalf("expected not found status, got %s", collection.Status)
	}
}

func TestCollectBlockingWaitsForResponse(t *testing.T) {
	store := newFakeStore()
	id := store.add(Request{URL: "http://good"})
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = store.Complete(context.Background(), Completion{
			Request: Request{ID: id},
			Outcome: SucceededOutcome(201, nil, nil, Timing{}),
		})
	}()

	collector := NewCollector(store, WithPollInterval(5*time.Millisecond))
	collection, err := collector.Collect(context.Background(), id, CollectOptions{Blocking: true})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if collection.Status != CollectSuccess || collection.Response.StatusCode != 201 {
		t.Fatalf("unexpected collection %+v", collection)
	}
}

func TestCollectBlockingMaxWait(t *testing.T) {
	store := newFakeStore()
	id := store.add(Request{URL: "http://good"})

	collector := NewCollector(store, WithPollInterval(5*time.Millisecond))
	start := time.Now()
	collection, err := collector.Collect(context.Background(), id, CollectOptions{Blocking: true, MaxWait: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if collection.Status != CollectPending {
		t.Fatalf("expected pending after max wait, got %s", collection.Status)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("collect ignored max wait")
	}
}

func TestCollectBlockingContextCancel(t *testing.T) {
	store := newFakeStore()
	id := store.add(Request{URL: "http://good"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewCollector(store).Collect(ctx, id, CollectOptions{Blocking: true})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

type racingReader struct {
	*fakeStore
	reads int
}

func (r *racingReader) ReadResponse(ctx context.Context, id ID) (Response, error) {
	r.reads++
	if r.reads == 1 {
		return Response{}, ErrNotFound
	}

	return r.fakeStore.ReadResponse(ctx, id)
}

func TestCollectResponseRecordedBetweenReads(t *testing.T) {
	store := newFakeStore()
	store.responses[3] = Response{ID: 3, Status: StatusSuccess, StatusCode: 200}

	collection, err := NewCollector(&racingReader{fakeStore: store}).Collect(context.Background(), 3, CollectOptions{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if collection.Status != CollectSuccess {
		t.Fatalf("expected success, got %s", collection.Status)
	}
}

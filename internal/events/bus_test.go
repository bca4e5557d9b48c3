package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan JobLogEvent, 1)

	unsub := bus.Subscribe(func(e JobLogEvent) {
		received <- e
	})
	defer unsub()

	ev := JobLogEvent{JobID: 7, Kind: "discovery", Message: "Searching...", Timestamp: Now()}
	bus.Publish(ev)

	got := <-received
	if got.JobID != ev.JobID || got.Message != ev.Message {
		t.Errorf("got %+v, want %+v", got, ev)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan JobCompletedEvent, 1)
	received2 := make(chan JobCompletedEvent, 1)

	unsub1 := bus.Subscribe(func(e JobCompletedEvent) { received1 <- e })
	defer unsub1()
	unsub2 := bus.Subscribe(func(e JobCompletedEvent) { received2 <- e })
	defer unsub2()

	bus.Publish(JobCompletedEvent{JobID: 1, Kind: "icons"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan StreamStartFailedEvent, 1)

	unsub := bus.Subscribe(func(e StreamStartFailedEvent) { received <- e })

	bus.Publish(StreamStartFailedEvent{Device: "/dev/video20"})
	<-received

	unsub()

	bus.Publish(StreamStartFailedEvent{Device: "/dev/video21"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	abortedReceived := make(chan bool, 1)
	completedReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ JobAbortedEvent) { abortedReceived <- true })
	defer unsub1()
	unsub2 := bus.Subscribe(func(_ JobCompletedEvent) { completedReceived <- true })
	defer unsub2()

	bus.Publish(JobAbortedEvent{JobID: 1})
	<-abortedReceived

	select {
	case <-completedReceived:
		t.Fatal("completed subscriber received an aborted event")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ JobProgressEvent) { receivedCh <- true })
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range eventsPerGoroutine {
				bus.Publish(JobProgressEvent{JobID: 1, Step: i, Timestamp: Now()})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_PreservesOrderPerSubscriber(t *testing.T) {
	bus := New()
	received := make(chan int, 50)

	unsub := bus.Subscribe(func(e JobProgressEvent) { received <- e.Step })
	defer unsub()

	for i := 1; i <= 50; i++ {
		bus.Publish(JobProgressEvent{Step: i})
	}
	for want := 1; want <= 50; want++ {
		if got := <-received; got != want {
			t.Fatalf("step %d arrived out of order (got %d)", want, got)
		}
	}
}

func TestBus_NilPublishIsNoop(_ *testing.T) {
	var bus *Bus
	bus.Publish(JobLogEvent{Message: "dropped"})
}

func TestSubscribeAll(t *testing.T) {
	bus := New()
	ch := make(chan any, 16)

	unsub := SubscribeAll(bus, ch)
	defer unsub()

	all := []Event{
		StreamStateChangedEvent{To: "active"},
		StreamStartFailedEvent{Error: "boom"},
		StreamOutputEvent{Line: "frame=1"},
		JobProgressEvent{Step: 1},
		JobLogEvent{Message: "hi"},
		JobCompletedEvent{JobID: 1},
		JobAbortedEvent{JobID: 2},
		JobFailedEvent{JobID: 3},
		SourcesChangedEvent{Count: 1},
		LogEntryEvent{Message: "log"},
	}
	for _, ev := range all {
		bus.Publish(ev)
	}

	seen := make(map[uint32]bool)
	timeout := time.After(time.Second)
	for len(seen) < len(all) {
		select {
		case ev := <-ch:
			seen[ev.(Event).Type()] = true
		case <-timeout:
			t.Fatalf("received %d of %d event types", len(seen), len(all))
		}
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any)

	unsub := SubscribeToChannel[SourcesChangedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(SourcesChangedEvent{Action: "cleared"})
		done <- true
	}()

	<-done
}

func TestEventJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(JobFailedEvent{
		JobID:     4,
		Kind:      "preview",
		Target:    "/tmp/a.mp4",
		Error:     "no video stream",
		Elapsed:   0.5,
		Timestamp: "2025-01-27T10:30:00Z",
	})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	for _, key := range []string{"job_id", "kind", "target", "error", "elapsed_seconds", "timestamp"} {
		if _, ok := result[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
}

package bus

import (
	"reflect"
	"testing"
)

func TestPublish_DeliversToMatchingSubscribersInOrder(t *testing.T) {
	b := New()
	var got []string

	b.Subscribe(DashboardToggle, func(Event) { got = append(got, "first") })
	b.Subscribe(DashboardStateChange, func(Event) { got = append(got, "other") })
	b.Subscribe(DashboardToggle, func(Event) { got = append(got, "second") })

	b.Publish(Event{Name: DashboardToggle})

	if want := []string{"first", "second"}; !reflect.DeepEqual(got, want) {
		t.Errorf("delivered to %v, want %v", got, want)
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	b := New()
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Publish without subscribers panicked: %v", r)
		}
	}()
	b.Publish(Event{Name: "nobody"})
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	b := New()
	calls := 0
	unsub := b.Subscribe(DashboardToggle, func(Event) { calls++ })
	keep := b.Subscribe(DashboardToggle, func(Event) {})
	defer keep()

	unsub()
	unsub()
	b.Publish(Event{Name: DashboardToggle})

	if calls != 0 {
		t.Errorf("removed handler called %d times", calls)
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

func TestPublish_NestedRunsToCompletion(t *testing.T) {
	b := New()
	var order []string

	b.Subscribe(DashboardToggle, func(Event) {
		order = append(order, "toggle:start")
		b.Publish(Event{Name: DashboardStateChange, IsVisible: false})
		order = append(order, "toggle:end")
	})
	b.Subscribe(DashboardStateChange, func(e Event) {
		order = append(order, "state")
		if e.IsVisible {
			t.Error("payload lost in nested publish")
		}
	})

	b.Publish(Event{Name: DashboardToggle})

	if want := []string{"toggle:start", "state", "toggle:end"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestTap_SeesEveryEventBeforeSubscribers(t *testing.T) {
	b := New()
	var seen []string

	untap := b.Tap(func(e Event) { seen = append(seen, "tap:"+e.Name) })
	b.Subscribe(DashboardToggle, func(e Event) {
		seen = append(seen, "sub:"+e.Name)
		b.Publish(Event{Name: DashboardStateChange, IsVisible: true})
	})

	b.Publish(Event{Name: DashboardToggle})
	want := []string{"tap:dashboardToggle", "sub:dashboardToggle", "tap:dashboardStateChange"}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("seen = %v, want %v", seen, want)
	}

	untap()
	seen = nil
	b.Publish(Event{Name: "other"})
	if len(seen) != 0 {
		t.Errorf("removed tap still called: %v", seen)
	}
}

func TestSubscribe_DuringPublish(t *testing.T) {
	b := New()
	late := 0
	b.Subscribe(DashboardToggle, func(Event) {
		b.Subscribe(DashboardToggle, func(Event) { late++ })
	})

	b.Publish(Event{Name: DashboardToggle})
	if late != 0 {
		t.Errorf("subscriber added mid-publish saw the current event")
	}

	b.Publish(Event{Name: DashboardToggle})
	if late != 1 {
		t.Errorf("late subscriber called %d times, want 1", late)
	}
}

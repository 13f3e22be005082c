package notification

import (
	"testing"

	domain "edumarket-service/internal/domain/notification"

	"github.com/stretchr/testify/assert"
)

func TestListeners_OrderAndPanicIsolation(t *testing.T) {
	reg := newListenerRegistry(nil)
	var calls []string

	reg.add(EventNew, func(domain.Notification) { calls = append(calls, "first") })
	reg.add(EventNew, func(domain.Notification) { panic("listener bug") })
	reg.add(EventNew, func(n domain.Notification) { calls = append(calls, "third:"+n.ID) })

	assert.NotPanics(t, func() {
		reg.dispatch(EventNew, domain.Notification{ID: "n1"})
	})
	assert.Equal(t, []string{"first", "third:n1"}, calls)
}

func TestListeners_RemoveFirstMatchOnly(t *testing.T) {
	reg := newListenerRegistry(nil)
	count := 0
	h := reg.add(EventUpdate, func(domain.Notification) { count++ })
	reg.add(EventUpdate, func(domain.Notification) { count += 10 })

	assert.True(t, reg.remove(EventUpdate, h))
	assert.False(t, reg.remove(EventUpdate, h))
	assert.False(t, reg.remove(EventNew, h))
	assert.Equal(t, 1, reg.count(EventUpdate))

	reg.dispatch(EventUpdate, domain.Notification{})
	assert.Equal(t, 10, count)
}

func TestListeners_KindsAreSeparate(t *testing.T) {
	reg := newListenerRegistry(nil)
	hit := false
	reg.add(EventNew, func(domain.Notification) { hit = true })

	reg.dispatch(EventUpdate, domain.Notification{})
	assert.False(t, hit)
}

// Package scroll decides when a message list should follow new messages
// and when it should keep the reader's position.
package scroll

import (
	"sync"
	"time"
)

const (
	// NearBottomThreshold is the distance from the end, in logical
	// pixels, that still counts as reading the latest messages.
	NearBottomThreshold = 100.0

	// Delay lets the list lay out new rows before it is scrolled.
	Delay = 100 * time.Millisecond
)

// Scroller is the list primitive the controller drives.
type Scroller interface {
	ScrollToEnd(animated bool)
}

// Scheduler runs f after d.
type Scheduler func(d time.Duration, f func())

func afterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

type Controller struct {
	mu         sync.Mutex
	scroller   Scroller
	schedule   Scheduler
	nearBottom bool
	snapped    bool
	count      int
}

func New(s Scroller) *Controller {
	return &Controller{
		scroller:   s,
		schedule:   afterFunc,
		nearBottom: true,
	}
}

// OnScroll updates the near-bottom flag from the viewport geometry.
func (c *Controller) OnScroll(offset, contentHeight, viewportHeight float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nearBottom = contentHeight-(offset+viewportHeight) <= NearBottomThreshold
}

// OnData is called with the message count after every change. The first
// non-empty list snaps to the end; later changes follow only a reader
// who was near the bottom.
func (c *Controller) OnData(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.snapped {
		if count == 0 {
			return
		}
		c.snapped = true
		c.count = count
		c.later(false)
		return
	}

	if count == c.count {
		return
	}
	c.count = count
	if c.nearBottom {
		c.later(true)
	}
}

// ScrollToBottom is the manual jump; it always scrolls.
func (c *Controller) ScrollToBottom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nearBottom = true
	c.later(true)
}

// Reset is called when the list is mounted again.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapped = false
	c.count = 0
	c.nearBottom = true
}

func (c *Controller) NearBottom() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nearBottom
}

// Must be called with c.mu held.
func (c *Controller) later(animated bool) {
	s := c.scroller
	c.schedule(Delay, func() { s.ScrollToEnd(animated) })
}

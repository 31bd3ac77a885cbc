package feeds

// SequenceLimit is the largest value a SequenceCounter hands out.
const SequenceLimit = 50

// SequenceCounter mints a bounded, wrapping sequence 0..SequenceLimit.
// It is not safe for concurrent use; the sensor transform owning it runs on
// the single event loop.
type SequenceCounter struct {
	next int
}

// Next returns the current value and advances, wrapping to 0 after SequenceLimit.
func (c *SequenceCounter) Next() int {
	n := c.next
	c.next++
	if c.next > SequenceLimit {
		c.next = 0
	}
	return n
}

// Peek returns the value the next call to Next will return.
func (c *SequenceCounter) Peek() int {
	return c.next
}

package remote

import (
	"context"
	"time"
)

type outcome struct {
	value interface{}
	err   error
}

type pending struct {
	call Call
	done chan outcome
}

// enqueue adds call to the open batch. The batch is sent when it reaches
// maxBatch calls or when the window opened by its first call expires.
func (c *Client) enqueue(call Call) *pending {
	p := &pending{call: call, done: make(chan outcome, 1)}

	c.mu.Lock()
	c.queue = append(c.queue, p)
	if len(c.queue) >= c.maxBatch {
		batch := c.takeLocked()
		c.mu.Unlock()
		go c.send(batch)
		return p
	}
	if c.timer == nil {
		c.timer = time.AfterFunc(c.batchWindow, c.flush)
	}
	c.mu.Unlock()
	return p
}

func (c *Client) takeLocked() []*pending {
	batch := c.queue
	c.queue = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	return batch
}

// flush sends whatever is queued.
func (c *Client) flush() {
	c.mu.Lock()
	batch := c.takeLocked()
	c.mu.Unlock()
	if len(batch) > 0 {
		c.send(batch)
	}
}

// send executes a batch and hands each caller its result. The batch is
// not bound to any single caller's context.
func (c *Client) send(batch []*pending) {
	calls := make([]Call, len(batch))
	for i, p := range batch {
		calls[i] = p.call
	}

	results, err := c.Execute(context.Background(), calls)
	for i, p := range batch {
		if err != nil {
			p.done <- outcome{err: err}
			continue
		}
		p.done <- outcome{value: results[i].Value, err: results[i].Err()}
	}
}

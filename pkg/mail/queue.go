/*
Copyright 2025 NSLNV.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mail

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nslnv/leaddesk/pkg/metrics"
)

var (
	ErrQueueFull    = errors.New("mail queue is full")
	ErrQueueStopped = errors.New("mail queue is shutting down")
)

// Message is one queued email
type Message struct {
	ID        string
	Receivers []string
	Subject   string
	Body      string
	CreatedAt time.Time
}

// FailureFunc is called once a message could not be delivered
type FailureFunc func(msg Message, err error)

// Queue decouples request handling from SMTP latency. A single worker drains
// the bounded channel; Enqueue never blocks.
type Queue struct {
	sender    Sender
	items     chan Message
	log       *zap.SugaredLogger
	onFailure FailureFunc

	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewQueue creates a queue holding at most size pending messages
func NewQueue(sender Sender, log *zap.SugaredLogger, size int) *Queue {
	if size <= 0 {
		size = 100
	}
	return &Queue{
		sender: sender,
		items:  make(chan Message, size),
		log:    log,
		done:   make(chan struct{}),
	}
}

// OnFailure registers a callback for messages that exhausted their retries
func (q *Queue) OnFailure(fn FailureFunc) *Queue {
	q.onFailure = fn
	return q
}

// Start launches the worker
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.worker()
	q.log.Debug("Mail queue worker started")
}

// Enqueue schedules msg for delivery
func (q *Queue) Enqueue(msg Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		metrics.MailQueueDropped.WithLabelValues(q.sender.GetHost()).Inc()
		return ErrQueueStopped
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	select {
	case q.items <- msg:
		return nil
	default:
		metrics.MailQueueDropped.WithLabelValues(q.sender.GetHost()).Inc()
		q.log.Errorw("Mail queue is full, dropping message", "id", msg.ID, "capacity", cap(q.items))
		return ErrQueueFull
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case msg := <-q.items:
			q.deliver(msg)
		case <-q.done:
			// drain what was accepted before Stop
			for {
				select {
				case msg := <-q.items:
					q.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) deliver(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Errorw("panic while sending mail", "id", msg.ID, "panic", r)
		}
	}()

	err := q.sender.Send(msg.Receivers, msg.Subject, msg.Body)
	if err == nil {
		q.log.Infow("Mail delivered", "id", msg.ID, "receivers", len(msg.Receivers), "queuedFor", time.Since(msg.CreatedAt))
		return
	}
	q.log.Errorw("Mail delivery failed", "id", msg.ID, "error", err)
	if q.onFailure != nil {
		q.onFailure(msg, err)
	}
}

// Stop rejects new messages, sends what is still queued and waits for the
// worker until ctx expires. Safe to call twice.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		close(q.done)
	}
	q.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		q.log.Warnw("Mail queue shutdown timed out", "pending", len(q.items))
		return ctx.Err()
	}
}

// Len returns the number of messages waiting for the worker
func (q *Queue) Len() int {
	return len(q.items)
}

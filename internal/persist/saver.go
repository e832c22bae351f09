/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package persist connects an editor session to the layout backend.
// Saves are fire-and-forget: the layout is snapshotted synchronously, the PUT
// runs in the background, and the outcome is reported through a Notifier. The
// editor is never locked across a network call and a failed save leaves its
// state exactly as it was.
package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sitebuilder/internal/backend"
	"sitebuilder/internal/domain"
	applog "sitebuilder/internal/log"
)

// Level classifies a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is a user-facing message, the toast of the builder.
type Notification struct {
	Level       Level
	Title       string
	Description string
	Duration    time.Duration
}

// Notifier shows notifications to the user.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Backend is the part of the layout API the saver needs.
type Backend interface {
	GetLayout(ctx context.Context) (domain.Layout, error)
	PutLayout(ctx context.Context, l domain.Layout) error
}

// Source yields the layout to save. *editor.Editor satisfies it.
type Source interface {
	Snapshot() domain.Layout
}

// Target receives a fetched layout. *editor.Editor satisfies it.
type Target interface {
	Load(domain.Layout) error
}

// Result describes a finished save.
type Result struct {
	Seq    uint64
	Layout domain.Layout
	Err    error
	Took   time.Duration
}

const toastDuration = 3 * time.Second

// Saver pushes layouts to the backend one at a time.
type Saver struct {
	backend Backend
	notify  Notifier
	timeout time.Duration
	log     *slog.Logger
	onDone  func(Result)

	mu      sync.Mutex
	seq     uint64
	last    *Result
	closed  bool
	queue   chan job
	wg      sync.WaitGroup
	closeMu sync.Once
}

type job struct {
	seq    uint64
	layout domain.Layout
}

// Option configures a Saver.
type Option func(*Saver)

// WithTimeout bounds each save request.
func WithTimeout(d time.Duration) Option { return func(s *Saver) { s.timeout = d } }

// WithResultHook is called after each save completes, on the saver goroutine.
func WithResultHook(fn func(Result)) Option { return func(s *Saver) { s.onDone = fn } }

// NewSaver starts a saver. Close it to stop the background worker.
func NewSaver(b Backend, n Notifier, opts ...Option) *Saver {
	if n == nil {
		n = NotifierFunc(func(Notification) {})
	}
	s := &Saver{
		backend: b,
		notify:  n,
		timeout: backend.DefaultTimeout,
		log:     applog.WithComponent("persist"),
		queue:   make(chan job, 16),
	}
	for _, o := range opts {
		o(s)
	}
	go s.loop()
	return s
}

// Save snapshots src now and queues the upload, returning the sequence number of
// the queued save. It only blocks when many uploads are already pending. After
// Close, Save does nothing and returns 0.
func (s *Saver) Save(src Source) uint64 {
	l := src.Snapshot()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	s.seq++
	j := job{seq: s.seq, layout: l}
	s.wg.Add(1)
	s.mu.Unlock()
	s.queue <- j
	return j.seq
}

// Wait blocks until every queued save has finished.
func (s *Saver) Wait() { s.wg.Wait() }

// Last returns the most recent finished save, if any.
func (s *Saver) Last() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}

// Close waits for pending saves and stops the worker.
func (s *Saver) Close() {
	s.closeMu.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.wg.Wait()
		close(s.queue)
	})
}

func (s *Saver) loop() {
	for j := range s.queue {
		s.run(j)
	}
}

func (s *Saver) run(j job) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	err := s.backend.PutLayout(ctx, j.layout)
	res := Result{Seq: j.seq, Layout: j.layout, Err: err, Took: time.Since(start)}

	l := applog.WithOperation(s.log, "save").With(slog.Uint64("seq", j.seq), slog.Int("elements", len(j.layout)))
	if err != nil {
		l.Warn("save failed", slog.Any("err", err))
		s.notify.Notify(Notification{Level: LevelError, Title: "Error saving website", Description: err.Error(), Duration: toastDuration})
	} else {
		l.Info("saved", slog.Duration("took", res.Took))
		s.notify.Notify(Notification{Level: LevelSuccess, Title: "Website saved successfully", Duration: toastDuration})
	}

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()
	if s.onDone != nil {
		s.onDone(res)
	}
}

// LoadInto fetches the stored layout and seeds dst with it. On failure dst is left untouched,
// the user is notified and the error is returned.
func LoadInto(ctx context.Context, b Backend, dst Target, n Notifier) error {
	l, err := b.GetLayout(ctx)
	if err == nil {
		err = dst.Load(l)
	}
	if err != nil {
		applog.WithOperation(applog.WithComponent("persist"), "load").Warn("load failed", slog.Any("err", err))
		if n != nil {
			n.Notify(Notification{Level: LevelError, Title: "Error loading website", Description: err.Error(), Duration: toastDuration})
		}
		return err
	}
	return nil
}

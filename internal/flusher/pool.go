// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flusher

import (
	"fmt"
	"sync"
)

// Pool is a static worker pool split into a priority lane and a normal
// lane, sized once at construction (spec §4.7's "a master thread and N
// slave threads"): the master flush-group loop runs on the single
// priority worker so it is never starved behind other work, and the
// normal lane runs whatever Schedule(false, ...) submits. Flusher itself
// submits nothing to the normal lane: its per-inode syncs run on
// errgroup goroutines bounded by a semaphore.
type Pool struct {
	priority chan func()
	normal   chan func()
	wg       sync.WaitGroup
	stop     chan struct{}
	once     sync.Once
}

// NewStaticWorkerPool starts priorityWorker goroutines servicing the
// priority lane and normalWorker goroutines servicing the normal lane.
// At least one worker total is required.
func NewStaticWorkerPool(priorityWorker, normalWorker uint32) (*Pool, error) {
	if priorityWorker == 0 && normalWorker == 0 {
		return nil, fmt.Errorf("flusher: worker pool needs at least one worker")
	}

	p := &Pool{
		priority: make(chan func()),
		normal:   make(chan func()),
		stop:     make(chan struct{}),
	}

	for i := uint32(0); i < priorityWorker; i++ {
		p.wg.Add(1)
		go p.run(p.priority)
	}
	for i := uint32(0); i < normalWorker; i++ {
		p.wg.Add(1)
		go p.run(p.normal)
	}
	return p, nil
}

func (p *Pool) run(lane chan func()) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case fn := <-lane:
			fn()
		}
	}
}

// Schedule submits fn to the priority lane if priority is set, otherwise
// to the normal lane. It blocks until a worker on that lane picks it up
// or the pool is stopped, in which case it is dropped silently.
func (p *Pool) Schedule(priority bool, fn func()) {
	lane := p.normal
	if priority {
		lane = p.priority
	}
	select {
	case lane <- fn:
	case <-p.stop:
	}
}

// Stop signals every worker to exit and waits for them to drain. It is
// safe to call on a nil Pool (the NewStaticWorkerPool failure case) and
// safe to call more than once.
func (p *Pool) Stop() {
	if p == nil {
		return
	}
	p.once.Do(func() { close(p.stop) })
	p.wg.Wait()
}

// Copyright 2025 The objvm Authors.
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

package monitor

import (
	"objvm.dev/objvm/pkg/bitmap"
	"objvm.dev/objvm/pkg/lockword"
	"objvm.dev/objvm/pkg/sync"
	"objvm.dev/objvm/pkg/vmerr"
)

// pool maps the 28-bit ids stored in fat header words to Monitor records.
// Ids are stable across GC moves (the id is an index, not an address) and are
// reused only after the monitor is released.
type pool struct {
	// mu protects the fields below.
	mu sync.Mutex

	// ids tracks allocated ids. Id 0 is permanently reserved so that a
	// zero word can never alias a live monitor.
	ids bitmap.Bitmap

	// size is the current capacity of ids, in bits.
	size uint32

	// monitors maps allocated ids to their records.
	monitors map[uint32]*Monitor
}

func newPool(capacity uint32) *pool {
	if capacity < 64 {
		capacity = 64
	}
	p := &pool{
		ids:      bitmap.New(capacity),
		monitors: make(map[uint32]*Monitor),
	}
	p.size = uint32(p.ids.Size())
	p.ids.Add(0)
	return p
}

// allocate assigns a fresh id to m and registers it.
func (p *pool) allocate(m *Monitor) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		id, err := p.ids.FirstZero(0)
		if err == nil && id <= lockword.MaxMonitorID {
			p.ids.Add(id)
			p.monitors[id] = m
			return id, nil
		}
		if p.size > lockword.MaxMonitorID {
			return 0, vmerr.ErrOutOfMonitors
		}
		if err := p.ids.Grow(p.size); err != nil {
			return 0, vmerr.ErrOutOfMonitors
		}
		p.size = uint32(p.ids.Size())
	}
}

// get returns the monitor with the given id, or nil if it is not allocated.
func (p *pool) get(id uint32) *Monitor {
	p.mu.Lock()
	m := p.monitors[id]
	p.mu.Unlock()
	return m
}

// release returns id to the pool. The id may be reused immediately.
func (p *pool) release(id uint32) {
	p.mu.Lock()
	p.ids.Remove(id)
	delete(p.monitors, id)
	p.mu.Unlock()
}

// count returns the number of live monitors.
func (p *pool) count() int {
	p.mu.Lock()
	n := len(p.monitors)
	p.mu.Unlock()
	return n
}

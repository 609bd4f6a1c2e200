// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package guestexec

// taskFIFO is a minimal append/pop-front queue. Used both for the
// unconfined queue and for each per-holder confined queue; all access is
// already serialized by the executor's single lock, so this needs no
// internal synchronization of its own.
type taskFIFO struct {
	items []*submittedTask
}

func (q *taskFIFO) push(t *submittedTask) {
	q.items = append(q.items, t)
}

func (q *taskFIFO) pop() *submittedTask {
	if len(q.items) == 0 {
		return nil
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t
}

func (q *taskFIFO) peek() *submittedTask {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *taskFIFO) empty() bool {
	return len(q.items) == 0
}

func (q *taskFIFO) len() int {
	return len(q.items)
}

// drainAll empties the queue, returning everything still waiting — used by
// ShutdownNow to report unstarted tasks.
func (q *taskFIFO) drainAll() []*submittedTask {
	items := q.items
	q.items = nil
	return items
}

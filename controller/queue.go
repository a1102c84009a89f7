package controller

import (
	"github.com/dolthub/swiss"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/segsim/segment"
)

type queueNode struct {
	process *segment.Process
	prev    *queueNode
	next    *queueNode
}

// waitQueue is a FIFO of processes that could not be placed when they arrived. New arrivals and
// failed retries are both pushed to the back, and retries are always taken from the front.
type waitQueue struct {
	count int
	head  *queueNode
	tail  *queueNode
	index *swiss.Map[segment.ProcessID, *queueNode]
}

func (q *waitQueue) Init() {
	q.index = swiss.NewMap[segment.ProcessID, *queueNode](16)
}

func (q *waitQueue) Len() int { return q.count }

func (q *waitQueue) Contains(id segment.ProcessID) bool {
	_, ok := q.index.Get(id)
	return ok
}

func (q *waitQueue) PushBack(process *segment.Process) {
	node := &queueNode{process: process}
	q.index.Put(process.ID(), node)

	if q.count == 0 {
		q.head = node
		q.tail = node
		q.count = 1
		return
	}

	node.prev = q.tail
	q.tail.next = node
	q.tail = node
	q.count++
}

// PopFront removes and returns the oldest process in the queue, or nil if the queue is empty
func (q *waitQueue) PopFront() *segment.Process {
	node := q.head
	if node == nil {
		return nil
	}

	q.head = node.next
	if q.head != nil {
		q.head.prev = nil
	} else {
		q.tail = nil
	}

	node.next = nil
	q.index.Delete(node.process.ID())
	q.count--

	return node.process
}

// Processes returns the queued processes from oldest to newest
func (q *waitQueue) Processes() []*segment.Process {
	processes := make([]*segment.Process, 0, q.count)
	for node := q.head; node != nil; node = node.next {
		processes = append(processes, node.process)
	}
	return processes
}

func (q *waitQueue) Validate() error {
	actualCount := 0
	var prev *queueNode

	for node := q.head; node != nil; node = node.next {
		actualCount++

		if node.prev != prev {
			return errors.Errorf("queued process %d has a broken back reference", node.process.ID())
		}

		indexed, ok := q.index.Get(node.process.ID())
		if !ok || indexed != node {
			return errors.Errorf("queued process %d is missing from the queue index", node.process.ID())
		}

		prev = node
	}

	if prev != q.tail {
		return errors.New("the last queued process is not the queue's tail")
	}

	if q.count != actualCount {
		return errors.Errorf("the listed number of queued processes (%d) does not match the actual number of queued processes (%d)", q.count, actualCount)
	}

	if q.index.Count() != actualCount {
		return errors.Errorf("the queue index holds %d processes, but %d are queued", q.index.Count(), actualCount)
	}

	return nil
}

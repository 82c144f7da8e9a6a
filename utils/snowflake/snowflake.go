package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	// Epoch is the custom epoch (January 1, 2024 00:00:00 UTC) in milliseconds.
	Epoch int64 = 1704067200000

	workerIDBits uint8 = 10
	sequenceBits uint8 = 12

	maxWorkerID  int64 = -1 ^ (-1 << workerIDBits)
	sequenceMask int64 = -1 ^ (-1 << sequenceBits)

	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

var (
	ErrInvalidWorkerID     = errors.New("worker ID exceeds maximum value")
	ErrClockMovedBackwards = errors.New("clock moved backwards")
)

// Generator produces unique, time-ordered message identifiers: 41 bits of
// millisecond timestamp, 10 bits of worker ID and a 12-bit per-millisecond
// sequence. Because IDs are monotonic per worker, history ordered by ID is
// chronological and clients can deduplicate live events against it.
type Generator struct {
	mu sync.Mutex

	workerID      int64
	sequence      int64
	lastTimestamp int64
}

func NewGenerator(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, ErrInvalidWorkerID
	}
	return &Generator{workerID: workerID}, nil
}

// NextID generates the next unique ID.
func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	timestamp := currentTimestamp()
	if timestamp < g.lastTimestamp {
		return 0, ErrClockMovedBackwards
	}

	if timestamp == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & sequenceMask
		// Sequence overflow within the same millisecond.
		if g.sequence == 0 {
			timestamp = waitNextMillis(g.lastTimestamp)
		}
	} else {
		g.sequence = 0
	}

	g.lastTimestamp = timestamp

	id := ((timestamp - Epoch) << timestampShift) |
		(g.workerID << workerIDShift) |
		g.sequence
	return id, nil
}

// Timestamp extracts the millisecond timestamp embedded in an ID.
func Timestamp(id int64) int64 {
	return (id >> timestampShift) + Epoch
}

// WorkerID extracts the worker ID embedded in an ID.
func WorkerID(id int64) int64 {
	return (id >> workerIDShift) & maxWorkerID
}

// Sequence extracts the per-millisecond sequence embedded in an ID.
func Sequence(id int64) int64 {
	return id & sequenceMask
}

func currentTimestamp() int64 {
	return time.Now().UnixMilli()
}

func waitNextMillis(lastTimestamp int64) int64 {
	timestamp := currentTimestamp()
	for timestamp <= lastTimestamp {
		timestamp = currentTimestamp()
	}
	return timestamp
}

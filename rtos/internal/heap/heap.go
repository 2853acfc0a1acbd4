// Package heap is the kernel's static memory pool.
//
// Blocks carry an 8-byte header (size with an in-use bit, next free block).
// Free blocks form a singly linked list kept in address order so that a
// released block can be merged with both neighbours. Allocation is first fit
// and splits the chosen block when the remainder can still hold a block.
//
// The pool has no lock of its own; callers serialize access (the kernel does
// so with its critical section).
package heap

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Ptr is a byte offset into the pool. Alloc never returns the zero Ptr.
type Ptr uint32

const (
	align      = 8
	headerSize = 8
	minBlock   = headerSize + align

	usedBit = uint32(1) << 31
	noBlock = ^uint32(0)
)

// ErrCorrupt is returned by Check when the block structure is damaged.
var ErrCorrupt = errors.New("heap corrupt")

// Stats is a snapshot of pool usage.
type Stats struct {
	Size        int
	Free        int
	MinEverFree int
	Allocs      uint32
	Frees       uint32
	Failures    uint32
}

// Heap is a first-fit allocator over a fixed byte slice.
type Heap struct {
	pool     []byte
	freeHead uint32

	free     uint32
	minFree  uint32
	allocs   uint32
	frees    uint32
	failures uint32
}

// New creates a pool of size bytes (rounded down to the block alignment).
func New(size int) *Heap {
	if size < minBlock {
		size = minBlock
	}
	size &^= align - 1
	h := &Heap{pool: make([]byte, size)}
	h.Reset()
	return h
}

// Reset discards every allocation and turns the pool into one free block.
func (h *Heap) Reset() {
	clear(h.pool)
	h.setHeader(0, uint32(len(h.pool)), false)
	h.setNext(0, noBlock)
	h.freeHead = 0
	h.free = uint32(len(h.pool))
	h.minFree = h.free
	h.allocs, h.frees, h.failures = 0, 0, 0
}

// Size returns the pool size in bytes.
func (h *Heap) Size() int { return len(h.pool) }

// FreeBytes returns the number of bytes held by free blocks, headers included.
func (h *Heap) FreeBytes() int { return int(h.free) }

// Stats returns a usage snapshot.
func (h *Heap) Stats() Stats {
	return Stats{
		Size:        len(h.pool),
		Free:        int(h.free),
		MinEverFree: int(h.minFree),
		Allocs:      h.allocs,
		Frees:       h.frees,
		Failures:    h.failures,
	}
}

// Alloc reserves at least n bytes and returns the payload offset.
func (h *Heap) Alloc(n int) (Ptr, bool) {
	if n <= 0 || n > len(h.pool) {
		h.failures++
		return 0, false
	}
	need := roundUp(uint32(n)) + headerSize

	prev := noBlock
	for cur := h.freeHead; cur != noBlock; cur = h.next(cur) {
		size := h.size(cur)
		if size < need {
			prev = cur
			continue
		}

		if size-need >= minBlock {
			split := cur + need
			h.setHeader(split, size-need, false)
			h.setNext(split, h.next(cur))
			h.link(prev, split)
			size = need
		} else {
			h.link(prev, h.next(cur))
		}
		h.setHeader(cur, size, true)
		h.setNext(cur, noBlock)

		h.free -= size
		if h.free < h.minFree {
			h.minFree = h.free
		}
		h.allocs++
		return Ptr(cur + headerSize), true
	}

	h.failures++
	return 0, false
}

// Free releases a block returned by Alloc. It reports false (and changes
// nothing) for pointers that do not name a live block.
func (h *Heap) Free(p Ptr) bool {
	off, ok := h.blockOf(p)
	if !ok {
		return false
	}
	size := h.size(off)
	h.setHeader(off, size, false)
	h.free += size
	h.frees++

	prev := noBlock
	cur := h.freeHead
	for cur != noBlock && cur < off {
		prev = cur
		cur = h.next(cur)
	}

	if cur != noBlock && off+size == cur {
		size += h.size(cur)
		h.setHeader(off, size, false)
		h.setNext(off, h.next(cur))
	} else {
		h.setNext(off, cur)
	}

	if prev != noBlock && prev+h.size(prev) == off {
		h.setHeader(prev, h.size(prev)+size, false)
		h.setNext(prev, h.next(off))
	} else {
		h.link(prev, off)
	}
	return true
}

// Bytes returns n bytes of the payload of p. It returns nil if p is not a
// live block or n exceeds the payload.
func (h *Heap) Bytes(p Ptr, n int) []byte {
	off, ok := h.blockOf(p)
	if !ok || n < 0 || uint32(n) > h.size(off)-headerSize {
		return nil
	}
	start := int(p)
	return h.pool[start : start+n : start+n]
}

// Usable returns the payload capacity of p, 0 for an invalid pointer.
func (h *Heap) Usable(p Ptr) int {
	off, ok := h.blockOf(p)
	if !ok {
		return 0
	}
	return int(h.size(off) - headerSize)
}

// Check walks the pool and the free list and reports structural damage.
func (h *Heap) Check() error {
	var (
		off      uint32
		freeSum  uint32
		prevFree bool
	)
	for off < uint32(len(h.pool)) {
		size := h.size(off)
		if size < minBlock || size%align != 0 || off+size > uint32(len(h.pool)) {
			return fmt.Errorf("%w: block at %d has size %d", ErrCorrupt, off, size)
		}
		free := !h.used(off)
		if free {
			if prevFree {
				return fmt.Errorf("%w: adjacent free blocks at %d", ErrCorrupt, off)
			}
			freeSum += size
		}
		prevFree = free
		off += size
	}
	if off != uint32(len(h.pool)) {
		return fmt.Errorf("%w: blocks end at %d, pool is %d", ErrCorrupt, off, len(h.pool))
	}

	var listSum uint32
	last := noBlock
	for cur := h.freeHead; cur != noBlock; cur = h.next(cur) {
		if cur >= uint32(len(h.pool)) || h.used(cur) {
			return fmt.Errorf("%w: free list entry %d", ErrCorrupt, cur)
		}
		if last != noBlock && cur <= last {
			return fmt.Errorf("%w: free list out of order at %d", ErrCorrupt, cur)
		}
		listSum += h.size(cur)
		last = cur
	}
	if listSum != freeSum || freeSum != h.free {
		return fmt.Errorf("%w: free bytes list=%d walk=%d counter=%d", ErrCorrupt, listSum, freeSum, h.free)
	}
	return nil
}

func (h *Heap) blockOf(p Ptr) (uint32, bool) {
	if uint32(p) < headerSize || uint32(p)%align != 0 || int(p) >= len(h.pool) {
		return 0, false
	}
	off := uint32(p) - headerSize
	size := h.size(off)
	if !h.used(off) || size < minBlock || off+size > uint32(len(h.pool)) {
		return 0, false
	}
	return off, true
}

func (h *Heap) link(prev, to uint32) {
	if prev == noBlock {
		h.freeHead = to
		return
	}
	h.setNext(prev, to)
}

func (h *Heap) size(off uint32) uint32 {
	return binary.LittleEndian.Uint32(h.pool[off:]) &^ usedBit
}

func (h *Heap) used(off uint32) bool {
	return binary.LittleEndian.Uint32(h.pool[off:])&usedBit != 0
}

func (h *Heap) next(off uint32) uint32 {
	return binary.LittleEndian.Uint32(h.pool[off+4:])
}

func (h *Heap) setHeader(off, size uint32, used bool) {
	if used {
		size |= usedBit
	}
	binary.LittleEndian.PutUint32(h.pool[off:], size)
}

func (h *Heap) setNext(off, next uint32) {
	binary.LittleEndian.PutUint32(h.pool[off+4:], next)
}

func roundUp(n uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}

package wrentest

import (
	"encoding/binary"
	"fmt"

	wrenruntime "github.com/wippyai/wren-runtime"
)

const heapBase wrenruntime.Ptr = 0x1000

// heap holds foreign object storage. Blocks come from the configured
// reallocator when there is one, otherwise from a bump counter.
type heap struct {
	blocks  map[wrenruntime.Ptr][]byte
	realloc wrenruntime.ReallocateFn
	next    wrenruntime.Ptr
	bytes   uintptr
}

func newHeap(realloc wrenruntime.ReallocateFn) *heap {
	return &heap{
		blocks:  make(map[wrenruntime.Ptr][]byte),
		realloc: realloc,
		next:    heapBase,
	}
}

func (h *heap) alloc(size uintptr) wrenruntime.Ptr {
	if size == 0 {
		size = 1
	}
	var p wrenruntime.Ptr
	if h.realloc != nil {
		if p = h.realloc(0, size); p == 0 {
			return 0
		}
	} else {
		p = h.next
		h.next += wrenruntime.Ptr((size + 15) &^ 7)
	}
	h.blocks[p] = make([]byte, size)
	h.bytes += size
	return p
}

func (h *heap) free(p wrenruntime.Ptr) {
	b, ok := h.blocks[p]
	if !ok {
		return
	}
	delete(h.blocks, p)
	h.bytes -= uintptr(len(b))
	if h.realloc != nil {
		h.realloc(p, 0)
	}
}

// span returns length bytes of the block containing ptr.
func (h *heap) span(ptr wrenruntime.Ptr, length uint32) ([]byte, error) {
	if b, ok := h.blocks[ptr]; ok && uint64(length) <= uint64(len(b)) {
		return b[:length], nil
	}
	for base, b := range h.blocks {
		if ptr < base {
			continue
		}
		off := uint64(ptr - base)
		if off+uint64(length) <= uint64(len(b)) {
			return b[off : off+uint64(length)], nil
		}
	}
	return nil, fmt.Errorf("access out of bounds: ptr=%#x, len=%d", uintptr(ptr), length)
}

func (h *heap) Read(ptr wrenruntime.Ptr, length uint32) ([]byte, error) {
	b, err := h.span(ptr, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, b)
	return out, nil
}

func (h *heap) Write(ptr wrenruntime.Ptr, data []byte) error {
	b, err := h.span(ptr, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (h *heap) ReadU32(ptr wrenruntime.Ptr) (uint32, error) {
	b, err := h.span(ptr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (h *heap) ReadU64(ptr wrenruntime.Ptr) (uint64, error) {
	b, err := h.span(ptr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (h *heap) WriteU32(ptr wrenruntime.Ptr, v uint32) error {
	b, err := h.span(ptr, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

func (h *heap) WriteU64(ptr wrenruntime.Ptr, v uint64) error {
	b, err := h.span(ptr, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}

package engine

import (
	"bytes"

	"github.com/tetratelabs/wazero/api"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
)

// WazeroMemory wraps a reactor's linear memory to implement
// wrenruntime.Memory.
type WazeroMemory struct {
	mem api.Memory
}

// NewWazeroMemory wraps mem.
func NewWazeroMemory(mem api.Memory) *WazeroMemory {
	return &WazeroMemory{mem: mem}
}

func (m *WazeroMemory) Read(ptr wrenruntime.Ptr, length uint32) ([]byte, error) {
	offset, err := offsetOf(ptr)
	if err != nil {
		return nil, err
	}
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, outOfBounds("read", ptr, length, m.Size())
	}
	return data, nil
}

func (m *WazeroMemory) Write(ptr wrenruntime.Ptr, data []byte) error {
	offset, err := offsetOf(ptr)
	if err != nil {
		return err
	}
	if !m.mem.Write(offset, data) {
		return outOfBounds("write", ptr, uint32(len(data)), m.Size())
	}
	return nil
}

func (m *WazeroMemory) ReadU32(ptr wrenruntime.Ptr) (uint32, error) {
	offset, err := offsetOf(ptr)
	if err != nil {
		return 0, err
	}
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, outOfBounds("read", ptr, 4, m.Size())
	}
	return val, nil
}

func (m *WazeroMemory) ReadU64(ptr wrenruntime.Ptr) (uint64, error) {
	offset, err := offsetOf(ptr)
	if err != nil {
		return 0, err
	}
	val, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, outOfBounds("read", ptr, 8, m.Size())
	}
	return val, nil
}

func (m *WazeroMemory) WriteU32(ptr wrenruntime.Ptr, value uint32) error {
	offset, err := offsetOf(ptr)
	if err != nil {
		return err
	}
	if !m.mem.WriteUint32Le(offset, value) {
		return outOfBounds("write", ptr, 4, m.Size())
	}
	return nil
}

func (m *WazeroMemory) WriteU64(ptr wrenruntime.Ptr, value uint64) error {
	offset, err := offsetOf(ptr)
	if err != nil {
		return err
	}
	if !m.mem.WriteUint64Le(offset, value) {
		return outOfBounds("write", ptr, 8, m.Size())
	}
	return nil
}

// Size returns the memory size in bytes.
func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// cString reads the NUL-terminated string at ptr. A zero pointer reads as
// the empty string.
func (m *WazeroMemory) cString(ptr uint32) string {
	if ptr == 0 {
		return ""
	}
	size := m.mem.Size()
	if ptr >= size {
		return ""
	}
	data, _ := m.mem.Read(ptr, size-ptr)
	if n := bytes.IndexByte(data, 0); n >= 0 {
		data = data[:n]
	}
	return string(data)
}

var _ wrenruntime.Memory = (*WazeroMemory)(nil)

func offsetOf(ptr wrenruntime.Ptr) (uint32, error) {
	if uint64(ptr) > uint64(^uint32(0)) {
		return 0, errors.New(errors.PhaseEngine, errors.KindOutOfBounds).
			Value(uint64(ptr)).
			Detail("pointer %#x exceeds 32-bit memory", uint64(ptr)).
			Build()
	}
	return uint32(ptr), nil
}

func outOfBounds(op string, ptr wrenruntime.Ptr, length, size uint32) error {
	return errors.New(errors.PhaseEngine, errors.KindOutOfBounds).
		Value(uint64(ptr)).
		Detail("%s out of bounds: offset=%d, length=%d, memory=%d", op, uint64(ptr), length, size).
		Build()
}

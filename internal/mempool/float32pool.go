// Package mempool keeps sized pools of []float32 scratch buffers so the
// per-batch transforms do not allocate a fresh plane for every pass.
package mempool

import (
	"sync"
)

var float32Pools sync.Map // key: size class (int), value: *sync.Pool

// sizeClass rounds n up to the next multiple of 1024.
func sizeClass(n int) int {
	const step = 1024
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

func poolFor(cls int) *sync.Pool {
	pAny, _ := float32Pools.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]float32, cls)
		return &buf
	}})
	return pAny.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// GetFloat32 returns a buffer of length n. Contents are unspecified.
// Return it with PutFloat32 when done.
func GetFloat32(n int) []float32 {
	cls := sizeClass(n)
	bp, ok := poolFor(cls).Get().(*[]float32)
	if !ok || cap(*bp) < cls {
		buf := make([]float32, cls)
		return buf[:n]
	}
	return (*bp)[:n]
}

// PutFloat32 returns a buffer obtained from GetFloat32. Nil is ignored.
func PutFloat32(buf []float32) {
	if buf == nil {
		return
	}
	full := buf[:cap(buf)]
	poolFor(sizeClass(cap(buf))).Put(&full)
}

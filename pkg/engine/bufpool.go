package engine

import "sync"

// buffers pools byte slices per size. Detector and copy buffers are large
// (megabytes) and every file needs them, so they are recycled across tasks.
type buffers struct {
	mu    sync.Mutex
	pools map[int]*sync.Pool
}

var bufPool = &buffers{pools: make(map[int]*sync.Pool)}

func (b *buffers) pool(size int) *sync.Pool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pools[size]
	if !ok {
		p = &sync.Pool{New: func() any {
			buf := make([]byte, size)
			return &buf
		}}
		b.pools[size] = p
	}
	return p
}

func (b *buffers) get(size int) []byte {
	return *(b.pool(size).Get().(*[]byte))
}

func (b *buffers) put(buf []byte) {
	size := cap(buf)
	buf = buf[:size]
	b.pool(size).Put(&buf)
}

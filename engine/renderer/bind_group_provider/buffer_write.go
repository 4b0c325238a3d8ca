package bind_group_provider

import "github.com/cogentcore/webgpu/wgpu"

// UniformWrite is one pending update of a provider's buffer binding, recorded while a frame's
// layers are encoded and flushed before the frame's command buffer is submitted.
type UniformWrite struct {
	Provider BindGroupProvider
	Binding  int
	Offset   uint64
	Data     []byte
	// Layer is the index of the layer the write belongs to, for logging.
	Layer int
}

// FlushWrites queues every write on q. Writes to bindings without a buffer are skipped.
//
// Parameters:
//   - q: the device queue
//   - writes: the pending writes, in recording order
//
// Returns:
//   - int: the number of writes queued
func FlushWrites(q *wgpu.Queue, writes []UniformWrite) int {
	n := 0
	for _, w := range writes {
		buf := w.Provider.Buffer(w.Binding)
		if buf == nil {
			continue
		}
		q.WriteBuffer(buf, w.Offset, w.Data)
		n++
	}
	return n
}

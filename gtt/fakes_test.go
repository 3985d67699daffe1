package gtt

import (
	"io"

	"github.com/pkg/errors"
	"github.com/vkngwrapper/gart/gttutils"
	"github.com/vkngwrapper/gart/hw"
	"golang.org/x/exp/slog"
)

// fakeMmio is a map-backed register window: reads observe prior writes, and
// the offset of the most recent 64-bit read is recorded so tests can assert
// the posting-read discipline.
type fakeMmio struct {
	regs32 map[int]uint32
	regs64 map[int]uint64

	write64Count int
	lastRead64   int
}

func newFakeMmio() *fakeMmio {
	return &fakeMmio{
		regs32:     map[int]uint32{},
		regs64:     map[int]uint64{},
		lastRead64: -1,
	}
}

func (m *fakeMmio) Read32(offset int) uint32 { return m.regs32[offset] }

func (m *fakeMmio) Write32(offset int, value uint32) { m.regs32[offset] = value }

func (m *fakeMmio) Read64(offset int) uint64 {
	m.lastRead64 = offset
	return m.regs64[offset]
}

func (m *fakeMmio) Write64(offset int, value uint64) {
	m.regs64[offset] = value
	m.write64Count++
}

type fakeMemoryObject struct {
	size       int
	flushed    bool
	closeCount int
}

func (o *fakeMemoryObject) CacheFlush(offset, length int) error {
	o.flushed = true
	return nil
}

func (o *fakeMemoryObject) Close() error {
	o.closeCount++
	return nil
}

type fakePin struct {
	chunks   []hw.PhysAddr
	unpinned bool
	unpinErr error
}

func (p *fakePin) PhysicalChunks() []hw.PhysAddr { return p.chunks }

func (p *fakePin) Unpin() error {
	if p.unpinErr != nil {
		return p.unpinErr
	}
	p.unpinned = true
	return nil
}

// fakeBus pins chunks from a linearly increasing physical address cursor, so
// tests can predict exactly which physical page backs which entry.
type fakeBus struct {
	minContiguity int
	nextPhys      hw.PhysAddr

	pins []*fakePin

	// failPinAt makes the Nth pin call fail (0-based); -1 disables.
	failPinAt int
}

func newFakeBus(minContiguity int, physBase hw.PhysAddr) *fakeBus {
	return &fakeBus{
		minContiguity: minContiguity,
		nextPhys:      physBase,
		failPinAt:     -1,
	}
}

func (b *fakeBus) MinContiguity() (int, error) { return b.minContiguity, nil }

func (b *fakeBus) NewMemoryObject(size int) (hw.MemoryObject, error) {
	return &fakeMemoryObject{size: size}, nil
}

func (b *fakeBus) Pin(object hw.MemoryObject, offset, length int, flags hw.PinFlags) (hw.PinnedMemory, error) {
	if b.failPinAt >= 0 && len(b.pins) == b.failPinAt {
		return nil, errors.New("bus out of pin resources")
	}

	chunkCount := gttutils.DivideRoundUp(length, b.minContiguity)
	chunks := make([]hw.PhysAddr, chunkCount)
	for i := 0; i < chunkCount; i++ {
		chunks[i] = b.nextPhys
		b.nextPhys += hw.PhysAddr(b.minContiguity)
	}

	pin := &fakePin{chunks: chunks}
	b.pins = append(b.pins, pin)
	return pin, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

package gtt

import "github.com/vkngwrapper/gart/hw"

// PageSize is the GPU page size. Every page-table entry maps exactly one page.
const PageSize = 4096

// register offsets in the adapter's MMIO window

const (
	// regGraphicsControl is the 16-bit graphics control register. Bits 8:6 hold
	// the GMS field encoding the aperture size class preallocated by the BIOS;
	// 0 means the BIOS configured no GTT memory at all.
	regGraphicsControl = 0x50

	gmsShift = 6
	gmsMask  = 0x7

	// gttTableOffset is the byte offset of the page table within the MMIO
	// window: a flat array of 8-byte little-endian entries indexed by page.
	// This is the pre-Tiger-Lake layout; Tiger Lake moved the table to the
	// start of a dedicated BAR.
	gttTableOffset = 0x800000
)

// apertureSizeForClass maps the GMS size class to the aperture size in bytes.
// Class 0 is absent on purpose: it is a fatal misconfiguration.
var apertureSizeForClass = map[uint32]int{
	1: 128 * 1024 * 1024,
	2: 256 * 1024 * 1024,
	3: 512 * 1024 * 1024,
}

// pte is one 8-byte page-table entry. Bit 0 is the present flag; this driver
// never writes an absent entry, so even padding at image edges always resolves
// to valid memory. Bit 1 has no hardware meaning and is repurposed as a
// software-only rotation marker. The physical page address occupies the high
// bits; pages are 4K-aligned so the low 12 bits carry only flags.
type pte uint64

const (
	ptePresent pte = 1 << 0
	pteRotated pte = 1 << 1

	pteAddrMask pte = ^pte(PageSize - 1)
)

func newPte(addr hw.PhysAddr, rotated bool) pte {
	entry := pte(addr)&pteAddrMask | ptePresent
	if rotated {
		entry |= pteRotated
	}
	return entry
}

func (e pte) Address() hw.PhysAddr {
	return hw.PhysAddr(e & pteAddrMask)
}

func (e pte) Present() bool {
	return e&ptePresent != 0
}

func (e pte) Rotated() bool {
	return e&pteRotated != 0
}

func (e pte) WithRotated(rotated bool) pte {
	if rotated {
		return e | pteRotated
	}
	return e &^ pteRotated
}

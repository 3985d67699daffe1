// Package regionalloc provides the free-range allocator that backs GPU
// address-space management: a two-level segregated-fit free list over a single
// flat aperture [0, size), supporting allocate-with-alignment and
// release-back-to-pool with coalescing.
package regionalloc

import (
	"fmt"
	"math"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/gart/gttutils"
)

const (
	smallRangeSize         = 256
	secondLevelIndex uint8 = 5
	memoryClassShift       = 7
	maxMemoryClasses       = 65 - memoryClassShift
)

// RangeHandle is a numeric handle used to identify individual allocated ranges
// within an Allocator.
type RangeHandle uint64

// NoRange is the RangeHandle value that does not map to any allocated range.
const NoRange RangeHandle = 0

// ErrOutOfSpace is returned from Allocator.Allocate when no free range can
// satisfy the requested size and alignment. The caller can recover by freeing
// other ranges and retrying.
var ErrOutOfSpace = errors.New("no free range can satisfy the requested size and alignment")

var nodeAllocator = sync.Pool{
	New: func() any {
		return &rangeNode{}
	},
}

type rangeNode struct {
	offset       int
	size         int
	prevPhysical *rangeNode
	nextPhysical *rangeNode

	prevFree *rangeNode
	nextFree *rangeNode

	handle RangeHandle
}

func (n *rangeNode) MarkFree() {
	n.prevFree = nil
}

func (n *rangeNode) MarkTaken() {
	n.prevFree = n
}

func (n *rangeNode) IsFree() bool {
	return n.prevFree != n
}

// Allocator hands out non-overlapping ranges of a flat address space. It is
// not internally synchronized; the consumer must serialize access, matching
// the single-writer reality of the hardware resource it manages.
type Allocator struct {
	size int

	rangeCount        int
	freeRangeCount    int
	freeRangeSize     int
	isFreeBitmap      uint32
	memoryClasses     int
	innerIsFreeBitmap [maxMemoryClasses]uint32

	nextRangeHandle RangeHandle
	handleKey       *swiss.Map[RangeHandle, *rangeNode]
	freeList        []*rangeNode
	nullRange       *rangeNode
	tailRange       *rangeNode
}

func New() *Allocator {
	return &Allocator{}
}

func (a *Allocator) allocateNode() *rangeNode {
	n := nodeAllocator.Get().(*rangeNode)
	n.offset = 0
	n.size = 0
	n.prevPhysical = nil
	n.nextPhysical = nil
	n.nextFree = nil
	n.prevFree = nil
	n.handle = RangeHandle(atomic.AddUint64((*uint64)(&a.nextRangeHandle), 1))
	a.handleKey.Put(n.handle, n)
	return n
}

func (a *Allocator) freeNode(n *rangeNode) {
	a.handleKey.Delete(n.handle)
	nodeAllocator.Put(n)
}

func (a *Allocator) getNode(handle RangeHandle) (*rangeNode, error) {
	node, ok := a.handleKey.Get(handle)
	if !ok {
		return nil, errors.New("received a handle that was incompatible with this allocator")
	}
	return node, nil
}

// Init must be called before the Allocator is used. The allocator manages the
// address range [0, size) as a single initially-free region.
func (a *Allocator) Init(size int) {
	a.size = size
	a.handleKey = swiss.NewMap[RangeHandle, *rangeNode](42)

	a.nullRange = a.allocateNode()
	a.nullRange.size = size
	a.nullRange.MarkFree()
	a.tailRange = a.nullRange
	memoryClass := a.sizeToMemoryClass(size)
	sli := a.sizeToSecondIndex(size, memoryClass)

	listSize := 1
	sliMask := int(uint(1) << secondLevelIndex)
	if memoryClass != 0 {
		listSize = int(memoryClass-1)*sliMask + int(sli+1)
	}

	listSize += 4

	a.memoryClasses = int(memoryClass + 2)
	a.freeList = make([]*rangeNode, listSize)
}

// Size retrieves the size in bytes that the allocator was initialized with.
func (a *Allocator) Size() int { return a.size }

// RangeCount returns the number of allocated ranges currently live.
func (a *Allocator) RangeCount() int {
	return a.rangeCount
}

// SumFreeSize returns the number of free bytes in the managed address space.
func (a *Allocator) SumFreeSize() int {
	return a.freeRangeSize + a.nullRange.size
}

// FreeRangeCount returns the number of unique free regions. Adjacent free
// regions are always merged, so this is also the fragmentation count.
func (a *Allocator) FreeRangeCount() int {
	count := a.freeRangeCount
	if a.nullRange.size > 0 {
		count++
	}
	return count
}

// IsEmpty returns true if no ranges are currently allocated.
func (a *Allocator) IsEmpty() bool {
	return a.nullRange.offset == 0
}

func (a *Allocator) sizeToMemoryClass(size int) uint8 {
	if size > smallRangeSize {
		mostSignificantBit := uint8(63 - bits.LeadingZeros64(uint64(size)))
		return mostSignificantBit - memoryClassShift
	}

	return 0
}

func (a *Allocator) sizeToSecondIndex(size int, memoryClass uint8) uint16 {
	if memoryClass != 0 {
		mask := uint(1) << secondLevelIndex
		indexVal := uint(size) >> (memoryClass + memoryClassShift - secondLevelIndex)
		return uint16(indexVal ^ mask)
	}

	return uint16((size - 1) / 64)
}

func (a *Allocator) getListIndexFromSize(size int) int {
	memoryClass := a.sizeToMemoryClass(size)
	secondIndex := a.sizeToSecondIndex(size, memoryClass)
	return a.getListIndex(memoryClass, secondIndex)
}

func (a *Allocator) getListIndex(memoryClass uint8, secondIndex uint16) int {
	if memoryClass == 0 {
		return int(secondIndex)
	}

	i := uint32(memoryClass-1)*uint32(uint(1)<<secondLevelIndex) + uint32(secondIndex)

	return int(i) + 4
}

// Allocate claims a free range of at least size bytes whose offset is a
// multiple of alignment. It returns the handle identifying the range and its
// byte offset within the managed space. When no free range fits, the returned
// error wraps ErrOutOfSpace.
func (a *Allocator) Allocate(size int, alignment uint) (RangeHandle, int, error) {
	if size < 1 {
		return NoRange, 0, errors.Errorf("invalid allocation size: %d", size)
	}
	if err := gttutils.CheckPow2(alignment, "allocation alignment"); err != nil {
		return NoRange, 0, err
	}

	gttutils.DebugValidate(a)

	if size > a.SumFreeSize() {
		return NoRange, 0, errors.Wrapf(ErrOutOfSpace, "requested %d bytes with %d free", size, a.SumFreeSize())
	}

	var offset int

	// No free ranges outside the tail: only the null range can serve.
	if a.freeRangeCount == 0 {
		if a.checkRange(a.nullRange, len(a.freeList), size, alignment, &offset) {
			return a.commitRange(a.nullRange, offset, size)
		}
		return NoRange, 0, errors.Wrapf(ErrOutOfSpace, "requested %d bytes with %d free", size, a.SumFreeSize())
	}

	// Round up to the next bucket so the first candidate is guaranteed large
	// enough even after alignment.
	sizeForNextList := size

	smallSizeStep := smallRangeSize / 4
	if size > smallRangeSize {
		mostSignificantBit := 63 - bits.LeadingZeros64(uint64(size))
		sizeForNextList += int(uint(1) << (mostSignificantBit - int(secondLevelIndex)))
	} else if size > smallRangeSize-smallSizeStep {
		sizeForNextList = smallRangeSize + 1
	} else {
		sizeForNextList += smallSizeStep
	}

	// Check the larger bucket first
	nextListNode, nextListIndex := a.findFreeRange(sizeForNextList)
	doFullSearch := false

	for nextListNode != nil {
		doFullSearch = true
		if a.checkRange(nextListNode, nextListIndex, size, alignment, &offset) {
			return a.commitRange(nextListNode, offset, size)
		}

		nextListNode = nextListNode.nextFree
	}

	// If that failed, check the null range
	if a.checkRange(a.nullRange, len(a.freeList), size, alignment, &offset) {
		return a.commitRange(a.nullRange, offset, size)
	}

	// Check the best fit bucket
	prevListNode, prevListIndex := a.findFreeRange(size)

	for prevListNode != nil {
		if a.checkRange(prevListNode, prevListIndex, size, alignment, &offset) {
			return a.commitRange(prevListNode, offset, size)
		}

		prevListNode = prevListNode.nextFree
	}

	if !doFullSearch {
		return NoRange, 0, errors.Wrapf(ErrOutOfSpace, "requested %d bytes with %d free", size, a.SumFreeSize())
	}

	// Worst case, a full search has to be done
	for nextListIndex++; nextListIndex < len(a.freeList); nextListIndex++ {
		nextListNode = a.freeList[nextListIndex]
		for nextListNode != nil {
			if a.checkRange(nextListNode, nextListIndex, size, alignment, &offset) {
				return a.commitRange(nextListNode, offset, size)
			}

			nextListNode = nextListNode.nextFree
		}
	}

	return NoRange, 0, errors.Wrapf(ErrOutOfSpace, "requested %d bytes with %d free", size, a.SumFreeSize())
}

func (a *Allocator) checkRange(
	node *rangeNode,
	listIndex int,
	size int,
	alignment uint,
	offset *int,
) bool {
	if !node.IsFree() {
		panic(fmt.Sprintf("range at offset %d is already taken", node.offset))
	}

	alignedOffset := gttutils.AlignUp(node.offset, alignment)

	if node.size < size+alignedOffset-node.offset {
		return false
	}

	*offset = alignedOffset

	// Place the node at the start of its list if it's a normal node
	if listIndex != len(a.freeList) && node.prevFree != nil {
		node.prevFree.nextFree = node.nextFree
		if node.nextFree != nil {
			node.nextFree.prevFree = node.prevFree
		}

		node.prevFree = nil
		node.nextFree = a.freeList[listIndex]
		a.freeList[listIndex] = node
		if node.nextFree != nil {
			node.nextFree.prevFree = node
		}
	}

	return true
}

func (a *Allocator) findFreeRange(size int) (*rangeNode, int) {
	memoryClass := a.sizeToMemoryClass(size)
	innerFreeMap := a.innerIsFreeBitmap[memoryClass] & (math.MaxUint32 << a.sizeToSecondIndex(size, memoryClass))

	if innerFreeMap == 0 {
		// Check higher levels for available ranges
		freeMap := a.isFreeBitmap & (math.MaxUint32 << (memoryClass + 1))
		if freeMap == 0 {
			return nil, 0
		}

		// Find lowest free region
		memoryClass = uint8(bits.TrailingZeros64(uint64(freeMap)))
		innerFreeMap = a.innerIsFreeBitmap[memoryClass]
		if innerFreeMap == 0 {
			panic("free bitmap is in an invalid state")
		}
	}

	// Find lowest free subregion
	listIndex := a.getListIndex(memoryClass, uint16(bits.TrailingZeros64(uint64(innerFreeMap))))
	if a.freeList[listIndex] == nil {
		panic(fmt.Sprintf("free list index %d was listed as having free ranges, but no ranges were in the free list", listIndex))
	}

	return a.freeList[listIndex], listIndex
}

func (a *Allocator) commitRange(currentNode *rangeNode, offset int, size int) (RangeHandle, int, error) {
	if currentNode.offset > offset {
		return NoRange, 0, errors.New("the chosen free range is incompatible with the chosen offset")
	}

	if currentNode != a.nullRange {
		a.removeFreeRange(currentNode)
	}

	missingAlignment := offset - currentNode.offset

	// Append missing alignment to the previous node or create a new one
	if missingAlignment != 0 {
		prevNode := currentNode.prevPhysical

		if prevNode == nil {
			return NoRange, 0, errors.New("somehow had missing alignment at offset 0")
		}

		if prevNode.IsFree() {
			oldListIndex := a.getListIndexFromSize(prevNode.size)
			prevNode.size += missingAlignment

			// If the new size moves the node to another bucket
			if oldListIndex != a.getListIndexFromSize(prevNode.size) {
				prevNode.size -= missingAlignment
				a.removeFreeRange(prevNode)

				prevNode.size += missingAlignment
				a.insertFreeRange(prevNode)
			} else {
				a.freeRangeSize += missingAlignment
			}
		} else {
			newNode := a.allocateNode()
			currentNode.prevPhysical = newNode
			prevNode.nextPhysical = newNode
			newNode.prevPhysical = prevNode
			newNode.nextPhysical = currentNode
			newNode.size = missingAlignment
			newNode.offset = currentNode.offset
			newNode.MarkTaken()

			a.insertFreeRange(newNode)
		}

		currentNode.size -= missingAlignment
		currentNode.offset += missingAlignment
	}

	if currentNode.size == size {
		if currentNode == a.nullRange {
			// Set up a new null range
			a.nullRange = a.allocateNode()
			a.nullRange.size = 0
			a.nullRange.offset = currentNode.offset + size
			a.nullRange.prevPhysical = currentNode
			a.nullRange.nextPhysical = nil
			a.nullRange.MarkFree()
			a.nullRange.prevFree = nil
			a.nullRange.nextFree = nil
			currentNode.nextPhysical = a.nullRange
			currentNode.MarkTaken()
		}
	} else if currentNode.size < size {
		return NoRange, 0, errors.New("the chosen free range is too small for the requested allocation")
	} else {
		// Split off a new free node for the remainder
		newNode := a.allocateNode()
		newNode.size = currentNode.size - size
		newNode.offset = currentNode.offset + size
		newNode.prevPhysical = currentNode
		newNode.nextPhysical = currentNode.nextPhysical
		currentNode.nextPhysical = newNode
		currentNode.size = size

		if currentNode == a.nullRange {
			a.nullRange = newNode
			a.nullRange.MarkFree()
			a.nullRange.nextFree = nil
			a.nullRange.prevFree = nil
			currentNode.MarkTaken()
		} else {
			newNode.nextPhysical.prevPhysical = newNode
			newNode.MarkTaken()
			a.insertFreeRange(newNode)
		}
	}

	a.rangeCount++

	return currentNode.handle, currentNode.offset, nil
}

// Free releases an allocated range back to the pool, merging it with free
// physical neighbors.
func (a *Allocator) Free(handle RangeHandle) error {
	node, err := a.getNode(handle)
	if err != nil {
		return err
	}
	if node.IsFree() {
		return errors.New("range is already free")
	}

	next := node.nextPhysical
	a.rangeCount--

	// Try merging
	prev := node.prevPhysical
	if prev != nil && prev.IsFree() {
		a.removeFreeRange(prev)
		a.mergeRange(node, prev)
	}

	if !next.IsFree() {
		a.insertFreeRange(node)
	} else if next == a.nullRange {
		a.mergeRange(a.nullRange, node)
	} else {
		a.removeFreeRange(next)
		a.mergeRange(next, node)

		a.insertFreeRange(next)
	}

	return nil
}

// RangeOffset returns the byte offset of an allocated range.
func (a *Allocator) RangeOffset(handle RangeHandle) (int, error) {
	node, err := a.getNode(handle)
	if err != nil {
		return 0, err
	}

	return node.offset, nil
}

func (a *Allocator) removeFreeRange(node *rangeNode) {
	if node == a.nullRange {
		panic("cannot remove the null range")
	}
	if !node.IsFree() {
		panic("provided range is not free")
	}

	// Remove from the free list chain
	if node.nextFree != nil {
		node.nextFree.prevFree = node.prevFree
	}
	if node.prevFree != nil {
		node.prevFree.nextFree = node.nextFree
	} else {
		memClass := a.sizeToMemoryClass(node.size)
		secondIndex := a.sizeToSecondIndex(node.size, memClass)
		index := a.getListIndex(memClass, secondIndex)

		if a.freeList[index] != node {
			panic("range was not in the free list at the expected location")
		}
		a.freeList[index] = node.nextFree
		if node.nextFree == nil {
			a.innerIsFreeBitmap[memClass] &= ^(1 << secondIndex)
			if a.innerIsFreeBitmap[memClass] == 0 {
				a.isFreeBitmap &= ^(1 << memClass)
			}
		}
	}

	// Set up the node for use
	node.MarkTaken()
	a.freeRangeCount--
	a.freeRangeSize -= node.size
}

func (a *Allocator) insertFreeRange(node *rangeNode) {
	if node == a.nullRange {
		panic("cannot insert the null range")
	}

	if node.IsFree() {
		panic("range is already free")
	}

	memClass := a.sizeToMemoryClass(node.size)
	secondIndex := a.sizeToSecondIndex(node.size, memClass)
	index := a.getListIndex(memClass, secondIndex)

	if index >= len(a.freeList) {
		panic("invalid free list index found for range")
	}

	node.prevFree = nil
	node.nextFree = a.freeList[index]
	a.freeList[index] = node
	if node.nextFree != nil {
		node.nextFree.prevFree = node
	} else {
		a.innerIsFreeBitmap[memClass] |= 1 << secondIndex
		a.isFreeBitmap |= 1 << memClass
	}
	a.freeRangeCount++
	a.freeRangeSize += node.size
}

func (a *Allocator) mergeRange(node *rangeNode, prev *rangeNode) {
	if node.prevPhysical != prev {
		panic("cannot merge separate physical regions")
	}
	if prev.IsFree() {
		panic("cannot merge a range that belongs to the free list")
	}

	node.offset = prev.offset
	node.size += prev.size
	node.prevPhysical = prev.prevPhysical
	if node.prevPhysical != nil {
		node.prevPhysical.nextPhysical = node
	} else {
		a.tailRange = node
	}

	a.freeNode(prev)
}

// VisitAllRanges calls the provided callback once for each allocated and free
// region in the managed space, from the highest offset down.
func (a *Allocator) VisitAllRanges(handleRange func(handle RangeHandle, offset int, size int, free bool) error) error {
	for node := a.nullRange; node != nil; node = node.prevPhysical {
		err := handleRange(node.handle, node.offset, node.size, node.IsFree())
		if err != nil {
			return err
		}
	}

	return nil
}

// Clear instantly frees all allocated ranges.
func (a *Allocator) Clear() {
	a.rangeCount = 0
	a.freeRangeCount = 0
	a.freeRangeSize = 0
	a.isFreeBitmap = 0
	a.nullRange.offset = 0
	a.nullRange.size = a.size
	node := a.nullRange.prevPhysical
	a.nullRange.prevPhysical = nil
	a.tailRange = a.nullRange

	for node != nil {
		prev := node.prevPhysical
		a.freeNode(node)
		node = prev
	}

	a.freeList = make([]*rangeNode, len(a.freeList))
	a.innerIsFreeBitmap = [maxMemoryClasses]uint32{}
}

// AddDetailedStatistics sums this allocator's range statistics into the
// provided gttutils.DetailedStatistics object.
func (a *Allocator) AddDetailedStatistics(stats *gttutils.DetailedStatistics) {
	stats.ApertureCount++
	stats.ApertureBytes += a.size
	if a.nullRange.size > 0 {
		stats.AddUnusedRange(a.nullRange.size)
	}

	for node := a.nullRange.prevPhysical; node != nil; node = node.prevPhysical {
		if node.IsFree() {
			stats.AddUnusedRange(node.size)
		} else {
			stats.AddRegion(node.size)
		}
	}
}

// AddStatistics sums this allocator's range statistics into the provided
// gttutils.Statistics object.
func (a *Allocator) AddStatistics(stats *gttutils.Statistics) {
	stats.ApertureCount++
	stats.RegionCount += a.rangeCount
	stats.ApertureBytes += a.size
	stats.RegionBytes += a.size - a.SumFreeSize()
}

// RangesJsonData populates a json object with the full allocated/free map of
// the managed space.
func (a *Allocator) RangesJsonData(json jwriter.ObjectState) {
	json.Name("TotalBytes").Int(a.size)
	json.Name("UnusedBytes").Int(a.SumFreeSize())
	json.Name("RangeCount").Int(a.rangeCount)

	arrayState := json.Name("Ranges").Array()
	defer arrayState.End()

	_ = a.VisitAllRanges(func(handle RangeHandle, offset int, size int, free bool) error {
		if size == 0 {
			return nil
		}

		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Offset").Int(offset)
		obj.Name("Size").Int(size)
		obj.Name("Free").Bool(free)
		return nil
	})
}

// Validate performs internal consistency checks on the allocator's free lists
// and physical chain. When the implementation is functioning correctly, it
// should not be possible for this method to return an error.
func (a *Allocator) Validate() error {
	if a.SumFreeSize() > a.Size() {
		return errors.New("invalid allocator free size")
	}

	calculatedSize := a.nullRange.size
	calculatedFreeSize := a.nullRange.size
	var allocCount, freeCount, freeListCount int

	// Check integrity of the free lists
	for listIndex := 0; listIndex < len(a.freeList); listIndex++ {
		node := a.freeList[listIndex]
		if node == nil {
			continue
		}

		if !node.IsFree() {
			return errors.Errorf("range at offset %d is in the free list but is not free", node.offset)
		}

		if node.prevFree != nil {
			return errors.Errorf("range at offset %d is the head of a free list but has a previous range", node.offset)
		}

		freeListCount++
		for node.nextFree != nil {
			if !node.nextFree.IsFree() {
				return errors.Errorf("range at offset %d is in the free list but it is not free", node.nextFree.offset)
			}
			if node.nextFree.prevFree != node {
				return errors.Errorf("range at offset %d lists the range at offset %d as its next range, but the reverse reference is broken", node.offset, node.nextFree.offset)
			}

			freeListCount++
			node = node.nextFree
		}
	}

	if a.nullRange.nextPhysical != nil {
		return errors.New("the null range must be the tail of its physical chain")
	}

	if a.nullRange.prevPhysical != nil && a.nullRange.prevPhysical.nextPhysical != a.nullRange {
		return errors.New("the null range has a physical range before it in its chain, but the reverse reference is broken")
	}

	nextOffset := a.nullRange.offset

	for prev := a.nullRange.prevPhysical; prev != nil; prev = prev.prevPhysical {
		if prev.offset+prev.size != nextOffset {
			return errors.Errorf("physical range at offset %d does not end at the next range's start offset", prev.offset)
		}

		nextOffset = prev.offset
		calculatedSize += prev.size

		if prev.IsFree() {
			freeCount++

			calculatedFreeSize += prev.size
		} else {
			allocCount++
		}

		if prev.prevPhysical != nil && prev.prevPhysical.nextPhysical != prev {
			return errors.Errorf("range at offset %d has a previous physical range, but the reverse reference is broken", prev.offset)
		}
	}

	if freeListCount != freeCount {
		return errors.Errorf("the number of free ranges in the physical chain and the number of ranges in the free list do not match! free list size: %d, physical chain free ranges: %d", freeListCount, freeCount)
	}

	if nextOffset != 0 {
		return errors.Errorf("the first physical range should have an offset of 0, but instead it has an offset of %d", nextOffset)
	}

	if calculatedSize != a.size {
		return errors.Errorf("the full size of the allocator is %d, but the ranges only added up to %d", a.size, calculatedSize)
	}

	if calculatedFreeSize != a.SumFreeSize() {
		return errors.Errorf("the free size of the allocator is %d, but the free ranges only added up to %d", a.SumFreeSize(), calculatedFreeSize)
	}

	if allocCount != a.rangeCount {
		return errors.Errorf("the range count of the allocator is %d, but the taken ranges only added up to %d", a.rangeCount, allocCount)
	}

	if freeCount != a.freeRangeCount {
		return errors.Errorf("the free range count of the allocator is %d, but there were only %d free ranges", a.freeRangeCount, freeCount)
	}

	return nil
}

package source

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

const (
	// DefaultBufferFraction is the share of physical memory given to all rings.
	DefaultBufferFraction = 0.01

	minRingBytes = 4 << 20
	maxRingBytes = 2 << 30
)

// RingLimits is the per-thread AF_PACKET ring budget.
type RingLimits struct {
	PerThreadBytes int
}

// RingLayout is an AF_PACKET PACKET_MMAP ring geometry.
type RingLayout struct {
	FrameSize int
	BlockSize int
	NumBlocks int
}

// PhysicalMemory returns the total physical memory in bytes.
func PhysicalMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("read physical memory: %w", err)
	}
	return vm.Total, nil
}

// NewRingLimits splits fraction × physMem evenly across threads and clamps
// each share to [4 MiB, 2 GiB].
func NewRingLimits(fraction float64, threads int, physMem uint64) RingLimits {
	if fraction <= 0 {
		fraction = DefaultBufferFraction
	}
	if threads < 1 {
		threads = 1
	}
	per := uint64(fraction*float64(physMem)) / uint64(threads)
	if per < minRingBytes {
		per = minRingBytes
	}
	if per > maxRingBytes {
		per = maxRingBytes
	}
	return RingLimits{PerThreadBytes: int(per)}
}

// Layout recalculates the frame size, block size, and number of blocks to
// meet PACKET_MMAP alignment rules within the per-thread budget:
//   - frameSize is a multiple of TPACKET_ALIGNMENT (16)
//   - blockSize is a multiple of pageSize and of frameSize
//   - blockSize * numBlocks approximates the budget
func (l RingLimits) Layout(snapLen, pageSize int) (RingLayout, error) {
	const tpacketAlignment = 16
	const tpacketHdrLen = 52

	if l.PerThreadBytes <= 0 {
		return RingLayout{}, fmt.Errorf("ring budget must be positive, got %d", l.PerThreadBytes)
	}
	if snapLen <= 0 {
		return RingLayout{}, fmt.Errorf("snapLen must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return RingLayout{}, fmt.Errorf("pageSize must be positive and multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize := ((tpacketHdrLen + snapLen + tpacketAlignment - 1) / tpacketAlignment) * tpacketAlignment

	blockSize := lcm(pageSize, frameSize)
	const maxBlockSize = 4 << 20
	if blockSize > maxBlockSize {
		// page-align the frame so any whole number of frames is page-aligned too
		frameSize = ((frameSize + pageSize - 1) / pageSize) * pageSize
		framesPerBlock := maxBlockSize / frameSize
		if framesPerBlock < 1 {
			framesPerBlock = 1
		}
		blockSize = framesPerBlock * frameSize
	}

	numBlocks := l.PerThreadBytes / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return RingLayout{FrameSize: frameSize, BlockSize: blockSize, NumBlocks: numBlocks}, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return (a / gcd(a, b)) * b
}

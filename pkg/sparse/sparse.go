// Package sparse implements the Android sparse image format: parsing,
// logical size computation, and re-chunking an image into several
// smaller sparse files that fit a device's download limit.
package sparse

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Magic identifies a sparse image file header.
const Magic uint32 = 0xed26ff3a

// Chunk type tags, from the sparse format specification.
const (
	ChunkRaw      uint16 = 0xCAC1
	ChunkFill     uint16 = 0xCAC2
	ChunkDontCare uint16 = 0xCAC3
	ChunkCRC32    uint16 = 0xCAC4
)

const (
	fileHeaderSize  = 28
	chunkHeaderSize = 12
	majorVersion    = 1
	minorVersion    = 0
)

// Chunk is one run of blocks in a sparse image.
type Chunk struct {
	// Type is one of the Chunk* tags.
	Type uint16
	// Blocks is the number of output blocks the chunk expands to.
	Blocks uint32
	// Data holds the raw payload (Blocks*BlockSize bytes) for raw
	// chunks, or the 4-byte fill pattern for fill chunks. Nil for
	// don't-care chunks.
	Data []byte
}

// File is a parsed sparse image.
type File struct {
	BlockSize   uint32
	TotalBlocks uint32
	Chunks      []Chunk
}

// IsSparse reports whether data begins with a sparse image header.
func IsSparse(data []byte) bool {
	return len(data) >= fileHeaderSize && binary.LittleEndian.Uint32(data) == Magic
}

// Parse decodes a sparse image. CRC chunks are validated structurally
// and dropped; the checksum itself is not verified.
func Parse(data []byte) (*File, error) {
	if !IsSparse(data) {
		return nil, fmt.Errorf("sparse: bad magic")
	}
	hdrSize := binary.LittleEndian.Uint16(data[8:])
	chunkHdrSize := binary.LittleEndian.Uint16(data[10:])
	if hdrSize < fileHeaderSize || chunkHdrSize < chunkHeaderSize {
		return nil, fmt.Errorf("sparse: bad header sizes %d/%d", hdrSize, chunkHdrSize)
	}
	f := &File{
		BlockSize:   binary.LittleEndian.Uint32(data[12:]),
		TotalBlocks: binary.LittleEndian.Uint32(data[16:]),
	}
	totalChunks := binary.LittleEndian.Uint32(data[20:])
	if f.BlockSize == 0 || f.BlockSize%4 != 0 {
		return nil, fmt.Errorf("sparse: bad block size %d", f.BlockSize)
	}

	off := int64(hdrSize)
	var blocks uint64
	for i := uint32(0); i < totalChunks; i++ {
		if off+int64(chunkHdrSize) > int64(len(data)) {
			return nil, fmt.Errorf("sparse: truncated chunk header %d", i)
		}
		ctype := binary.LittleEndian.Uint16(data[off:])
		csz := binary.LittleEndian.Uint32(data[off+4:])
		totalSz := binary.LittleEndian.Uint32(data[off+8:])
		if int64(totalSz) < int64(chunkHdrSize) || off+int64(totalSz) > int64(len(data)) {
			return nil, fmt.Errorf("sparse: truncated chunk %d", i)
		}
		payload := data[off+int64(chunkHdrSize) : off+int64(totalSz)]

		switch ctype {
		case ChunkRaw:
			if int64(len(payload)) != int64(csz)*int64(f.BlockSize) {
				return nil, fmt.Errorf("sparse: raw chunk %d payload size %d != %d blocks", i, len(payload), csz)
			}
			f.Chunks = append(f.Chunks, Chunk{Type: ChunkRaw, Blocks: csz, Data: payload})
		case ChunkFill:
			if len(payload) != 4 {
				return nil, fmt.Errorf("sparse: fill chunk %d payload size %d", i, len(payload))
			}
			f.Chunks = append(f.Chunks, Chunk{Type: ChunkFill, Blocks: csz, Data: payload})
		case ChunkDontCare:
			f.Chunks = append(f.Chunks, Chunk{Type: ChunkDontCare, Blocks: csz})
		case ChunkCRC32:
			if len(payload) != 4 {
				return nil, fmt.Errorf("sparse: crc chunk %d payload size %d", i, len(payload))
			}
			// Dropped; flashing does not carry the host-side checksum.
		default:
			return nil, fmt.Errorf("sparse: unknown chunk type %#x", ctype)
		}
		if ctype != ChunkCRC32 {
			blocks += uint64(csz)
		}
		off += int64(totalSz)
	}
	if blocks != uint64(f.TotalBlocks) {
		return nil, fmt.Errorf("sparse: chunks cover %d blocks, header declares %d", blocks, f.TotalBlocks)
	}
	return f, nil
}

// DataSize returns the logical (expanded) image length in bytes.
func (f *File) DataSize() int64 {
	return int64(f.TotalBlocks) * int64(f.BlockSize)
}

// encodedSize returns the byte length of the marshaled file.
func (f *File) encodedSize() int64 {
	sz := int64(fileHeaderSize)
	for _, c := range f.Chunks {
		sz += chunkHeaderSize + int64(len(c.Data))
	}
	return sz
}

// Marshal encodes the file back into sparse image bytes.
func (f *File) Marshal() []byte {
	out := make([]byte, 0, f.encodedSize())
	var hdr [fileHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], Magic)
	binary.LittleEndian.PutUint16(hdr[4:], majorVersion)
	binary.LittleEndian.PutUint16(hdr[6:], minorVersion)
	binary.LittleEndian.PutUint16(hdr[8:], fileHeaderSize)
	binary.LittleEndian.PutUint16(hdr[10:], chunkHeaderSize)
	binary.LittleEndian.PutUint32(hdr[12:], f.BlockSize)
	binary.LittleEndian.PutUint32(hdr[16:], f.TotalBlocks)
	binary.LittleEndian.PutUint32(hdr[20:], uint32(len(f.Chunks)))
	// image_checksum left zero.
	out = append(out, hdr[:]...)

	var chdr [chunkHeaderSize]byte
	for _, c := range f.Chunks {
		binary.LittleEndian.PutUint16(chdr[0:], c.Type)
		binary.LittleEndian.PutUint16(chdr[2:], 0)
		binary.LittleEndian.PutUint32(chdr[4:], c.Blocks)
		binary.LittleEndian.PutUint32(chdr[8:], uint32(chunkHeaderSize+len(c.Data)))
		out = append(out, chdr[:]...)
		out = append(out, c.Data...)
	}
	return out
}

// Resparse splits a sparse image into complete sparse files, each no
// larger than limit bytes when encoded. Blocks outside a segment are
// covered by don't-care runs so every output file describes the whole
// partition and chunk order matches device write order.
func Resparse(data []byte, limit int64) ([][]byte, error) {
	if limit <= 0 || limit > math.MaxUint32 {
		return nil, fmt.Errorf("sparse: invalid max size %d", limit)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Worst-case fixed cost of one output file: its header plus a
	// leading and trailing don't-care chunk.
	overhead := int64(fileHeaderSize + 2*chunkHeaderSize)
	if limit < overhead+chunkHeaderSize+int64(f.BlockSize) {
		return nil, fmt.Errorf("sparse: max size %d cannot hold a single block", limit)
	}

	var (
		out     [][]byte
		seg     []Chunk
		segSize int64  // encoded payload+header bytes of seg
		segPos  uint32 // block offset where seg starts
		pos     uint32 // block offset of the next input chunk
	)
	flush := func() {
		if len(seg) == 0 {
			return
		}
		nf := &File{BlockSize: f.BlockSize, TotalBlocks: f.TotalBlocks}
		if segPos > 0 {
			nf.Chunks = append(nf.Chunks, Chunk{Type: ChunkDontCare, Blocks: segPos})
		}
		nf.Chunks = append(nf.Chunks, seg...)
		var covered uint32 = segPos
		for _, c := range seg {
			covered += c.Blocks
		}
		if covered < f.TotalBlocks {
			nf.Chunks = append(nf.Chunks, Chunk{Type: ChunkDontCare, Blocks: f.TotalBlocks - covered})
		}
		out = append(out, nf.Marshal())
		seg = nil
		segSize = 0
	}

	budget := limit - overhead
	for _, c := range f.Chunks {
		if c.Type == ChunkDontCare {
			// A hole always breaks the segment; the next file's
			// leading don't-care re-covers it.
			flush()
			pos += c.Blocks
			continue
		}
		remaining := c
		for remaining.Blocks > 0 {
			if len(seg) == 0 {
				segPos = pos
			}
			cost := chunkHeaderSize + int64(len(remaining.Data))
			if segSize+cost <= budget {
				seg = append(seg, remaining)
				segSize += cost
				pos += remaining.Blocks
				break
			}

			// Chunk does not fit. Split it if it is divisible,
			// otherwise flush and retry in a fresh file.
			fit := remaining.Blocks
			switch remaining.Type {
			case ChunkRaw:
				avail := budget - segSize - chunkHeaderSize
				if avail < int64(f.BlockSize) {
					fit = 0
				} else {
					fit = uint32(avail / int64(f.BlockSize))
				}
			case ChunkFill:
				// A fill chunk costs 16 bytes regardless of span;
				// if it does not fit, the file is simply full.
				fit = 0
			}
			if fit == 0 {
				if len(seg) == 0 {
					return nil, fmt.Errorf("sparse: chunk cannot fit in max size %d", limit)
				}
				flush()
				continue
			}
			head := Chunk{Type: remaining.Type, Blocks: fit}
			if remaining.Type == ChunkRaw {
				head.Data = remaining.Data[:int64(fit)*int64(f.BlockSize)]
				remaining.Data = remaining.Data[int64(fit)*int64(f.BlockSize):]
			} else {
				head.Data = remaining.Data
			}
			seg = append(seg, head)
			segSize += chunkHeaderSize + int64(len(head.Data))
			pos += fit
			remaining.Blocks -= fit
			flush()
		}
	}
	flush()

	if len(out) == 0 {
		return nil, fmt.Errorf("sparse: image has no data chunks")
	}
	return out, nil
}

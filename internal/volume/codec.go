package volume

import "encoding/binary"

// Binary layout, little-endian throughout.
const (
	magic = 0x46535632 // "FSV2"

	headerBytes = 24
	entryBytes  = 16
	nodeBytes   = 4

	nameFieldBytes = 12
	maxNameBytes   = 11

	// next-pointer sentinels, carried on disk in a signed 16-bit field.
	nodeFree int16 = -1
	nodeEnd  int16 = -2
)

type header struct {
	magic      uint32
	totalBytes uint32
	blockSize  uint32
	maxFiles   uint32
	maxBlocks  uint32
}

func encodeHeader(h header, buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, h.magic)
	buf = binary.LittleEndian.AppendUint32(buf, h.totalBytes)
	buf = binary.LittleEndian.AppendUint32(buf, h.blockSize)
	buf = binary.LittleEndian.AppendUint32(buf, h.maxFiles)
	buf = binary.LittleEndian.AppendUint32(buf, h.maxBlocks)
	buf = binary.LittleEndian.AppendUint32(buf, 0) // reserved
	return buf
}

func decodeHeader(data []byte) header {
	return header{
		magic:      binary.LittleEndian.Uint32(data[0:4]),
		totalBytes: binary.LittleEndian.Uint32(data[4:8]),
		blockSize:  binary.LittleEndian.Uint32(data[8:12]),
		maxFiles:   binary.LittleEndian.Uint32(data[12:16]),
		maxBlocks:  binary.LittleEndian.Uint32(data[16:20]),
		// data[20:24] is reserved, ignored
	}
}

// entryRecord is the on-disk shape of an inode table slot.
type entryRecord struct {
	name       string // empty means free slot
	size       uint16
	firstBlock int16
}

func encodeEntry(e entryRecord, buf []byte) []byte {
	var name [nameFieldBytes]byte
	copy(name[:], e.name) // NUL-padded; truncation is caller's responsibility
	buf = append(buf, name[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, e.size)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(e.firstBlock))
	return buf
}

func decodeEntry(data []byte) entryRecord {
	name := data[0:nameFieldBytes]
	nul := nameFieldBytes
	for i, b := range name {
		if b == 0 {
			nul = i
			break
		}
	}
	size := binary.LittleEndian.Uint16(data[nameFieldBytes : nameFieldBytes+2])
	first := int16(binary.LittleEndian.Uint16(data[nameFieldBytes+2 : nameFieldBytes+4]))
	return entryRecord{name: string(name[:nul]), size: size, firstBlock: first}
}

// nodeRecord is the on-disk shape of a block-node table slot.
type nodeRecord struct {
	blockIndex int16
	next       int16
}

func encodeNode(n nodeRecord, buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(n.blockIndex))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(n.next))
	return buf
}

func decodeNode(data []byte) nodeRecord {
	return nodeRecord{
		blockIndex: int16(binary.LittleEndian.Uint16(data[0:2])),
		next:       int16(binary.LittleEndian.Uint16(data[2:4])),
	}
}

// layout holds the derived byte offsets for a given set of volume parameters.
type layout struct {
	entriesOff int64
	nodesOff   int64
	dataOff    int64
}

func computeLayout(maxFiles, maxBlocks int) layout {
	entriesOff := int64(headerBytes)
	nodesOff := entriesOff + int64(entryBytes)*int64(maxFiles)
	dataOff := nodesOff + int64(nodeBytes)*int64(maxBlocks)
	return layout{entriesOff: entriesOff, nodesOff: nodesOff, dataOff: dataOff}
}

func (l layout) entryOffset(slot int) int64 {
	return l.entriesOff + int64(slot)*int64(entryBytes)
}

func (l layout) nodeOffset(idx int) int64 {
	return l.nodesOff + int64(idx)*int64(nodeBytes)
}

func (l layout) blockOffset(blockSize, idx int) int64 {
	return l.dataOff + int64(idx)*int64(blockSize)
}

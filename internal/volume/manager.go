package volume

import (
	"github.com/sirupsen/logrus"
)

// Params are the immutable sizing parameters of a volume. They must match
// exactly between the call that created an image and every later call that
// reopens it; a mismatch reinitializes the image from scratch.
type Params struct {
	TotalBytes int
	BlockSize  int
	MaxFiles   int
	MaxBlocks  int
}

// Needed returns the minimum totalBytes this set of parameters requires.
func (p Params) Needed() int64 {
	return int64(headerBytes) +
		int64(entryBytes)*int64(p.MaxFiles) +
		int64(nodeBytes)*int64(p.MaxBlocks) +
		int64(p.BlockSize)*int64(p.MaxBlocks)
}

func (p Params) validate() error {
	if p.BlockSize <= 0 || p.MaxFiles <= 0 || p.MaxBlocks <= 0 || p.TotalBytes <= 0 {
		return newErr(KindInvalidArgument, "all volume parameters must be positive")
	}
	if int64(p.TotalBytes) < p.Needed() {
		return newErrf(KindInvalidArgument,
			"totalBytes %d too small for blockSize=%d maxFiles=%d maxBlocks=%d (need %d)",
			p.TotalBytes, p.BlockSize, p.MaxFiles, p.MaxBlocks, p.Needed())
	}
	return nil
}

// core implements the five volume operations without any locking. It is
// only safe to call from a single goroutine at a time; the concurrency gate
// (gate.go) is what callers should actually construct.
type core struct {
	path    string
	params  Params
	layout  layout
	dev     *blockDevice
	entries *entryTable
	nodes   *nodeTable
	log     *logrus.Entry
}

func openCore(path string, p Params, log *logrus.Entry) (*core, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	dev, existed, err := openBlockDevice(path)
	if err != nil {
		return nil, wrapIO(err, "open backing file")
	}

	origSize, err := dev.size()
	if err != nil {
		return nil, wrapIO(err, "stat backing file")
	}

	c := &core{
		path:   path,
		params: p,
		layout: computeLayout(p.MaxFiles, p.MaxBlocks),
		dev:    dev,
		log:    log,
	}

	if err := dev.ensureSize(int64(p.TotalBytes)); err != nil {
		return nil, wrapIO(err, "extend backing file")
	}

	canResume := existed && origSize >= headerBytes
	if canResume {
		canResume, err = c.headerMatches()
		if err != nil {
			return nil, err
		}
	}

	if canResume {
		c.entries, err = c.loadEntries()
		if err != nil {
			return nil, err
		}
		c.nodes, err = c.loadNodes()
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	if err := c.initializeEmpty(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *core) headerMatches() (bool, error) {
	buf := make([]byte, headerBytes)
	if err := c.dev.readAt(0, buf); err != nil {
		return false, wrapIO(err, "read header")
	}
	h := decodeHeader(buf)
	return h.magic == magic &&
		int(h.totalBytes) == c.params.TotalBytes &&
		int(h.blockSize) == c.params.BlockSize &&
		int(h.maxFiles) == c.params.MaxFiles &&
		int(h.maxBlocks) == c.params.MaxBlocks, nil
}

func (c *core) initializeEmpty() error {
	c.entries = newEntryTable(c.params.MaxFiles)
	c.nodes = newNodeTable(c.params.MaxBlocks)

	if err := c.writeHeader(); err != nil {
		return err
	}
	if err := c.flushAllEntries(); err != nil {
		return err
	}
	if err := c.flushAllNodes(); err != nil {
		return err
	}
	if err := c.zeroAllData(); err != nil {
		return err
	}
	return nil
}

// ======================== public operations ========================

func (c *core) createFile(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if c.entries.findByName(name) >= 0 {
		return newErrf(KindAlreadyExists, "file %q already exists", name)
	}
	slot := c.entries.findFree()
	if slot < 0 {
		return newErr(KindNoSpace, "inode table is full")
	}
	prev := c.entries.records[slot]
	c.entries.records[slot] = entryRecord{name: name, size: 0, firstBlock: nodeFree}
	if err := c.flushEntry(slot); err != nil {
		c.entries.records[slot] = prev
		return err
	}
	return nil
}

// deleteFile commits the deletion by flushing the cleared entry first, then
// reclaims the old chain best-effort, mirroring writeFile's commit-then-
// reclaim ordering: once the entry is durably cleared the file is gone from
// the caller's perspective, so a failure while zeroing/freeing its old
// blocks is a tolerable leak rather than something that should leave the
// entry pointing at a chain the caller can no longer reach.
func (c *core) deleteFile(name string) error {
	idx := c.entries.findByName(name)
	if idx < 0 {
		return newErrf(KindNotFound, "file %q not found", name)
	}
	oldEntry := c.entries.records[idx]
	oldHead := oldEntry.firstBlock

	c.entries.records[idx] = entryRecord{firstBlock: nodeFree}
	if err := c.flushEntry(idx); err != nil {
		c.entries.records[idx] = oldEntry
		return err
	}

	if oldHead >= 0 {
		visited, err := c.nodes.followChain(int(oldHead))
		if err != nil {
			c.log.WithError(err).WithField("file", name).Warn("old chain corrupt after delete commit, leaking blocks")
			return err
		}
		for _, b := range visited {
			if err := c.zeroBlock(b); err != nil {
				c.log.WithError(err).WithField("file", name).Warn("failed to zero reclaimed block, leaking it")
				return err
			}
		}
		if _, err := c.nodes.freeChain(int(oldHead)); err != nil {
			c.log.WithError(err).WithField("file", name).Warn("failed to free old chain, leaking it")
			return err
		}
		if err := c.flushAllNodes(); err != nil {
			c.log.WithError(err).WithField("file", name).Warn("failed to flush nodes after reclaim")
			return err
		}
	}
	return nil
}

// writeFile replaces a file's contents. Input longer than 65535 bytes is
// silently truncated to its first 65535 bytes rather than rejected.
func (c *core) writeFile(name string, data []byte) error {
	idx := c.entries.findByName(name)
	if idx < 0 {
		return newErrf(KindNotFound, "file %q not found", name)
	}

	newSize := len(data)
	if newSize > 0xFFFF {
		newSize = 0xFFFF
	}
	need := 0
	if newSize > 0 {
		need = ceilDiv(newSize, c.params.BlockSize)
	}

	if c.nodes.countFree() < need {
		return newErrf(KindNoSpace, "need %d free blocks, have %d", need, c.nodes.countFree())
	}

	indices, err := c.nodes.allocateChain(need)
	if err != nil {
		return err
	}

	rollback := func() {
		for _, idx := range indices {
			_ = c.zeroBlock(idx) // best-effort; secondary I/O errors during cleanup are a tolerable leak
		}
		c.nodes.release(indices)
		_ = c.flushAllNodes()
	}

	written := 0
	for _, blockIdx := range indices {
		chunk := data[written:min(written+c.params.BlockSize, newSize)]
		if err := c.writeBlock(blockIdx, chunk); err != nil {
			rollback()
			return err
		}
		written += len(chunk)
	}

	if err := c.flushAllNodes(); err != nil {
		rollback()
		return err
	}

	var newHead int16 = nodeFree
	if len(indices) > 0 {
		newHead = int16(indices[0])
	}

	oldHead := c.entries.records[idx].firstBlock
	oldEntry := c.entries.records[idx]
	c.entries.records[idx].size = uint16(newSize)
	c.entries.records[idx].firstBlock = newHead

	if err := c.flushEntry(idx); err != nil {
		c.entries.records[idx] = oldEntry
		rollback()
		return err
	}

	// Commit point: the new content is now observable. Reclaiming the old
	// chain from here on is best-effort; its loss is a tolerable leak.
	if oldHead >= 0 {
		visited, err := c.nodes.followChain(int(oldHead))
		if err != nil {
			c.log.WithError(err).WithField("file", name).Warn("old chain corrupt after commit, leaking blocks")
			return err
		}
		for _, b := range visited {
			if err := c.zeroBlock(b); err != nil {
				c.log.WithError(err).WithField("file", name).Warn("failed to zero reclaimed block, leaking it")
				return err
			}
		}
		if _, err := c.nodes.freeChain(int(oldHead)); err != nil {
			c.log.WithError(err).WithField("file", name).Warn("failed to free old chain, leaking it")
			return err
		}
		if err := c.flushAllNodes(); err != nil {
			c.log.WithError(err).WithField("file", name).Warn("failed to flush nodes after reclaim")
			return err
		}
	}
	return nil
}

func (c *core) readFile(name string) ([]byte, error) {
	idx := c.entries.findByName(name)
	if idx < 0 {
		return nil, newErrf(KindNotFound, "file %q not found", name)
	}
	e := c.entries.records[idx]
	if e.size == 0 {
		return []byte{}, nil
	}
	if e.firstBlock < 0 {
		return nil, newErrf(KindCorrupt, "file %q has non-zero size with no block chain", name)
	}

	remaining := int(e.size)
	out := make([]byte, 0, remaining)
	cur := int(e.firstBlock)

	for remaining > 0 {
		if cur < 0 || cur >= len(c.nodes.records) {
			return nil, newErrf(KindCorrupt, "file %q chain index %d out of range", name, cur)
		}
		chunk := min(c.params.BlockSize, remaining)
		buf := make([]byte, chunk)
		if err := c.dev.readAt(c.layout.blockOffset(c.params.BlockSize, cur), buf); err != nil {
			return nil, wrapIO(err, "read data block")
		}
		out = append(out, buf...)
		remaining -= chunk

		if remaining == 0 {
			break
		}
		next := c.nodes.records[cur].next
		if next == nodeEnd {
			return nil, newErrf(KindCorrupt, "file %q chain ends with %d bytes unread", name, remaining)
		}
		if next < 0 {
			return nil, newErrf(KindCorrupt, "file %q has invalid chain link %d", name, next)
		}
		cur = int(next)
	}
	return out, nil
}

func (c *core) listFiles() []string {
	return c.entries.listNames()
}

// stat returns a live file's size and block count without copying its
// payload.
func (c *core) stat(name string) (size int, blocks int, err error) {
	idx := c.entries.findByName(name)
	if idx < 0 {
		return 0, 0, newErrf(KindNotFound, "file %q not found", name)
	}
	e := c.entries.records[idx]
	size = int(e.size)
	if size > 0 {
		blocks = ceilDiv(size, c.params.BlockSize)
	}
	return size, blocks, nil
}

// freeStats reports current free-block and free-slot counts. Supplemental;
// derives entirely from existing invariants, adds no persisted state.
func (c *core) freeStats() (freeBlocks int, freeSlots int) {
	freeBlocks = c.nodes.countFree()
	for i := range c.entries.records {
		if !c.entries.isLive(i) {
			freeSlots++
		}
	}
	return freeBlocks, freeSlots
}

func (c *core) close() error {
	return wrapIO(c.dev.close(), "close volume")
}

// ======================== persistence helpers ========================

func (c *core) writeHeader() error {
	h := header{
		magic:      magic,
		totalBytes: uint32(c.params.TotalBytes),
		blockSize:  uint32(c.params.BlockSize),
		maxFiles:   uint32(c.params.MaxFiles),
		maxBlocks:  uint32(c.params.MaxBlocks),
	}
	buf := encodeHeader(h, make([]byte, 0, headerBytes))
	return wrapIO(c.dev.writeAt(0, buf), "write header")
}

func (c *core) flushEntry(slot int) error {
	buf := encodeEntry(c.entries.records[slot], make([]byte, 0, entryBytes))
	return wrapIO(c.dev.writeAt(c.layout.entryOffset(slot), buf), "write entry record")
}

func (c *core) flushAllEntries() error {
	for i := range c.entries.records {
		if err := c.flushEntry(i); err != nil {
			return err
		}
	}
	return nil
}

func (c *core) loadEntries() (*entryTable, error) {
	buf := make([]byte, entryBytes*c.params.MaxFiles)
	if err := c.dev.readAt(c.layout.entriesOff, buf); err != nil {
		return nil, wrapIO(err, "read entry records")
	}
	t := &entryTable{records: make([]entryRecord, c.params.MaxFiles)}
	for i := range t.records {
		t.records[i] = decodeEntry(buf[i*entryBytes : (i+1)*entryBytes])
	}
	return t, nil
}

func (c *core) flushAllNodes() error {
	buf := make([]byte, 0, nodeBytes*c.params.MaxBlocks)
	for _, n := range c.nodes.records {
		buf = encodeNode(n, buf)
	}
	return wrapIO(c.dev.writeAt(c.layout.nodesOff, buf), "write node records")
}

func (c *core) loadNodes() (*nodeTable, error) {
	buf := make([]byte, nodeBytes*c.params.MaxBlocks)
	if err := c.dev.readAt(c.layout.nodesOff, buf); err != nil {
		return nil, wrapIO(err, "read node records")
	}
	t := &nodeTable{records: make([]nodeRecord, c.params.MaxBlocks)}
	for i := range t.records {
		t.records[i] = decodeNode(buf[i*nodeBytes : (i+1)*nodeBytes])
	}
	return t, nil
}

func (c *core) zeroAllData() error {
	zeros := make([]byte, c.params.BlockSize)
	for i := 0; i < c.params.MaxBlocks; i++ {
		if err := c.dev.writeAt(c.layout.blockOffset(c.params.BlockSize, i), zeros); err != nil {
			return wrapIO(err, "zero data block")
		}
	}
	return nil
}

func (c *core) zeroBlock(blockIndex int) error {
	zeros := make([]byte, c.params.BlockSize)
	return wrapIO(c.dev.writeAt(c.layout.blockOffset(c.params.BlockSize, blockIndex), zeros), "zero data block")
}

func (c *core) writeBlock(blockIndex int, data []byte) error {
	buf := make([]byte, c.params.BlockSize)
	copy(buf, data) // tail beyond len(data) stays zero
	return wrapIO(c.dev.writeAt(c.layout.blockOffset(c.params.BlockSize, blockIndex), buf), "write data block")
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

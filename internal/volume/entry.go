package volume

import "strings"

// entryTable is the in-memory mirror of the inode table: one fixed slot per
// possible file, free iff its name is empty.
type entryTable struct {
	records []entryRecord
}

func newEntryTable(maxFiles int) *entryTable {
	records := make([]entryRecord, maxFiles)
	for i := range records {
		records[i] = entryRecord{firstBlock: nodeFree}
	}
	return &entryTable{records: records}
}

func (t *entryTable) isLive(slot int) bool {
	return t.records[slot].name != ""
}

func (t *entryTable) findByName(name string) int {
	for i, e := range t.records {
		if e.name != "" && e.name == name {
			return i
		}
	}
	return -1
}

func (t *entryTable) findFree() int {
	for i, e := range t.records {
		if e.name == "" {
			return i
		}
	}
	return -1
}

func (t *entryTable) listNames() []string {
	names := make([]string, 0, len(t.records))
	for _, e := range t.records {
		if e.name != "" {
			names = append(names, e.name)
		}
	}
	return names
}

// validateName rejects anything that cannot be stored as a filename: empty,
// blank, too long, or containing a byte the 12-byte NUL-padded field cannot
// round-trip unambiguously.
func validateName(name string) error {
	if name == "" || strings.TrimSpace(name) == "" {
		return newErr(KindInvalidArgument, "filename is empty or blank")
	}
	if len(name) > maxNameBytes {
		return newErrf(KindInvalidArgument, "filename longer than %d bytes", maxNameBytes)
	}
	for _, b := range []byte(name) {
		if b < 0x20 || b > 0x7e {
			return newErrf(KindInvalidArgument, "filename contains non-printable byte 0x%02x", b)
		}
	}
	return nil
}

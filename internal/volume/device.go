package volume

import (
	"os"

	"github.com/pkg/errors"
)

// blockDevice is a thin wrapper around a random-access backing file of
// exactly totalBytes. All positions are absolute byte offsets from the
// start of the file.
type blockDevice struct {
	f *os.File
}

func openBlockDevice(path string) (*blockDevice, bool, error) {
	existed := true
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, false, errors.Wrapf(err, "stat %s", path)
		}
		existed = false
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, false, errors.Wrapf(err, "open %s", path)
	}
	return &blockDevice{f: f}, existed, nil
}

// ensureSize extends the backing file to at least n bytes. New bytes read
// back as zero; the file is never truncated.
func (d *blockDevice) ensureSize(n int64) error {
	stat, err := d.f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat backing file")
	}
	if stat.Size() >= n {
		return nil
	}
	if err := d.f.Truncate(n); err != nil {
		return errors.Wrap(err, "extend backing file")
	}
	return nil
}

func (d *blockDevice) size() (int64, error) {
	stat, err := d.f.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat backing file")
	}
	return stat.Size(), nil
}

func (d *blockDevice) readAt(off int64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	_, err := d.f.ReadAt(buf, off)
	if err != nil {
		return errors.Wrapf(err, "read %d bytes at offset %d", len(buf), off)
	}
	return nil
}

func (d *blockDevice) writeAt(off int64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	_, err := d.f.WriteAt(buf, off)
	if err != nil {
		return errors.Wrapf(err, "write %d bytes at offset %d", len(buf), off)
	}
	return nil
}

func (d *blockDevice) close() error {
	return errors.Wrap(d.f.Close(), "close backing file")
}

package volume

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager is the concurrency-safe facade over a volume: the five required
// operations plus the supplemental Stat/Free diagnostics. All mutating
// methods take the write side of a single fair readers/writer gate; the
// read-only methods take the read side. No method holds the gate across
// any caller-supplied callback, and there is no nested acquisition.
type Manager interface {
	CreateFile(name string) error
	DeleteFile(name string) error
	WriteFile(name string, contents []byte) error
	ReadFile(name string) ([]byte, error)
	ListFiles() []string
	Stat(name string) (size int, blocks int, err error)
	Free() (freeBlocks int, freeSlots int)
	Close() error
}

// gatedManager guards a core with a sync.RWMutex. Go's RWMutex blocks new
// readers once a writer is waiting, which is enough to keep a sustained
// read load from starving a writer indefinitely.
type gatedManager struct {
	mu sync.RWMutex
	c  *core
}

// Open opens or creates the volume image at path. See Params for the
// sizing arguments; they must match exactly to resume an existing image,
// otherwise the image is reinitialized empty.
func Open(path string, totalBytes, blockSize, maxFiles, maxBlocks int, log *logrus.Entry) (Manager, error) {
	c, err := openCore(path, Params{
		TotalBytes: totalBytes,
		BlockSize:  blockSize,
		MaxFiles:   maxFiles,
		MaxBlocks:  maxBlocks,
	}, log)
	if err != nil {
		return nil, err
	}
	return &gatedManager{c: c}, nil
}

func (g *gatedManager) CreateFile(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.c.createFile(name)
}

func (g *gatedManager) DeleteFile(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.c.deleteFile(name)
}

func (g *gatedManager) WriteFile(name string, contents []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.c.writeFile(name, contents)
}

func (g *gatedManager) ReadFile(name string) ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.c.readFile(name)
}

func (g *gatedManager) ListFiles() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.c.listFiles()
}

func (g *gatedManager) Stat(name string) (int, int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.c.stat(name)
}

func (g *gatedManager) Free() (int, int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.c.freeStats()
}

func (g *gatedManager) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.c.close()
}

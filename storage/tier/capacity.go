package tier

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/CacaoGatto/RedisGraph/internal/logger"
	"github.com/CacaoGatto/RedisGraph/internal/mmfile"
)

const arenaSuffix = ".arena"

// capacityTier carves page-aligned regions out of a single arena file and maps each
// region separately, so growing the arena never moves memory already handed out.
type capacityTier struct {
	mu   sync.Mutex
	f    *os.File
	path string
	page int
	max  int64
	dax  bool

	// end is the bump offset: everything below it has been reserved in the file.
	end int64

	// free holds released regions by span, reused LIFO before bumping.
	free map[int][]int64

	live     map[*Mem]struct{}
	liveSize int64
}

func openCapacity(dir string, maxSize int64, requireDAX bool) (*capacityTier, error) {
	if !mmfile.Supported {
		return nil, fmt.Errorf("%w: capacity tier needs mmap support", ErrTierInit)
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: capacity directory: %w", ErrTierInit, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%w: capacity path %s is not a directory", ErrTierInit, dir)
	}

	path := filepath.Join(dir, "graphstore-"+uuid.NewString()+arenaSuffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: create arena: %w", ErrTierInit, err)
	}

	dax, err := isDAX(f)
	if err != nil {
		logger.Warn("tier: DAX probe failed", "path", path, "err", err)
	}
	if requireDAX && !dax {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: %s is not on a DAX-enabled file system", ErrTierInit, dir)
	}

	logger.Info("tier: capacity arena opened", "path", path, "dax", dax, "max", maxSize)

	return &capacityTier{
		f:    f,
		path: path,
		page: mmfile.PageSize(),
		max:  maxSize,
		dax:  dax,
		free: make(map[int][]int64),
		live: make(map[*Mem]struct{}),
	}, nil
}

func (c *capacityTier) span(size int) int {
	return (size + c.page - 1) / c.page * c.page
}

func (c *capacityTier) alloc(size int, zero bool) (*Mem, error) {
	span := c.span(size)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.f == nil {
		return nil, ErrClosed
	}

	var off int64
	reused := false
	if offs := c.free[span]; len(offs) > 0 {
		off = offs[len(offs)-1]
		c.free[span] = offs[:len(offs)-1]
		reused = true
	} else {
		off = c.end
		if off+int64(span) > c.max {
			return nil, fmt.Errorf("%w: capacity arena limit %d reached", ErrNoSpace, c.max)
		}
		if err := reserve(c.f, off, int64(span)); err != nil {
			return nil, fmt.Errorf("%w: extend arena: %w", ErrNoSpace, err)
		}
		c.end = off + int64(span)
	}

	region, err := mmfile.MapRegion(c.f, off, span)
	if err != nil {
		if reused {
			c.free[span] = append(c.free[span], off)
		}
		return nil, fmt.Errorf("%w: %w", ErrNoSpace, err)
	}
	if reused && zero {
		clear(region)
	}

	m := &Mem{data: region[:size:size], region: region, tier: CapacityTier, off: off}
	c.live[m] = struct{}{}
	c.liveSize += int64(span)
	return m, nil
}

func (c *capacityTier) release(m *Mem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.live[m]; !ok {
		return ErrBadMem
	}
	if err := mmfile.Unmap(m.region); err != nil {
		return fmt.Errorf("tier: unmap region at %d: %w", m.off, err)
	}
	span := len(m.region)
	delete(c.live, m)
	c.liveSize -= int64(span)
	c.free[span] = append(c.free[span], m.off)
	m.data = nil
	m.region = nil
	return nil
}

// sync flushes the arena file's data to stable storage.
func (c *capacityTier) sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return ErrClosed
	}
	return datasync(c.f)
}

func (c *capacityTier) stats() (regions int, used, fileSize int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live), c.liveSize, c.end
}

// close unmaps any regions still live, closes and removes the arena file. The arena
// only backs the running process; durability across restarts is the snapshot
// layer's job.
func (c *capacityTier) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.f == nil {
		return nil
	}
	if n := len(c.live); n > 0 {
		logger.Warn("tier: closing capacity arena with live regions", "regions", n)
	}
	for m := range c.live {
		_ = mmfile.Unmap(m.region)
		m.data = nil
		m.region = nil
		m.freed.Store(true)
	}
	clear(c.live)
	c.liveSize = 0

	err := c.f.Close()
	c.f = nil
	if rmErr := os.Remove(c.path); err == nil {
		err = rmErr
	}
	logger.Info("tier: capacity arena closed", "path", c.path)
	return err
}

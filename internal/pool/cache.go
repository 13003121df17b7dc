package pool

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/phynteny/phynteny-go/internal/genome"
)

// FileFingerprint holds stat-based identity for a file.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile creates a FileFingerprint from an on-disk file.
func StatFile(path string) (FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	return FileFingerprint{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Cache keeps a parsed pool on disk next to fingerprints of the files it was
// built from:
//
//	{dir}/pool.gob       (serialized pool)
//	{dir}/pool.gob.meta  (source file fingerprints)
type Cache struct {
	dir string
}

// NewCache creates a pool cache in dir.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

func (c *Cache) gobPath() string {
	return filepath.Join(c.dir, "pool.gob")
}

func (c *Cache) metaPath() string {
	return filepath.Join(c.dir, "pool.gob.meta")
}

// Valid reports whether the cached pool was built from exactly these sources.
func (c *Cache) Valid(sources ...FileFingerprint) bool {
	meta, err := c.readMeta()
	if err != nil {
		return false
	}
	if meta["sources"] != strconv.Itoa(len(sources)) {
		return false
	}
	for i, fp := range sources {
		for k, v := range fingerprintFields(i, fp) {
			if meta[k] != v {
				return false
			}
		}
	}

	if _, err := os.Stat(c.gobPath()); err != nil {
		return false
	}
	return true
}

// Load reads the cached pool.
func (c *Cache) Load() (genome.Pool, error) {
	return Read(c.gobPath())
}

// Write stores p and the fingerprints of its sources.
func (c *Cache) Write(p genome.Pool, sources ...FileFingerprint) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := Write(c.gobPath(), p); err != nil {
		return err
	}
	return c.writeMeta(sources)
}

// Clear removes the cached files.
func (c *Cache) Clear() {
	os.Remove(c.gobPath())
	os.Remove(c.metaPath())
}

func fingerprintFields(i int, fp FileFingerprint) map[string]string {
	prefix := "source" + strconv.Itoa(i)
	return map[string]string{
		prefix + "_path":    fp.Path,
		prefix + "_size":    strconv.FormatInt(fp.Size, 10),
		prefix + "_modtime": fp.ModTime.UTC().Format(time.RFC3339Nano),
	}
}

func (c *Cache) writeMeta(sources []FileFingerprint) error {
	lines := []string{"sources=" + strconv.Itoa(len(sources))}
	for i, fp := range sources {
		prefix := "source" + strconv.Itoa(i)
		lines = append(lines,
			prefix+"_path="+fp.Path,
			prefix+"_size="+strconv.FormatInt(fp.Size, 10),
			prefix+"_modtime="+fp.ModTime.UTC().Format(time.RFC3339Nano))
	}
	lines = append(lines, "created_at="+time.Now().UTC().Format(time.RFC3339), "")
	return os.WriteFile(c.metaPath(), []byte(strings.Join(lines, "\n")), 0644)
}

func (c *Cache) readMeta() (map[string]string, error) {
	data, err := os.ReadFile(c.metaPath())
	if err != nil {
		return nil, err
	}

	meta := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			meta[k] = v
		}
	}
	return meta, nil
}

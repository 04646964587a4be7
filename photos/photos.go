// Package photos lists the image assets shown in the page carousel.
package photos

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
	".avif": true,
}

// Lister reads image file names from Dir and maps them to public URL paths
// under URLPrefix.
type Lister struct {
	Dir       string
	URLPrefix string
}

// New returns a Lister for dir served under urlPrefix.
func New(dir, urlPrefix string) *Lister {
	return &Lister{Dir: dir, URLPrefix: urlPrefix}
}

// List returns the public paths of every recognised image in the directory,
// sorted by file name. A missing or unreadable directory yields an empty list.
func (l *Lister) List() []string {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return []string{}
	}
	prefix := "/" + strings.Trim(l.URLPrefix, "/")
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsImage(e.Name()) {
			continue
		}
		out = append(out, path.Join(prefix, e.Name()))
	}
	sort.Strings(out)
	return out
}

// IsImage reports whether name carries one of the recognised image extensions.
func IsImage(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

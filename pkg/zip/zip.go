// Package zip bundles stored blobs into a single downloadable archive.
package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"time"
)

// Entry is one file of an archive.
type Entry struct {
	Filename string
	Data     []byte
	Modified time.Time
}

// Write streams entries to w as a zip archive. Already compressed image data
// is stored rather than deflated.
func Write(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.Filename == "" {
			return fmt.Errorf("zip: entry without filename")
		}
		if _, dup := seen[entry.Filename]; dup {
			return fmt.Errorf("zip: duplicate entry %q", entry.Filename)
		}
		seen[entry.Filename] = struct{}{}

		header := &zip.FileHeader{Name: entry.Filename, Method: zip.Store, Modified: entry.Modified}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", entry.Filename, err)
		}
		if _, err := fw.Write(entry.Data); err != nil {
			return fmt.Errorf("zip: write %s: %w", entry.Filename, err)
		}
	}
	return zw.Close()
}

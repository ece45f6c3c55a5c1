/*
File Name:  folder.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/
package transfer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/voidwarp/core/checksum"
	"github.com/voidwarp/core/protocol"
)

// buildManifest walks root iteratively (a manual stack, not recursion, so
// deep user directories cannot blow the native stack), hashing each file and
// assembling the ordered manifest. It returns the manifest plus, in the same
// order as manifest.Items, the absolute path of each file for the streaming
// reader to read from.
func buildManifest(root string) (manifest protocol.TransferManifest, filePaths []string, err error) {
	type stackEntry struct {
		absPath string
		relPath string
	}

	stack := []stackEntry{{absPath: root, relPath: ""}}

	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		dirEntries, err := os.ReadDir(entry.absPath)
		if err != nil {
			return manifest, nil, fmt.Errorf("transfer: reading dir %s: %w", entry.absPath, err)
		}

		for _, de := range dirEntries {
			absChild := filepath.Join(entry.absPath, de.Name())
			relChild := de.Name()
			if entry.relPath != "" {
				relChild = entry.relPath + "/" + de.Name()
			}

			if de.IsDir() {
				stack = append(stack, stackEntry{absPath: absChild, relPath: relChild})
				continue
			}

			info, err := de.Info()
			if err != nil {
				return manifest, nil, fmt.Errorf("transfer: stat %s: %w", absChild, err)
			}

			hash, err := checksum.FileMD5(absChild)
			if err != nil {
				return manifest, nil, fmt.Errorf("transfer: hashing %s: %w", absChild, err)
			}

			manifest.Items = append(manifest.Items, protocol.ManifestItem{
				Path: filepath.ToSlash(relChild),
				Size: uint64(info.Size()),
				Hash: hash,
			})
			manifest.TotalSize += uint64(info.Size())
			filePaths = append(filePaths, absChild)
		}
	}

	return manifest, filePaths, nil
}

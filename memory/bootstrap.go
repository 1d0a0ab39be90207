package memory

import (
	"fmt"
	"os"
	"path/filepath"
)

// OrientationFile is the entry point the agent reads first in a fresh root.
const OrientationFile = "user.md"

// EntitiesDir is the conventional directory for one-file-per-entity notes.
const EntitiesDir = "entities"

const orientationContent = `# User

This is the entry point of your memory. Keep it short: who the user is and
links to the notes that matter most.

## User Information
- Name: (unknown)

## Entities
Store one Markdown file per person, place, project or thing under
` + "`" + EntitiesDir + "/`" + `, for example ` + "`" + EntitiesDir + "/mittens.md`" + `,
and link to it from here as [[` + EntitiesDir + `/mittens.md]].

Create the ` + "`" + EntitiesDir + "/`" + ` directory the first time you need it.
`

// Bootstrap writes the orientation file when the root is empty and reports
// whether it did. A root holding anything at all is left untouched. A root
// removed since Open is recreated first.
func (f *FS) Bootstrap() (bool, error) {
	if err := os.MkdirAll(f.root, 0o755); err != nil {
		return false, fmt.Errorf("memory: bootstrap: %w", err)
	}
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return false, fmt.Errorf("memory: bootstrap: %w", err)
	}
	if len(entries) > 0 {
		return false, nil
	}
	if err := writeAtomic(filepath.Join(f.root, OrientationFile), []byte(orientationContent)); err != nil {
		return false, fmt.Errorf("memory: bootstrap: %w", err)
	}
	f.logger.Info("memory root bootstrapped", "root", f.root, "file", OrientationFile)
	return true, nil
}

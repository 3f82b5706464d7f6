package launcher

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// lockPath returns the advisory lock file for an absolute output path.
// The name is a v5 UUID of the path so every run on the same file agrees.
func lockPath(lockDir, output string) string {
	if lockDir == "" {
		lockDir = os.TempDir()
	}
	name := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+output)).String()
	return filepath.Join(lockDir, "stereocap-"+name+".lock")
}

func newOutputLock(lockDir, output string) *flock.Flock {
	return flock.New(lockPath(lockDir, output))
}

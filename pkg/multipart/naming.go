package multipart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
)

// Temp file names combine a per-process random token with an atomic counter,
// so no two live fields can collide without any cross-connection lock.
var (
	procToken = uuid.NewString()[:8]
	fieldSeq  atomic.Uint64
)

// tempNamePrefix is the stable prefix of every spooled upload file.
const tempNamePrefix = "servio_upload"

// createTempFile creates the next upload file in dir for exclusive writing
// and returns the open handle and its base name. O_EXCL guards against names
// left behind by processes outside our control; on a collision the counter
// simply advances.
func createTempFile(dir string) (*os.File, string, error) {
	for {
		name := fmt.Sprintf("%s_%s_%d", tempNamePrefix, procToken, fieldSeq.Add(1))
		file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return file, name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
}

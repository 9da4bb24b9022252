package utils

import (
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lch-dev/board2/config"
)

// EnsureUploadDir creates the configured uploads directory if missing.
func EnsureUploadDir() error {
	return os.MkdirAll(config.Get().UploadDir, 0o755)
}

// SaveUpload stores an uploaded file under the uploads directory and returns
// the generated storage key. Keys follow the legacy <unix-millis>-<name>
// scheme so existing attachment rows keep resolving.
func SaveUpload(ctx *gin.Context, fh *multipart.FileHeader) (string, error) {
	name := filepath.Base(fh.Filename)
	if name == "." || name == "" {
		name = "file"
	}
	key := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), name)
	dst := filepath.Join(config.Get().UploadDir, key)
	if err := ctx.SaveUploadedFile(fh, dst); err != nil {
		return "", err
	}
	return key, nil
}

// RemoveUpload deletes a stored blob by its key. Best-effort: a missing file
// is not an error.
func RemoveUpload(key string) {
	if key == "" {
		return
	}
	if err := os.Remove(filepath.Join(config.Get().UploadDir, key)); err != nil && !os.IsNotExist(err) {
		Sugar.Warnf("failed to remove upload %s: %v", key, err)
	}
}

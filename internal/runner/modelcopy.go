package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/averros/ecoscen/internal/telemetry"
)

// copyModel places a private copy of the model file at
// dir/worker_<n><ext>. The engine mutates its model database in place,
// so concurrent handles must never share a file.
func copyModel(modelPath, dir string, worker int) (string, error) {
	start := time.Now()
	src, err := os.Open(modelPath)
	if err != nil {
		return "", fmt.Errorf("open model %s: %w", modelPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("stat model %s: %w", modelPath, err)
	}

	dstPath := filepath.Join(dir, fmt.Sprintf("worker_%d%s", worker, filepath.Ext(modelPath)))
	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return "", fmt.Errorf("create model copy: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return "", fmt.Errorf("copy model to %s: %w", dstPath, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("close model copy: %w", err)
	}
	telemetry.ModelCopied(time.Since(start).Seconds())
	return dstPath, nil
}

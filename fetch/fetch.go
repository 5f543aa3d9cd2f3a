// Package fetch stages remote checkpoints onto local disk. Every acquisition
// is scoped: the caller receives a local path plus a cleanup function that
// releases whatever staging the fetch required.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/latentforge/animate/envconfig"
)

const s3Prefix = "s3://"

// Fetch resolves a checkpoint path to a local file. s3:// paths are copied
// into a fresh staging directory under the cache dir with the aws CLI; plain
// paths pass through untouched. cleanup is never nil and is safe to call
// exactly once.
func Fetch(ctx context.Context, p string) (local string, cleanup func() error, err error) {
	if !strings.HasPrefix(p, s3Prefix) {
		return p, func() error { return nil }, nil
	}

	dir := filepath.Join(envconfig.CacheDir(), uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, err
	}
	cleanup = func() error { return os.RemoveAll(dir) }

	args := []string{}
	if endpoint := envconfig.S3Endpoint(); endpoint != "" {
		args = append(args, "--endpoint-url="+endpoint)
	}
	args = append(args, "s3", "cp", p, dir+string(os.PathSeparator))

	slog.Info("fetching checkpoint", "path", p, "staging", dir)

	cmd := exec.CommandContext(ctx, "aws", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("aws s3 cp %q: %w: %s", p, err, out)
	}

	return filepath.Join(dir, path.Base(p)), cleanup, nil
}

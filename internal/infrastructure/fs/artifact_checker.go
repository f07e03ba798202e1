package fs

import (
	"github.com/spf13/afero"
)

// ArtifactChecker answers existence and size queries about declared
// task outputs. It is the engine's only view of the filesystem: an
// opaque existence/size oracle with no further semantics assumed.
type ArtifactChecker struct {
	fs afero.Fs
}

// NewArtifactChecker creates a checker over the OS filesystem
func NewArtifactChecker() *ArtifactChecker {
	return &ArtifactChecker{fs: afero.NewOsFs()}
}

// NewArtifactCheckerWithFs creates a checker over the given filesystem.
// Tests pass an afero.MemMapFs.
func NewArtifactCheckerWithFs(filesystem afero.Fs) *ArtifactChecker {
	return &ArtifactChecker{fs: filesystem}
}

// Exists reports whether the path exists
func (c *ArtifactChecker) Exists(path string) bool {
	exists, err := afero.Exists(c.fs, path)
	return err == nil && exists
}

// Size returns the content length of the path
func (c *ArtifactChecker) Size(path string) (int64, error) {
	info, err := c.fs.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

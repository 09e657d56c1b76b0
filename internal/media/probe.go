package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var (
	ErrPermissionDenied  = errors.New("media permission denied")
	ErrDeviceUnavailable = errors.New("media device unavailable")
	ErrUnsupportedFormat = errors.New("unsupported media format")
)

type container int

const (
	containerIVF container = iota
	containerOgg
)

var magic = map[container][]byte{
	containerIVF: []byte("DKIF"),
	containerOgg: []byte("OggS"),
}

func (c container) String() string {
	if c == containerIVF {
		return "IVF"
	}
	return "Ogg"
}

// probe checks that a device file exists, can be read and carries the
// expected container signature. It returns the absolute path.
func probe(path string, want container) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: no %s source configured", ErrDeviceUnavailable, want)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, path, err)
	}

	stat, err := os.Stat(abs)
	switch {
	case errors.Is(err, os.ErrPermission):
		return "", fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	case err != nil:
		return "", fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, path, err)
	case stat.IsDir():
		return "", fmt.Errorf("%w: %s is a directory", ErrDeviceUnavailable, path)
	}

	f, err := os.Open(abs)
	if errors.Is(err, os.ErrPermission) {
		return "", fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, path, err)
	}
	defer f.Close()

	head := make([]byte, 4)
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, magic[want]) {
		return "", fmt.Errorf("%w: %s is not an %s file", ErrUnsupportedFormat, path, want)
	}
	return abs, nil
}

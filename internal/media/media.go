// Package media stores property photographs on disk. Images are normalized
// to JPEG and scaled down to fit a bounding box before they are cataloged.
package media

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxWidth    = 1024
	DefaultMaxHeight   = 768
	DefaultJPEGQuality = 85

	propertiesDirName = "Properties"
	fileTimeLayout    = "20060102150405"

	// MaxSourcePixels bounds the decoded size of an input image. Headers are
	// checked before any pixel data is allocated.
	MaxSourcePixels = 50_000_000
)

var (
	ErrUnsupportedImage = errors.New("media: unsupported image")
	ErrOutsideRoot      = errors.New("media: path outside image root")
)

type Options struct {
	MaxWidth    int
	MaxHeight   int
	JPEGQuality int
	// Now is the clock used for file names; nil means time.Now.
	Now func() time.Time
}

type Store struct {
	root string
	opts Options
}

func NewStore(root string, opts Options) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("new media store: empty root")
	}
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = DefaultMaxWidth
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = DefaultMaxHeight
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{root: filepath.Clean(root), opts: opts}, nil
}

// PropertyDir is the directory holding every image of one property.
func (s *Store) PropertyDir(propertyID int64) string {
	return filepath.Join(s.root, propertiesDirName, strconv.FormatInt(propertyID, 10))
}

// SaveImage decodes src, scales it to fit the configured box without
// upscaling, and writes it as JPEG under the property's directory. The
// returned path is absolute when the root is.
func (s *Store) SaveImage(propertyID int64, src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	defer in.Close()

	cfg, _, err := image.DecodeConfig(in)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnsupportedImage, filepath.Base(src), err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return "", fmt.Errorf("%w: %s: %dx%d exceeds %d pixels", ErrUnsupportedImage, filepath.Base(src), cfg.Width, cfg.Height, MaxSourcePixels)
	}
	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}

	img, format, err := image.Decode(in)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnsupportedImage, filepath.Base(src), err)
	}
	img = fitWithin(img, s.opts.MaxWidth, s.opts.MaxHeight)

	dir := s.PropertyDir(propertyID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("save image: create property dir: %w", err)
	}

	name := s.opts.Now().Format(fileTimeLayout) + "_" + uuid.NewString()[:8] + ".jpg"
	dst := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, ".upload-*.jpg")
	if err != nil {
		return "", fmt.Errorf("save image: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: s.opts.JPEGQuality}); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("save image: encode %s as jpeg: %w", format, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("save image: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	return dst, nil
}

// Remove deletes a stored image. Paths outside the root are refused and a
// missing file is not an error.
func (s *Store) Remove(path string) error {
	if !s.contains(path) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

// RemovePropertyDir drops the property's directory once it holds no files.
func (s *Store) RemovePropertyDir(propertyID int64) error {
	err := os.Remove(s.PropertyDir(propertyID))
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	entries, readErr := os.ReadDir(s.PropertyDir(propertyID))
	if readErr == nil && len(entries) > 0 {
		return nil
	}
	return fmt.Errorf("remove property image dir: %w", err)
}

func (s *Store) contains(path string) bool {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func fitWithin(img image.Image, maxWidth, maxHeight int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxWidth && height <= maxHeight {
		return img
	}

	scale := min(float64(maxWidth)/float64(width), float64(maxHeight)/float64(height))
	newWidth := max(1, int(float64(width)*scale))
	newHeight := max(1, int(float64(height)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

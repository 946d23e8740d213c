package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/agencydesk/agencydesk/internal/media"
	"github.com/agencydesk/agencydesk/internal/storage"
)

// PropertyService ties the property catalog to the image files on disk.
type PropertyService struct {
	store  *storage.Store
	images *media.Store
	logger *slog.Logger
}

func NewPropertyService(store *storage.Store, images *media.Store, logger *slog.Logger) *PropertyService {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &PropertyService{
		store:  store,
		images: images,
		logger: logger.With("component", "property"),
	}
}

// AttachImages stores every source image and catalogs them in one
// transaction. On any failure the files already written are removed.
func (s *PropertyService) AttachImages(ctx context.Context, propertyID int64, sources []string) ([]storage.PropertyImage, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: at least one image is required", ErrValidation)
	}
	if _, err := s.store.Properties.Get(ctx, propertyID); err != nil {
		return nil, fmt.Errorf("attach images: %w", err)
	}

	written := make([]string, 0, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			s.discard(written)
			return nil, err
		}
		path, err := s.images.SaveImage(propertyID, src)
		if err != nil {
			s.discard(written)
			return nil, fmt.Errorf("attach images: %w", err)
		}
		written = append(written, path)
	}

	images, err := s.store.Properties.AddImages(ctx, propertyID, written)
	if err != nil {
		s.discard(written)
		return nil, fmt.Errorf("attach images: %w", err)
	}
	s.logger.Info("images attached", "property_id", propertyID, "count", len(images))
	return images, nil
}

func (s *PropertyService) Images(ctx context.Context, propertyID int64) ([]storage.PropertyImage, error) {
	if _, err := s.store.Properties.Get(ctx, propertyID); err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return s.store.Properties.ListImages(ctx, propertyID)
}

func (s *PropertyService) SetMainImage(ctx context.Context, imageID int64) error {
	return s.store.Properties.SetMainImage(ctx, imageID)
}

func (s *PropertyService) RemoveImage(ctx context.Context, imageID int64) error {
	return s.store.Properties.DeleteImage(ctx, imageID)
}

// Delete removes the property together with its images and, once empty, its
// image directory.
func (s *PropertyService) Delete(ctx context.Context, propertyID int64) error {
	if err := s.store.Properties.Delete(ctx, propertyID); err != nil {
		return err
	}
	if err := s.images.RemovePropertyDir(propertyID); err != nil {
		s.logger.Warn("remove property image dir", "property_id", propertyID, "error", err)
	}
	return nil
}

func (s *PropertyService) discard(paths []string) {
	for _, path := range paths {
		if err := s.images.Remove(path); err != nil {
			s.logger.Warn("discard image file", "path", path, "error", err)
		}
	}
}

package images

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sort"

	_ "image/gif" // registered for decode only
	_ "image/png"

	"github.com/nfnt/resize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/generally23/hlguinee/internal/apperr"
	"github.com/generally23/hlguinee/internal/models"
	"github.com/generally23/hlguinee/internal/storage"
)

// Minimum source dimensions. Anything smaller is rejected before any blob is
// written.
const (
	MinSourceWidth  = 1920
	MinSourceHeight = 1080
)

// resizeConcurrency bounds parallel Lanczos resampling per image; the work
// is CPU-bound and one oversized upload must not starve the worker.
const resizeConcurrency = 4

// Pipeline turns one raw upload into a stored rendition set: a source blob
// kept at its original width plus one resized blob per requested width.
type Pipeline struct {
	blobs   storage.BlobStore
	quality int
	log     *zap.Logger
}

func NewPipeline(blobs storage.BlobStore, quality int, log *zap.Logger) *Pipeline {
	return &Pipeline{blobs: blobs, quality: quality, log: log}
}

// Process validates, normalizes and stores one image, returning the
// rendition set to persist. Dimension and decode failures are validation
// errors raised before anything is uploaded; on a storage failure mid-way,
// already-uploaded blobs are deleted best-effort so no orphans survive a
// failed set.
func (p *Pipeline) Process(ctx context.Context, data []byte, widths []int) (*models.ImageVariantSet, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Validation("unsupported or corrupt image")
	}
	if cfg.Width < MinSourceWidth || cfg.Height < MinSourceHeight {
		return nil, apperr.Validation("image is %dx%d, minimum is %dx%d",
			cfg.Width, cfg.Height, MinSourceWidth, MinSourceHeight)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Validation("unsupported or corrupt image")
	}

	sourceData := data
	sourceType := "image/" + format
	if format != "jpeg" {
		// Normalize to JPEG, but never at the cost of a bigger blob.
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality}); err != nil {
			return nil, apperr.Infrastructure(err, "failed to transcode image")
		}
		if buf.Len() < len(data) {
			sourceData = buf.Bytes()
			sourceType = "image/jpeg"
		}
	}

	widths = normalizeWidths(widths, cfg.Width)

	baseKey := NewBaseKey()
	set := &models.ImageVariantSet{
		SourceName: VariantKey(baseKey, cfg.Width),
		Names:      make([]string, len(widths)),
	}

	// Render every variant first; uploads start only once the full set is in
	// memory, so a resize failure never leaves blobs to clean up.
	renditions := make([]renderedBlob, len(widths)+1)
	renditions[0] = renderedBlob{key: set.SourceName, data: sourceData, contentType: sourceType}

	var g errgroup.Group
	g.SetLimit(resizeConcurrency)
	for i, width := range widths {
		i, width := i, width
		key := VariantKey(baseKey, width)
		set.Names[i] = key
		g.Go(func() error {
			resized := resize.Resize(uint(width), 0, img, resize.Lanczos3)
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: p.quality}); err != nil {
				return err
			}
			renditions[i+1] = renderedBlob{key: key, data: buf.Bytes(), contentType: "image/jpeg"}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Infrastructure(err, "failed to render image variants")
	}

	var uploaded []string
	for _, r := range renditions {
		if err := p.blobs.Put(ctx, r.key, r.data, r.contentType); err != nil {
			if len(uploaded) > 0 {
				if delErr := p.blobs.Delete(context.WithoutCancel(ctx), uploaded...); delErr != nil {
					p.log.Warn("failed to clean up partial rendition set",
						zap.Strings("keys", uploaded), zap.Error(delErr))
				}
			}
			return nil, apperr.Infrastructure(err, "failed to store rendition set")
		}
		uploaded = append(uploaded, r.key)
	}
	return set, nil
}

// renderedBlob is one encoded rendition awaiting upload.
type renderedBlob struct {
	key         string
	data        []byte
	contentType string
}

// normalizeWidths sorts ascending, drops duplicates, non-positive values and
// widths at or above the source width. The source blob already covers those.
func normalizeWidths(widths []int, sourceWidth int) []int {
	out := make([]int, 0, len(widths))
	seen := map[int]bool{}
	for _, w := range widths {
		if w > 0 && w < sourceWidth && !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	sort.Ints(out)
	return out
}

// Package plaintext provides a document extractor for markdown-style
// text filings with referenced diagram files.
package plaintext

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder

	"github.com/google/uuid"

	"github.com/casefile-labs/verity/internal/core/domain"
	"github.com/casefile-labs/verity/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// imageRef matches markdown image references: ![alt](path).
var imageRef = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)

// Extractor handles text filings whose diagrams are referenced as
// markdown image links. Referenced payloads are re-encoded as PNG into
// the asset directory, keyed by the assigned image ID, where the
// analysis engines pick them up.
type Extractor struct {
	assetDir string
}

// New creates a plaintext extractor writing image payloads to assetDir.
func New(assetDir string) (*Extractor, error) {
	if assetDir == "" {
		return nil, fmt.Errorf("plaintext: asset directory is required")
	}
	if err := os.MkdirAll(assetDir, 0700); err != nil {
		return nil, fmt.Errorf("creating asset directory: %w", err)
	}
	return &Extractor{assetDir: assetDir}, nil
}

// Normalize standardises line endings and trailing whitespace and
// returns the normalised content hash.
func (e *Extractor) Normalize(_ context.Context, doc domain.Document) (string, error) {
	raw, err := e.readSource(doc)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(normalize(string(raw))))
	return hex.EncodeToString(sum[:]), nil
}

// ExtractText returns the document's text body with image references
// stripped, and a confidence.
func (e *Extractor) ExtractText(_ context.Context, doc domain.Document) (string, float64, error) {
	raw, err := e.readSource(doc)
	if err != nil {
		return "", 0, err
	}

	text := imageRef.ReplaceAllString(normalize(string(raw)), "")
	text = strings.TrimSpace(text)
	if text == "" && len(raw) > 0 {
		// A non-empty file yielding no text means the body was only
		// image references; still a valid extraction.
		return "", 1.0, nil
	}
	return text, 1.0, nil
}

// ExtractImages isolates the referenced diagram files. Returned images
// carry fingerprints and diagram classifications; the pipeline assigns
// document linkage and lifecycle state.
func (e *Extractor) ExtractImages(_ context.Context, doc domain.Document) ([]domain.Image, error) {
	raw, err := e.readSource(doc)
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Dir(sourcePath(doc))
	var images []domain.Image
	for _, match := range imageRef.FindAllStringSubmatch(string(raw), -1) {
		alt, ref := match[1], match[2]
		path := ref
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, ref)
		}

		img, err := e.loadImage(path, alt)
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
	}

	return images, nil
}

// loadImage decodes one referenced file, fingerprints it and stores its
// payload in the asset directory.
func (e *Extractor) loadImage(path, alt string) (*domain.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.StructuralCorruptionError{
			Resource: path,
			Reason:   fmt.Sprintf("referenced image missing: %v", err),
		}
	}
	defer f.Close()

	decoded, _, err := image.Decode(f)
	if err != nil {
		return nil, &domain.StructuralCorruptionError{
			Resource: path,
			Reason:   fmt.Sprintf("undecodable image payload: %v", err),
		}
	}

	id := uuid.NewString()
	out, err := os.Create(filepath.Join(e.assetDir, id+".png"))
	if err != nil {
		return nil, fmt.Errorf("creating asset file: %w", err)
	}
	defer out.Close()
	if err := png.Encode(out, decoded); err != nil {
		return nil, fmt.Errorf("encoding asset: %w", err)
	}

	info, err := out.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat asset file: %w", err)
	}

	bounds := decoded.Bounds()
	return &domain.Image{
		ID:          id,
		Fingerprint: fingerprint(decoded),
		DiagramType: classify(alt, path),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		ByteSize:    int(info.Size()),
	}, nil
}

func (e *Extractor) readSource(doc domain.Document) ([]byte, error) {
	path := sourcePath(doc)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.StructuralCorruptionError{
			Resource: doc.ID,
			Reason:   fmt.Sprintf("source unreadable at %s: %v", path, err),
		}
	}
	return raw, nil
}

// sourcePath strips an optional file:// scheme from the document URI.
func sourcePath(doc domain.Document) string {
	return strings.TrimPrefix(doc.URI, "file://")
}

// normalize standardises line endings and strips trailing whitespace.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// fingerprint computes a 64-bit average hash: the image is sampled on
// an 8x8 grayscale grid and each cell compared against the grid mean.
// Returned as a 16-digit hex string.
func fingerprint(img image.Image) string {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return "0000000000000000"
	}

	var cells [64]uint32
	var mean uint64
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			px := bounds.Min.X + x*w/8 + w/16
			py := bounds.Min.Y + y*h/8 + h/16
			if px >= bounds.Max.X {
				px = bounds.Max.X - 1
			}
			if py >= bounds.Max.Y {
				py = bounds.Max.Y - 1
			}
			gray := color.GrayModel.Convert(img.At(px, py)).(color.Gray)
			cells[y*8+x] = uint32(gray.Y)
			mean += uint64(gray.Y)
		}
	}
	mean /= 64

	var bits uint64
	for i, c := range cells {
		if uint64(c) >= mean {
			bits |= 1 << uint(63-i)
		}
	}
	return fmt.Sprintf("%016x", bits)
}

// classify maps the reference's alt text and filename onto a diagram
// role. Reviewers can override the classification later.
func classify(alt, path string) domain.DiagramType {
	hint := strings.ToLower(alt + " " + filepath.Base(path))
	switch {
	case containsAny(hint, "title", "cover", "front"):
		return domain.DiagramTitle
	case containsAny(hint, "method", "flow", "process", "circuit", "sequence"):
		return domain.DiagramMethod
	case containsAny(hint, "logo", "decorat", "ornament", "watermark"):
		return domain.DiagramDecorative
	default:
		return domain.DiagramSupporting
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

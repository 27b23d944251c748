package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	"github.com/memelab/memeforge/internal/domain"
	"github.com/memelab/memeforge/internal/storage"
)

const watermarkText = "memeforge"

// RenderService composes captions onto template images and uploads the
// result to object storage.
type RenderService struct {
	storage storage.ObjectStorage
	fnt     *sfnt.Font
}

// NewRenderService creates a new render service.
// Returns an error only when the embedded font fails to parse.
func NewRenderService(objectStorage storage.ObjectStorage) (*RenderService, error) {
	fnt, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse caption font: %w", err)
	}

	return &RenderService{
		storage: objectStorage,
		fnt:     fnt,
	}, nil
}

// RenderResult is the outcome of rendering one candidate.
type RenderResult struct {
	StorageKey string
	ImageURL   string
	AltText    string
	Warnings   []string
}

// Render draws the captions onto the template, encodes per the render spec,
// and uploads under memes/<trace_id>/<candidate_id>.<ext>.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - template: template whose image is the base layer.
//   - captions: slot-count captions in panel order.
//   - spec: output size/format/watermark settings.
//   - traceID: request trace id (storage prefix).
//   - candidateID: candidate id (storage file name).
//
// Returns:
//   - *RenderResult: storage key, public URL, alt text, render warnings.
//   - error: non-nil if the template image cannot be loaded or the upload fails.
func (s *RenderService) Render(ctx context.Context, template *domain.Template, captions []string, spec *domain.RenderSpec, traceID, candidateID string) (*RenderResult, error) {
	var warnings []string

	ext := spec.Format
	if ext == "" {
		ext = domain.DefaultRenderFormat
	}
	if ext == "webp" {
		// webp decodes but has no encoder in x/image
		ext = "png"
		warnings = append(warnings, "webp encoding unavailable, rendered png instead")
	}

	src, err := s.loadTemplateImage(ctx, template)
	if err != nil {
		return nil, err
	}

	size := spec.Size
	if size <= 0 {
		size = domain.DefaultRenderSize
	}

	canvas := scaleToWidth(src, size)

	if err := s.drawCaptions(canvas, template.Format, captions); err != nil {
		return nil, err
	}

	if spec.WatermarkEnabled() {
		if err := s.drawWatermark(canvas); err != nil {
			warnings = append(warnings, fmt.Sprintf("watermark skipped: %v", err))
		}
	}

	encoded, err := encodeImage(canvas, ext)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("memes/%s/%s.%s", traceID, candidateID, ext)
	if err := s.storage.Upload(ctx, key, bytes.NewReader(encoded), int64(len(encoded)), getContentType(ext)); err != nil {
		return nil, fmt.Errorf("failed to upload rendered meme: %w", err)
	}

	return &RenderResult{
		StorageKey: key,
		ImageURL:   s.storage.GetURL(key),
		AltText:    fmt.Sprintf("%s meme: %s", template.Name, strings.Join(captions, " / ")),
		Warnings:   warnings,
	}, nil
}

// loadTemplateImage prefers the seeded storage copy and falls back to the
// catalog's local path for unseeded dev setups.
func (s *RenderService) loadTemplateImage(ctx context.Context, template *domain.Template) (image.Image, error) {
	var data []byte

	if template.StorageKey != "" {
		reader, err := s.storage.Download(ctx, template.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("failed to download template image: %w", err)
		}
		defer reader.Close()

		data, err = io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read template image: %w", err)
		}
	} else if template.ImagePath != "" {
		var err error
		data, err = os.ReadFile(template.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read template image: %w", err)
		}
	} else {
		return nil, fmt.Errorf("template %s has no image source", template.TemplateID)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode template image: %w", err)
	}

	return img, nil
}

// scaleToWidth resizes the source to the target width, preserving aspect.
func scaleToWidth(src image.Image, width int) *image.RGBA {
	bounds := src.Bounds()
	height := bounds.Dy() * width / bounds.Dx()
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	return dst
}

// captionBand is one white strip with centered caption text.
type captionBand struct {
	caption      string
	panelTop     int
	panelHeight  int
	anchorBottom bool
}

// captionBands lays out band positions per template format: single puts the
// caption at the image bottom, caption-only at the top, panel formats put one
// band at the top of each panel.
func captionBands(format domain.TemplateFormat, height int, captions []string) []captionBand {
	switch format {
	case domain.FormatTwoPanel, domain.FormatFourPanel:
		panels := format.SlotCount()
		panelHeight := height / panels
		bands := make([]captionBand, 0, panels)
		for i := 0; i < panels && i < len(captions); i++ {
			bands = append(bands, captionBand{
				caption:     captions[i],
				panelTop:    i * panelHeight,
				panelHeight: panelHeight,
			})
		}
		return bands
	case domain.FormatCaptionOnly:
		if len(captions) == 0 {
			return nil
		}
		return []captionBand{{caption: captions[0], panelTop: 0, panelHeight: height}}
	default: // single
		if len(captions) == 0 {
			return nil
		}
		return []captionBand{{caption: captions[0], panelTop: 0, panelHeight: height, anchorBottom: true}}
	}
}

func (s *RenderService) drawCaptions(canvas *image.RGBA, format domain.TemplateFormat, captions []string) error {
	width := canvas.Bounds().Dx()
	height := canvas.Bounds().Dy()

	fontSize := float64(width) / 20
	if format == domain.FormatFourPanel {
		fontSize = float64(width) / 26
	}
	if fontSize < 14 {
		fontSize = 14
	}

	face, err := opentype.NewFace(s.fnt, &opentype.FaceOptions{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return fmt.Errorf("failed to build caption face: %w", err)
	}
	defer face.Close()

	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil()
	ascent := metrics.Ascent.Ceil()
	pad := int(fontSize / 2)

	for _, band := range captionBands(format, height, captions) {
		lines := wrapText(face, band.caption, width-2*pad)

		// A band never eats more than half its panel
		maxLines := (band.panelHeight/2 - 2*pad) / lineHeight
		if maxLines < 1 {
			maxLines = 1
		}
		if len(lines) > maxLines {
			lines = lines[:maxLines]
		}

		bandHeight := len(lines)*lineHeight + 2*pad
		bandTop := band.panelTop
		if band.anchorBottom {
			bandTop = band.panelTop + band.panelHeight - bandHeight
		}

		bandRect := image.Rect(0, bandTop, width, bandTop+bandHeight)
		draw.Draw(canvas, bandRect, image.NewUniform(color.White), image.Point{}, draw.Src)

		drawer := &font.Drawer{
			Dst:  canvas,
			Src:  image.NewUniform(color.Black),
			Face: face,
		}
		for i, line := range lines {
			lineWidth := drawer.MeasureString(line).Ceil()
			x := (width - lineWidth) / 2
			if x < pad {
				x = pad
			}
			drawer.Dot = fixed.P(x, bandTop+pad+ascent+i*lineHeight)
			drawer.DrawString(line)
		}
	}

	return nil
}

// drawWatermark puts a small label in the bottom-right corner, shadowed so
// it stays readable on light and dark images.
func (s *RenderService) drawWatermark(canvas *image.RGBA) error {
	width := canvas.Bounds().Dx()
	height := canvas.Bounds().Dy()

	fontSize := float64(width) / 48
	if fontSize < 10 {
		fontSize = 10
	}

	face, err := opentype.NewFace(s.fnt, &opentype.FaceOptions{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return err
	}
	defer face.Close()

	pad := int(fontSize / 2)
	measure := &font.Drawer{Face: face}
	textWidth := measure.MeasureString(watermarkText).Ceil()

	x := width - textWidth - pad
	y := height - pad

	shadow := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.RGBA{0, 0, 0, 160}),
		Face: face,
		Dot:  fixed.P(x+1, y+1),
	}
	shadow.DrawString(watermarkText)

	label := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.RGBA{255, 255, 255, 200}),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	label.DrawString(watermarkText)

	return nil
}

// wrapText greedily wraps words to the pixel budget. A single word wider
// than the budget is split by runes rather than overflowing the canvas.
func wrapText(face font.Face, text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	measure := &font.Drawer{Face: face}

	var lines []string
	current := ""
	for _, word := range words {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}

		if measure.MeasureString(candidate).Ceil() <= maxWidth {
			current = candidate
			continue
		}

		if current != "" {
			lines = append(lines, current)
		}

		if measure.MeasureString(word).Ceil() <= maxWidth {
			current = word
			continue
		}

		// Hard-split an overlong word
		runes := []rune(word)
		chunk := ""
		for _, r := range runes {
			next := chunk + string(r)
			if measure.MeasureString(next).Ceil() > maxWidth && chunk != "" {
				lines = append(lines, chunk)
				chunk = string(r)
				continue
			}
			chunk = next
		}
		current = chunk
	}

	if current != "" {
		lines = append(lines, current)
	}

	return lines
}

func encodeImage(img image.Image, ext string) ([]byte, error) {
	var buf bytes.Buffer
	switch ext {
	case "jpg", "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, fmt.Errorf("failed to encode jpeg: %w", err)
		}
	default:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode png: %w", err)
		}
	}
	return buf.Bytes(), nil
}

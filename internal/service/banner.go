package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"google.golang.org/genai"

	"github.com/memelab/memeforge/internal/prompts"
)

const defaultBannerImageModel = "imagen-3.0-generate-002"

// BannerService generates the project banner: a text model writes a scene
// description, Imagen renders it in the fixed sumi-e style.
type BannerService struct {
	chat       *ChatService
	genai      *genai.Client
	imageModel string
}

// NewBannerService creates a new banner service.
// Parameters:
//   - ctx: context for client initialization.
//   - chat: text model client for the scene description.
//   - geminiAPIKey: Gemini API key for Imagen.
//   - imageModel: Imagen model name; empty uses the default.
//
// Returns:
//   - *BannerService: initialized banner service.
//   - error: non-nil if the genai client cannot be created.
func NewBannerService(ctx context.Context, chat *ChatService, geminiAPIKey, imageModel string) (*BannerService, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  geminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	if imageModel == "" {
		imageModel = defaultBannerImageModel
	}
	return &BannerService{chat: chat, genai: client, imageModel: imageModel}, nil
}

// Describe asks the text model for a creative banner scene description.
// The description never mentions colors so it stays compatible with the
// monochrome style block.
func (s *BannerService) Describe(ctx context.Context, title, suggestion string) (string, error) {
	user := fmt.Sprintf(prompts.BannerDescriptionUserPromptFormat, title, suggestion)
	description, err := s.chat.Complete(ctx, prompts.BannerDescriptionSystemPrompt, user, 0)
	if err != nil {
		return "", fmt.Errorf("failed to generate banner description: %w", err)
	}
	return strings.TrimSpace(description), nil
}

// Generate produces the banner image for a title as PNG bytes.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - title: banner text, rendered large and centered.
//   - suggestion: optional hint guiding the scene description (may be empty).
//
// Returns:
//   - []byte: PNG image data.
//   - string: the scene description the image was generated from.
//   - error: non-nil if description or image generation fails.
func (s *BannerService) Generate(ctx context.Context, title, suggestion string) ([]byte, string, error) {
	description, err := s.Describe(ctx, title, suggestion)
	if err != nil {
		return nil, "", err
	}

	prompt := fmt.Sprintf(prompts.BannerImagePromptFormat, description, title, prompts.BannerStylePrompt)

	resp, err := s.genai.Models.GenerateImages(ctx, s.imageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    "16:9",
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate banner image: %w", err)
	}
	if len(resp.GeneratedImages) == 0 {
		return nil, "", fmt.Errorf("no images generated")
	}
	generated := resp.GeneratedImages[0]
	if generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
		return nil, "", fmt.Errorf("invalid image data in response")
	}

	data, err := ensurePNG(generated.Image.ImageBytes)
	if err != nil {
		return nil, "", err
	}
	return data, description, nil
}

// ensurePNG passes PNG data through unchanged and re-encodes any other
// decodable format, so the banner file on disk is always a PNG.
func ensurePNG(data []byte) ([]byte, error) {
	if _, err := png.Decode(bytes.NewReader(data)); err == nil {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode generated image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode banner png: %w", err)
	}
	return buf.Bytes(), nil
}

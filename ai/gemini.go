package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements Curator and Renderer on the Gemini API.
type Gemini struct {
	client     *genai.Client
	textModel  string
	imageModel string
}

func NewGemini(ctx context.Context, apiKey, textModel, imageModel string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{client: client, textModel: textModel, imageModel: imageModel}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) CurateLooks(ctx context.Context, req CurationRequest) ([]Composition, error) {
	prompt, err := curationPrompt(req)
	if err != nil {
		return nil, err
	}

	model := g.client.GenerativeModel(g.textModel)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.8)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	var text strings.Builder
	for _, part := range firstParts(resp) {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if text.Len() == 0 {
		return nil, errors.New("no content generated")
	}
	return parseCompositions(text.String())
}

func (g *Gemini) Render(ctx context.Context, req RenderRequest) ([]byte, string, error) {
	model := g.client.GenerativeModel(g.imageModel)

	prompt := fmt.Sprintf(`Dress the person in the first image in the garments shown in the following images.
Keep the person's face, body shape, pose and background unchanged. Show the garments with accurate fit, colour and texture.
%s`, req.Description)

	parts := []genai.Part{
		genai.Text(prompt),
		imagePart(req.PersonImage),
	}
	for _, img := range req.GarmentImages {
		if len(img) > 0 {
			parts = append(parts, imagePart(img))
		}
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate content: %w", err)
	}

	for _, part := range firstParts(resp) {
		if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 {
			mime := blob.MIMEType
			if mime == "" {
				mime = http.DetectContentType(blob.Data)
			}
			return blob.Data, mime, nil
		}
	}
	return nil, "", ErrNoImage
}

func firstParts(resp *genai.GenerateContentResponse) []genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}

func imagePart(data []byte) genai.Part {
	mime := http.DetectContentType(data)
	format := strings.TrimPrefix(mime, "image/")
	if !strings.HasPrefix(mime, "image/") {
		format = "jpeg"
	}
	return genai.ImageData(format, data)
}

// Package analysis builds and executes the forensic financial analysis
// request: a multimodal prompt over disclosure documents, a
// schema-constrained JSON report, an illustrative lifestyle image and spoken
// summary synthesis.
package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/ahouse2/financial-legal-analysis/pkg/core"
	"github.com/ahouse2/financial-legal-analysis/pkg/core/types"
)

const (
	defaultAnalysisModel = "gemini-3-pro-preview"
	defaultImageModel    = "imagen-4.0-generate-001"
	defaultSpeechModel   = "gemini-2.5-flash-preview-tts"
	defaultSpeechVoice   = "Fenrir"

	analysisTask = "Analyze the provided financial documents and context. Compare the financial disclosures of Party A and Party B, assess the marital standard of living, and produce the full report."

	visualFramingPrefix = "Photorealistic, professional, cinematic lighting. A metaphorical representation of: "
	visualFramingSuffix = ". High quality, 8k."
)

// Generator is the slice of the vendor client the service needs. It is
// satisfied by *genai.Models.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// Service runs analysis, visual and speech requests against an injected
// generator.
type Service struct {
	gen    Generator
	logger *slog.Logger

	analysisModel string
	imageModel    string
	speechModel   string
	speechVoice   string
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithModels overrides the default model identifiers. Empty strings keep the
// defaults.
func WithModels(analysis, image, speech string) Option {
	return func(s *Service) {
		if analysis != "" {
			s.analysisModel = analysis
		}
		if image != "" {
			s.imageModel = image
		}
		if speech != "" {
			s.speechModel = speech
		}
	}
}

// NewService wires a Service around gen, typically client.Models.
func NewService(gen Generator, opts ...Option) (*Service, error) {
	if gen == nil {
		return nil, core.NewInvalidRequestError("analysis service requires a generator")
	}
	s := &Service{
		gen:           gen,
		logger:        slog.Default(),
		analysisModel: defaultAnalysisModel,
		imageModel:    defaultImageModel,
		speechModel:   defaultSpeechModel,
		speechVoice:   defaultSpeechVoice,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BuildRequest assembles the user turn for an analysis run: the optional
// free-text context first, then each attachment in caller order, then the
// fixed task statement. At least one of text or attachments is required.
func BuildRequest(text string, attachments []types.Attachment) ([]*genai.Part, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(attachments) == 0 {
		return nil, core.NewInvalidRequestError("analysis needs case context or at least one document")
	}

	var parts []*genai.Part
	if text != "" {
		parts = append(parts, genai.NewPartFromText(text))
	}
	for _, att := range attachments {
		if len(att.Data) == 0 {
			return nil, core.NewInvalidRequestError("attachment " + att.Name + " is empty")
		}
		if att.MIMEType == "" {
			return nil, core.NewInvalidRequestError("attachment " + att.Name + " has no media type")
		}
		parts = append(parts, genai.NewPartFromBytes(att.Data, att.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(analysisTask))
	return parts, nil
}

// reportSchema constrains the model output to the report shape.
func reportSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary": {
				Type:        genai.TypeString,
				Description: "Executive summary of the financial comparison.",
			},
			"standardOfLivingAssessment": {
				Type:        genai.TypeString,
				Description: "Assessment of the marital standard of living.",
			},
			"californiaCodeReferences": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "Relevant California Family Code sections.",
			},
			"chartData": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"category":     {Type: genai.TypeString},
						"partyAAmount": {Type: genai.TypeNumber},
						"partyBAmount": {Type: genai.TypeNumber},
						"discrepancy":  {Type: genai.TypeNumber},
						"notes":        {Type: genai.TypeString},
					},
					Required: []string{"category", "partyAAmount", "partyBAmount", "discrepancy"},
				},
				Description: "Per-category spending comparison between the parties.",
			},
			"lifestyleMetaphorPrompt": {
				Type:        genai.TypeString,
				Description: "Image-generation prompt depicting the marital lifestyle.",
			},
		},
		Required: []string{"summary", "standardOfLivingAssessment", "californiaCodeReferences", "chartData"},
	}
}

// Analyze runs the full forensic comparison and returns the validated
// report. It never returns a partial report: any missing or malformed field
// fails the whole call.
func (s *Service) Analyze(ctx context.Context, parts []*genai.Part) (*types.AnalysisReport, error) {
	if len(parts) == 0 {
		return nil, core.NewInvalidRequestError("analysis request has no content")
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(core.AnalystSystemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    reportSchema(),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := s.gen.GenerateContent(ctx, s.analysisModel, contents, config)
	if err != nil {
		return nil, core.NewAPIError("analysis request failed", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, core.NewEmptyResponseError("analysis returned no content")
	}

	var report types.AnalysisReport
	if err := json.Unmarshal([]byte(text), &report); err != nil {
		return nil, core.NewMalformedResponseError("analysis output is not valid JSON", err)
	}
	if err := report.Validate(); err != nil {
		return nil, core.NewMalformedResponseError("analysis output failed validation", err)
	}

	s.logger.Info("analysis complete",
		"categories", len(report.ChartRows),
		"code_references", len(report.LegalReferences))
	return &report, nil
}

// GenerateVisual renders the lifestyle metaphor prompt as a single 16:9 JPEG
// and returns the image bytes with their media type.
func (s *Service) GenerateVisual(ctx context.Context, prompt string) ([]byte, string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, "", core.NewInvalidRequestError("visual generation needs a prompt")
	}

	config := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: "image/jpeg",
		AspectRatio:    "16:9",
	}
	framed := visualFramingPrefix + prompt + visualFramingSuffix
	resp, err := s.gen.GenerateImages(ctx, s.imageModel, framed, config)
	if err != nil {
		return nil, "", core.NewAPIError("visual generation failed", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil || len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
		return nil, "", core.NewEmptyResponseError("visual generation returned no image")
	}

	img := resp.GeneratedImages[0].Image
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return img.ImageBytes, mime, nil
}

// Synthesize speaks text aloud and returns raw 24kHz mono s16le PCM.
func (s *Service) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, core.NewInvalidRequestError("speech synthesis needs text")
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.speechVoice},
			},
		},
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	resp, err := s.gen.GenerateContent(ctx, s.speechModel, contents, config)
	if err != nil {
		return nil, core.NewAPIError("speech synthesis failed", err)
	}

	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, core.NewEmptyResponseError("speech synthesis returned no audio")
}

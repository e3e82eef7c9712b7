package pipeline

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/amitripshtos/auditlife/pkg/adapter"
	"github.com/amitripshtos/auditlife/pkg/model"
)

//go:embed prompt/transcribe.md
var transcribePromptRaw string

//go:embed prompt/translate.md
var translatePromptRaw string

//go:embed prompt/extract.md
var extractPromptRaw string

//go:embed prompt/summarize.md
var summarizePromptRaw string

var (
	translatePromptTmpl = template.Must(template.New("translate").Parse(translatePromptRaw))
	extractPromptTmpl   = template.Must(template.New("extract").Parse(extractPromptRaw))
	summarizePromptTmpl = template.Must(template.New("summarize").Parse(summarizePromptRaw))
)

// Provider implements all four pipeline capabilities on a single Gemini
// adapter. Structured stages use response schemas for deterministic JSON.
type Provider struct {
	gemini adapter.Gemini
}

func NewProvider(gemini adapter.Gemini) *Provider {
	return &Provider{gemini: gemini}
}

type transcriptionResult struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func (p *Provider) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, string, error) {
	if len(audio) == 0 {
		return "", "", goerr.Wrap(model.ErrTranscription, "audio payload is empty")
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribePromptRaw),
			genai.NewPartFromBytes(audio, mimeType),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature:      ptrFloat32(0.0),
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"text": {
					Type:        genai.TypeString,
					Description: "Verbatim transcription of the audio",
				},
				"language": {
					Type:        genai.TypeString,
					Description: "BCP-47 code of the detected language",
				},
			},
			Required: []string{"text", "language"},
		},
	}

	raw, err := p.generate(ctx, contents, config)
	if err != nil {
		return "", "", goerr.Wrap(model.ErrTranscription, "gemini call failed", goerr.V("cause", err))
	}

	var result transcriptionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return "", "", goerr.Wrap(model.ErrTranscription, "malformed transcription response", goerr.V("cause", err))
	}
	if result.Text == "" {
		return "", "", goerr.Wrap(model.ErrTranscription, "no speech recognized")
	}

	return result.Text, result.Language, nil
}

func (p *Provider) Translate(ctx context.Context, text, languageHint string) (string, error) {
	var buf bytes.Buffer
	if err := translatePromptTmpl.Execute(&buf, map[string]any{
		"Text":         text,
		"LanguageHint": languageHint,
	}); err != nil {
		return "", goerr.Wrap(model.ErrTranslation, "failed to build prompt", goerr.V("cause", err))
	}

	contents := []*genai.Content{genai.NewContentFromText(buf.String(), genai.RoleUser)}
	config := &genai.GenerateContentConfig{Temperature: ptrFloat32(0.2)}

	raw, err := p.generate(ctx, contents, config)
	if err != nil {
		return "", goerr.Wrap(model.ErrTranslation, "gemini call failed", goerr.V("cause", err))
	}

	english := strings.TrimSpace(raw)
	if english == "" {
		return "", goerr.Wrap(model.ErrTranslation, "empty translation result")
	}
	return english, nil
}

func (p *Provider) Extract(ctx context.Context, englishText string) ([]*model.Fact, error) {
	var buf bytes.Buffer
	if err := extractPromptTmpl.Execute(&buf, map[string]any{"Text": englishText}); err != nil {
		return nil, goerr.Wrap(model.ErrExtraction, "failed to build prompt", goerr.V("cause", err))
	}

	contents := []*genai.Content{genai.NewContentFromText(buf.String(), genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		Temperature:      ptrFloat32(0.2),
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"subject": {
						Type:        genai.TypeString,
						Description: "The main entity or person the fact is about",
					},
					"predicate": {
						Type:        genai.TypeString,
						Description: "The relationship, action, or attribute connecting subject and object",
					},
					"object": {
						Type:        genai.TypeString,
						Description: "The entity, value, or concept related to the subject",
					},
					"context": {
						Type:        genai.TypeString,
						Description: "The surrounding sentence or phrase",
					},
				},
				Required: []string{"subject", "predicate", "object"},
			},
		},
	}

	raw, err := p.generate(ctx, contents, config)
	if err != nil {
		return nil, goerr.Wrap(model.ErrExtraction, "gemini call failed", goerr.V("cause", err))
	}

	var facts []*model.Fact
	if err := json.Unmarshal([]byte(raw), &facts); err != nil {
		return nil, goerr.Wrap(model.ErrExtraction, "malformed extraction response", goerr.V("cause", err))
	}

	// Drop facts the model produced without a subject rather than failing
	// the whole stage.
	valid := facts[:0]
	for _, f := range facts {
		if f.Validate() == nil {
			valid = append(valid, f)
		}
	}
	return valid, nil
}

func (p *Provider) Summarize(ctx context.Context, englishText string) (string, error) {
	var buf bytes.Buffer
	if err := summarizePromptTmpl.Execute(&buf, map[string]any{"Text": englishText}); err != nil {
		return "", goerr.Wrap(model.ErrSummarization, "failed to build prompt", goerr.V("cause", err))
	}

	contents := []*genai.Content{genai.NewContentFromText(buf.String(), genai.RoleUser)}
	config := &genai.GenerateContentConfig{Temperature: ptrFloat32(0.2)}

	raw, err := p.generate(ctx, contents, config)
	if err != nil {
		return "", goerr.Wrap(model.ErrSummarization, "gemini call failed", goerr.V("cause", err))
	}

	summary := strings.TrimSpace(raw)
	if summary == "" {
		return "", goerr.Wrap(model.ErrSummarization, "empty summary result")
	}
	return summary, nil
}

// generate runs one call and returns the text of the first candidate.
func (p *Provider) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	resp, err := p.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 ||
		resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", goerr.New("response has no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

func ptrFloat32(v float32) *float32 {
	return &v
}

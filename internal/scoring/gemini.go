package scoring

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strings"

	"google.golang.org/genai"

	"github.com/DoyleJ11/handshape-backend/internal/engine"
)

var ErrEmptyResponse = errors.New("model returned no text")
var ErrBadVerdict = errors.New("model response did not match the expected shape")

type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string       // empty uses the public Gemini API
	HTTPClient *http.Client // nil uses the SDK default
}

// Gemini scores a captured photo against the prompt with a Gemini model.
type Gemini struct {
	Model  string
	client *genai.Client
}

func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      opts.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: opts.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{Model: opts.Model, client: client}, nil
}

type verdict struct {
	Points   *float64 `json:"points"`
	Feedback *string  `json:"feedback"`
}

func (g *Gemini) Evaluate(ctx context.Context, req Request) (engine.Evaluation, error) {
	mime, data, ok := splitDataURL(req.Image)
	if !ok {
		return engine.Evaluation{}, ErrNoImage
	}
	img, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return engine.Evaluation{}, fmt.Errorf("%w: %v", ErrNoImage, err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img, mime),
			genai.NewPartFromText(instructions(req)),
		}, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.Model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.7),
	})
	if err != nil {
		return engine.Evaluation{}, fmt.Errorf("calling gemini: %w", err)
	}
	return parseVerdict(resp.Text())
}

var fence = regexp.MustCompile("(?s)^```(\\w*)?\\s*\\n?(.*?)\\n?\\s*```$")

// parseVerdict accepts the bare JSON object or one wrapped in a markdown
// code fence.
func parseVerdict(raw string) (engine.Evaluation, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return engine.Evaluation{}, ErrEmptyResponse
	}
	if m := fence.FindStringSubmatch(raw); m != nil && m[2] != "" {
		raw = strings.TrimSpace(m[2])
	}

	var v verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return engine.Evaluation{}, fmt.Errorf("%w: %v", ErrBadVerdict, err)
	}
	if v.Points == nil || v.Feedback == nil {
		return engine.Evaluation{}, ErrBadVerdict
	}

	points := int(math.Round(*v.Points))
	return engine.Evaluation{Points: max(0, min(100, points)), Feedback: *v.Feedback}, nil
}

// splitDataURL turns "data:image/jpeg;base64,AAAA" into its mime type and
// payload.
func splitDataURL(s string) (mime, data string, ok bool) {
	header, payload, found := strings.Cut(s, ",")
	if !found || payload == "" || !strings.HasPrefix(header, "data:") {
		return "", "", false
	}
	mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	if mime == "" {
		mime = "image/jpeg"
	}
	return mime, payload, true
}

func instructions(req Request) string {
	p := req.Prompt
	return fmt.Sprintf(`The user was asked to create a "%s" (in Japanese: "%s") using one hand showing "%s" and the other hand showing "%s".
Evaluate the image based on these criteria:
1. Are the hand shapes for "%s" and "%s" clearly visible and correct?
2. Does the combination of these hand shapes resemble a "%s"?
Provide a score from 0 to 100, where 100 is a perfect and creative representation.
Also provide a short, encouraging, and fun feedback message in Japanese, suitable for a child.
Return your response ONLY as a JSON object with keys "points" (number, integer) and "feedback" (string).`,
		p.ObjectToMakeEn, p.ObjectToMake, p.Shape1, p.Shape2, p.Shape1, p.Shape2, p.ObjectToMakeEn)
}

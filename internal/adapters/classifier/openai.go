package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"tweet-pruner/internal/domain"
	openai "tweet-pruner/internal/infra/openai"
)

type chatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI оценивает посты через OpenAI Chat Completions.
// Один вызов Classify — одна попытка: повторы выполняет исполнитель.
type OpenAI struct {
	client  chatCompletionClient
	model   string
	timeout time.Duration
}

var _ domain.Classifier = (*OpenAI)(nil)

// NewOpenAI создаёт классификатор.
func NewOpenAI(client chatCompletionClient, model string, timeout time.Duration) *OpenAI {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAI{client: client, model: model, timeout: timeout}
}

type opinionPayload struct {
	Decision         string   `json:"decision"`
	Confidence       *float64 `json:"confidence"`
	Reason           string   `json:"reason"`
	DetectedKeywords []string `json:"detected_keywords"`
}

const systemPrompt = "You classify a user's own social media posts for a selective clean-up. Answer strictly with a JSON object."

const userPromptTemplate = `Decide whether this post should be deleted.

DELETE if the post:
- mentions Bali, Indonesia or any Indonesian city or place (Ubud, Canggu, Jakarta, Seminyak, ...)
- shows or mentions work activities: working, building, shipping, coding, developing, launching, crafting, presenting, posting updates, creating, designing, programming
- contains images of laptops, workspaces, coding screens, meetings, presentations, office setups or work equipment
- combines any location with work activity, or shows someone working or being productive
- mentions income, earnings, wealth or financial status

KEEP if the post:
- is purely personal (food, travel without work context, social activities)
- mentions other locations and contains no work indicators
- is about hobbies, entertainment or leisure

Post text: %q
Attached images: %d
Attached videos: %d

Respond with JSON: {"decision": "DELETE" or "KEEP", "confidence": 0.0-1.0, "reason": "brief explanation", "detected_keywords": ["..."]}`

// Classify выполняет одну попытку оценки.
func (c *OpenAI) Classify(ctx context.Context, text string, media []domain.MediaDescriptor, imageLimit int) (domain.Opinion, error) {
	images, videos := splitMedia(media, imageLimit)

	parts := []openai.ContentPart{{
		Type: openai.PartTypeText,
		Text: fmt.Sprintf(userPromptTemplate, clipRunes(text, 4000), len(images), videos),
	}}
	for _, url := range images {
		parts = append(parts, openai.ContentPart{Type: openai.PartTypeImageURL, ImageURL: &openai.ImageURL{URL: url, Detail: "low"}})
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: 500,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: systemPrompt},
			{Role: openai.RoleUser, Parts: parts},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ResponseFormatTypeJSONObject},
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.Opinion{}, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return domain.Opinion{}, fmt.Errorf("%w: empty choices", domain.ErrClassifierMalformed)
	}
	return ParseOpinion(resp.Choices[0].Message.Content)
}

// ParseOpinion разбирает и проверяет JSON-ответ модели.
func ParseOpinion(content string) (domain.Opinion, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	var parsed opinionPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &parsed); err != nil {
		return domain.Opinion{}, fmt.Errorf("%w: %v", domain.ErrClassifierMalformed, err)
	}
	var label domain.Verdict
	switch strings.ToUpper(strings.TrimSpace(parsed.Decision)) {
	case string(domain.VerdictDelete):
		label = domain.VerdictDelete
	case string(domain.VerdictKeep):
		label = domain.VerdictKeep
	default:
		return domain.Opinion{}, fmt.Errorf("%w: unknown decision %q", domain.ErrClassifierMalformed, parsed.Decision)
	}
	if parsed.Confidence == nil {
		return domain.Opinion{}, fmt.Errorf("%w: confidence is missing", domain.ErrClassifierMalformed)
	}
	confidence := *parsed.Confidence
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return domain.Opinion{}, fmt.Errorf("%w: confidence %v out of range", domain.ErrClassifierMalformed, confidence)
	}
	signals := make([]string, 0, len(parsed.DetectedKeywords))
	for _, kw := range parsed.DetectedKeywords {
		if trimmed := strings.TrimSpace(kw); trimmed != "" {
			signals = append(signals, trimmed)
		}
	}
	return domain.Opinion{
		Label:          label,
		Confidence:     confidence,
		Rationale:      strings.TrimSpace(parsed.Reason),
		MatchedSignals: signals,
	}, nil
}

func classifyError(err error) error {
	var apiErr *openai.APIError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrClassifierTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", domain.ErrClassifierTimeout, err)
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", domain.ErrClassifierRateLimited, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrClassifierUnavailable, err)
	}
}

func splitMedia(media []domain.MediaDescriptor, imageLimit int) ([]string, int) {
	var images []string
	videos := 0
	for _, m := range media {
		switch m.Kind {
		case domain.MediaImage:
			if m.Handle == "" || (imageLimit > 0 && len(images) >= imageLimit) {
				continue
			}
			images = append(images, m.Handle)
		case domain.MediaVideo:
			videos++
		}
	}
	return images, videos
}

func clipRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

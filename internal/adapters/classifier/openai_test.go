package classifier

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"tweet-pruner/internal/domain"
	openai "tweet-pruner/internal/infra/openai"
)

type fakeChat struct {
	content  string
	err      error
	captured openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.captured = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Content: f.content}}}}, nil
}

func TestClassifyParsesOpinion(t *testing.T) {
	chat := &fakeChat{content: `{"decision":"delete","confidence":0.82,"reason":"laptop on beach","detected_keywords":["laptop"," ",""]}`}
	c := NewOpenAI(chat, "gpt-4o-mini", time.Second)
	media := []domain.MediaDescriptor{
		{Kind: domain.MediaImage, Handle: "https://img/1"},
		{Kind: domain.MediaImage, Handle: "https://img/2"},
		{Kind: domain.MediaImage, Handle: "https://img/3"},
		{Kind: domain.MediaVideo, Handle: "v"},
		{Kind: domain.MediaImage, Handle: "https://img/4"},
		{Kind: domain.MediaImage, Handle: "https://img/5"},
	}
	op, err := c.Classify(context.Background(), "text", media, 4)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if op.Label != domain.VerdictDelete || op.Confidence != 0.82 || op.Rationale != "laptop on beach" {
		t.Fatalf("неожиданное мнение: %+v", op)
	}
	if len(op.MatchedSignals) != 1 {
		t.Fatalf("ожидали отфильтрованные сигналы, получили %v", op.MatchedSignals)
	}
	parts := chat.captured.Messages[1].Parts
	if len(parts) != 5 {
		t.Fatalf("ожидали текст и 4 изображения, получили %d частей", len(parts))
	}
}

func TestParseOpinionMalformed(t *testing.T) {
	cases := []string{
		`not json`,
		`{"decision":"MAYBE","confidence":0.5}`,
		`{"decision":"KEEP"}`,
		`{"decision":"KEEP","confidence":1.5}`,
		`{"decision":"KEEP","confidence":-0.1}`,
	}
	for _, content := range cases {
		if _, err := ParseOpinion(content); !errors.Is(err, domain.ErrClassifierMalformed) {
			t.Fatalf("ParseOpinion(%q): ожидали ErrClassifierMalformed, получили %v", content, err)
		}
	}
	op, err := ParseOpinion("```json\n{\"decision\":\"KEEP\",\"confidence\":0}\n```")
	if err != nil || op.Label != domain.VerdictKeep {
		t.Fatalf("ожидали разбор ответа в блоке кода: %+v %v", op, err)
	}
}

func TestClassifyMapsErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: domain.ErrClassifierTimeout},
		{name: "rate limited", err: &openai.APIError{StatusCode: http.StatusTooManyRequests}, want: domain.ErrClassifierRateLimited},
		{name: "server error", err: &openai.APIError{StatusCode: http.StatusBadGateway}, want: domain.ErrClassifierUnavailable},
		{name: "other", err: errors.New("boom"), want: domain.ErrClassifierUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewOpenAI(&fakeChat{err: tt.err}, "", time.Second)
			_, err := c.Classify(context.Background(), "x", nil, 4)
			if !errors.Is(err, tt.want) {
				t.Fatalf("ожидали %v, получили %v", tt.want, err)
			}
			if !domain.IsClassifierFailure(err) {
				t.Fatalf("ожидали ошибку классификатора")
			}
		})
	}
}

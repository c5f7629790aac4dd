package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestChatMessageMarshalParts(t *testing.T) {
	msg := ChatMessage{Role: RoleUser, Parts: []ContentPart{
		{Type: PartTypeText, Text: "hi"},
		{Type: PartTypeImageURL, ImageURL: &ImageURL{URL: "https://img/1.jpg"}},
	}}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	var decoded struct {
		Role    string            `json:"role"`
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("ожидали массив частей: %v (%s)", err, raw)
	}
	if len(decoded.Content) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(decoded.Content))
	}

	plain, _ := json.Marshal(ChatMessage{Role: RoleSystem, Content: "text"})
	if string(plain) != `{"role":"system","content":"text"}` {
		t.Fatalf("неожиданный JSON: %s", plain)
	}
}

func TestCreateChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("неожиданный путь %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("нет заголовка авторизации")
		}
		body, _ := io.ReadAll(r.Body)
		var req ChatCompletionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("неразборчивый запрос: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"decision\":\"KEEP\"}"}}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL+"/v1/", time.Second)
	resp, err := c.CreateChatCompletion(context.Background(), ChatCompletionRequest{Model: "m", Messages: []ChatMessage{{Role: RoleUser, Content: "x"}}})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != `{"decision":"KEEP"}` {
		t.Fatalf("неожиданный ответ: %+v", resp)
	}
}

func TestCreateChatCompletionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, time.Second)
	_, err := c.CreateChatCompletion(context.Background(), ChatCompletionRequest{Model: "m"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("ожидали APIError, получили %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Message != "slow down" {
		t.Fatalf("неожиданная ошибка: %+v", apiErr)
	}
}

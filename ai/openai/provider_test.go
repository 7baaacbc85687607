package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/ragbot/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completionServer answers chat completions with a fixed reply after
// failing the first `failures` requests with status 503.
func completionServer(t *testing.T, reply string, failures int32, lastBody *string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if lastBody != nil {
			*lastBody = string(body)
		}
		if n <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"busy"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   "test",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestNewProvider(t *testing.T) {
	t.Run("vision disabled without key", func(t *testing.T) {
		provider, err := NewProvider(ai.DefaultConfig())
		require.NoError(t, err)
		defer provider.Close()

		assert.NotNil(t, provider.Embedder())
		assert.NotNil(t, provider.Generator())
		assert.Nil(t, provider.Vision())
		assert.Equal(t, "qwen2.5:7b", provider.Generator().Model())
	})

	t.Run("vision enabled with key", func(t *testing.T) {
		provider, err := NewProvider(ai.NewConfig(ai.WithVision("", "", "key")))
		require.NoError(t, err)
		assert.NotNil(t, provider.Vision())
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewProvider(ai.NewConfig(ai.WithChatModel("")))
		assert.Error(t, err)
	})

	t.Run("vision describer needs a key", func(t *testing.T) {
		_, err := NewVisionDescriber(ai.DefaultConfig())
		assert.ErrorIs(t, err, ai.ErrVisionUnavailable)
	})
}

func TestGenerator_Generate(t *testing.T) {
	var body string
	srv, _ := completionServer(t, "猫是一种哺乳动物。<|im_end|>", 0, &body)

	gen, err := newGenerator(ai.NewConfig(ai.WithChatHost(srv.URL)))
	require.NoError(t, err)

	answer, err := gen.Generate(context.Background(), "猫是什么", "猫是哺乳动物")
	require.NoError(t, err)
	assert.Equal(t, "猫是一种哺乳动物。", answer)
	assert.Contains(t, body, "【用户问题】")
	assert.Contains(t, body, "AssistantBot")
}

func TestVisionDescriber_RetriesServerErrors(t *testing.T) {
	var body string
	srv, calls := completionServer(t, "一只猫", 2, &body)

	v, err := newVisionDescriber(ai.NewConfig(ai.WithVision(srv.URL, "glm-4v-flash", "key")))
	require.NoError(t, err)
	v.baseDelay = time.Millisecond

	desc, err := v.DescribeImage(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "png", "")
	require.NoError(t, err)
	assert.Equal(t, "【图片内容分析】\n一只猫", desc)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, body, "data:image/png;base64,")
}

func TestVisionDescriber_GivesUp(t *testing.T) {
	srv, calls := completionServer(t, "never", 10, nil)

	v, err := newVisionDescriber(ai.NewConfig(ai.WithVision(srv.URL, "glm-4v-flash", "key")))
	require.NoError(t, err)
	v.baseDelay = time.Millisecond

	_, err = v.DescribeImage(context.Background(), []byte("img"), "jpeg", "what")
	assert.Error(t, err)
	assert.Equal(t, int32(visionMaxAttempts), calls.Load())

	_, err = v.DescribeImage(context.Background(), nil, "jpeg", "what")
	assert.Error(t, err)
}

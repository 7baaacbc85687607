package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/ragbot/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureVector(t *testing.T) {
	cat := FeatureVector("猫喜欢睡觉", DefaultDimension)
	catQuery := FeatureVector("猫", DefaultDimension)
	dog := FeatureVector("狗喜欢跑步", DefaultDimension)

	assert.Len(t, cat, DefaultDimension)
	assert.InDelta(t, 1.0, core.DotProduct(cat, cat), 1e-5)
	assert.Equal(t, cat, FeatureVector("猫喜欢睡觉", DefaultDimension))
	assert.Greater(t, core.DotProduct(catQuery, cat), core.DotProduct(catQuery, dog))

	empty := FeatureVector("  !?", 8)
	assert.Equal(t, float32(1), empty[0])
}

func TestMockEmbedder(t *testing.T) {
	ctx := context.Background()
	m := NewMockEmbedder()

	vectors, err := m.EmbedTexts(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)

	m.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("boom")
	}
	_, err = m.EmbedText(ctx, "a")
	assert.Error(t, err)
	assert.Equal(t, 2, m.CallCount())

	m.Reset()
	assert.Zero(t, m.CallCount())
	_, err = m.EmbedText(ctx, "a")
	assert.NoError(t, err)
}

func TestMockGenerator(t *testing.T) {
	ctx := context.Background()

	t.Run("scripted tokens", func(t *testing.T) {
		g := NewMockGenerator("")
		g.Tokens = []string{"你", "好"}

		var got []string
		full, err := g.Stream(ctx, "q", "ref", func(tok string) error {
			got = append(got, tok)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"你", "好"}, got)
		assert.Equal(t, "你好", full)

		call, ok := g.LastCall()
		require.True(t, ok)
		assert.Equal(t, GenerateCall{Question: "q", Reference: "ref", Streamed: true}, call)
	})

	t.Run("response split into tokens", func(t *testing.T) {
		g := NewMockGenerator("one two three")
		var count int
		full, err := g.Stream(ctx, "q", "", func(string) error { count++; return nil })
		require.NoError(t, err)
		assert.Equal(t, "one two three", full)
		assert.Equal(t, 3, count)
	})

	t.Run("error", func(t *testing.T) {
		g := NewMockGenerator("x")
		g.Err = errors.New("down")
		_, err := g.Generate(ctx, "q", "")
		assert.Error(t, err)
		_, err = g.Stream(ctx, "q", "", nil)
		assert.Error(t, err)
		assert.Len(t, g.Calls(), 2)
	})
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider()
	assert.NotNil(t, p.Embedder())
	assert.NotNil(t, p.Generator())
	assert.Nil(t, p.Vision())
	require.NoError(t, p.Close())
	assert.True(t, p.(*MockProvider).IsClosed())

	withVision := NewMockProviderWithServices(NewMockEmbedder(), NewMockGenerator(""), NewMockVision("desc"))
	desc, err := withVision.Vision().DescribeImage(context.Background(), []byte("x"), "png", "q")
	require.NoError(t, err)
	assert.Equal(t, "desc", desc)
}

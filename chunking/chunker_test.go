package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/poiesic/ragbot/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := New(size, overlap)
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			assert.ErrorIs(t, err, core.ErrInvalidChunking)
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}

	t.Run("zero value chunker", func(t *testing.T) {
		_, err := (&Chunker{}).Chunk("text")
		assert.ErrorIs(t, err, core.ErrInvalidChunking)
	})
}

func TestChunk_EmptyInput(t *testing.T) {
	c := newChunker(t, 50, 10)
	for _, text := range []string{"", "   ", "\n\n\t\n"} {
		chunks, err := c.Chunk(text)
		require.NoError(t, err)
		assert.NotNil(t, chunks)
		assert.Empty(t, chunks)
	}
}

func TestChunk_SmallTextIsOneChunk(t *testing.T) {
	c := newChunker(t, 50, 10)

	chunks, err := c.Chunk("猫喜欢睡觉。\n\n狗喜欢跑步。")
	require.NoError(t, err)
	assert.Equal(t, []string{"猫喜欢睡觉。\n\n狗喜欢跑步。"}, chunks)
}

func TestChunk_HardCutWithoutPunctuation(t *testing.T) {
	c := newChunker(t, 100, 20)

	chunks, err := c.Chunk(strings.Repeat("字", 300))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(chunks), 3)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 100)
	}
	assert.Equal(t, strings.Repeat("字", 300), strings.Join(chunks, ""))
}

func TestChunk_OverlapCarriesTail(t *testing.T) {
	c := newChunker(t, 20, 5)

	chunks, err := c.Chunk("0123456789\n\nabcdefghij\n\nABCDEFGHIJ")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"0123456789",
		"56789\n\nabcdefghij",
		"fghij\n\nABCDEFGHIJ",
	}, chunks)

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		assert.True(t, strings.HasPrefix(chunks[i], prev[len(prev)-5:]))
	}
}

func TestChunk_OverlapNeverExceedsSize(t *testing.T) {
	c := newChunker(t, 20, 15)

	chunks, err := c.Chunk("0123456789\n\nabcdefghijklmn\n\nABCDEFGHIJKLMNOPQR")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 20)
	}
	// 14 runes leave room for a 4 rune seed
	assert.Equal(t, "6789\n\nabcdefghijklmn", chunks[1])
	// 18 runes leave no room at all
	assert.Equal(t, "ABCDEFGHIJKLMNOPQR", chunks[2])
}

func TestChunk_ZeroOverlap(t *testing.T) {
	c := newChunker(t, 20, 0)

	chunks, err := c.Chunk("0123456789\n\nabcdefghij\n\nABCDEFGHIJ")
	require.NoError(t, err)
	assert.Equal(t, []string{"0123456789", "abcdefghij", "ABCDEFGHIJ"}, chunks)
}

func TestChunk_OversizedParagraphFlushesRunningChunk(t *testing.T) {
	c := newChunker(t, 10, 2)

	chunks, err := c.Chunk("ab\n\n" + strings.Repeat("甲", 25) + "\n\ncd")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ab",
		strings.Repeat("甲", 10),
		strings.Repeat("甲", 10),
		strings.Repeat("甲", 5),
		"cd",
	}, chunks)
}

func TestChunk_NormalizesWhitespace(t *testing.T) {
	c := newChunker(t, 10, 0)

	chunks, err := c.Chunk("a\t\t b\r\n\r\n\r\n\r\nc")
	require.NoError(t, err)
	assert.Equal(t, []string{"a b\n\nc"}, chunks)
}

func TestSplitLarge_Boundaries(t *testing.T) {
	tests := []struct {
		name string
		text string
		size int
		want []string
	}{
		{
			name: "sentence end",
			text: strings.Repeat("甲", 15) + "。" + strings.Repeat("乙", 20),
			size: 30,
			want: []string{strings.Repeat("甲", 15) + "。", strings.Repeat("乙", 20)},
		},
		{
			name: "boundary too close to start",
			text: "甲。" + strings.Repeat("乙", 40),
			size: 30,
			want: []string{"甲。" + strings.Repeat("乙", 28), strings.Repeat("乙", 12)},
		},
		{
			name: "line break outranks sentence end",
			text: strings.Repeat("甲", 12) + "\n" + strings.Repeat("乙", 10) + "。" + strings.Repeat("丙", 19),
			size: 30,
			want: []string{strings.Repeat("甲", 12), strings.Repeat("乙", 10) + "。" + strings.Repeat("丙", 19)},
		},
		{
			name: "rightmost marker within a level",
			text: strings.Repeat("a", 12) + "? " + strings.Repeat("b", 9) + ". " + strings.Repeat("c", 20),
			size: 30,
			want: []string{strings.Repeat("a", 12) + "? " + strings.Repeat("b", 9) + ".", strings.Repeat("c", 20)},
		},
		{
			name: "comma as last resort",
			text: strings.Repeat("甲", 20) + "，" + strings.Repeat("乙", 20),
			size: 30,
			want: []string{strings.Repeat("甲", 20) + "，", strings.Repeat("乙", 20)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitLarge([]rune(tt.text), tt.size)
			assert.Equal(t, tt.want, got)
			for _, piece := range got {
				assert.LessOrEqual(t, utf8.RuneCountInString(piece), tt.size)
			}
		})
	}
}

// stripSeed removes the overlap seed that chunk carries from prev: the
// longest prefix of at most overlap runes that ends at a paragraph break and
// is a suffix of prev.
func stripSeed(prev, chunk string, overlap int) (string, bool) {
	best := -1
	for j := 0; j < len(chunk); {
		k := strings.Index(chunk[j:], paragraphSep)
		if k < 0 {
			break
		}
		j += k
		if seed := chunk[:j]; seed != "" && utf8.RuneCountInString(seed) <= overlap && strings.HasSuffix(prev, seed) {
			best = j
		}
		j += len(paragraphSep)
	}
	if best < 0 {
		return chunk, false
	}
	return chunk[best+len(paragraphSep):], true
}

func squeeze(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func TestChunk_ReconstructsInput(t *testing.T) {
	join := func(paras ...string) string { return strings.Join(paras, paragraphSep) }

	tests := []struct {
		name    string
		size    int
		overlap int
		text    string
		want    string
		// exact is set when no paragraph needs splitting, so chunks rejoin
		// on paragraph breaks byte for byte.
		exact bool
	}{
		{
			name:    "mixed languages",
			size:    40,
			overlap: 10,
			text: join(
				"第一段介绍了检索增强生成的基本思想。",
				"第二段说明了向量检索如何找到相关的文本片段。",
				"Third paragraph mixes English text.",
				"第四段很短。",
			),
			exact: true,
		},
		{
			name:    "many short paragraphs",
			size:    50,
			overlap: 15,
			text: join(
				"苹果是一种常见的水果，富含维生素。",
				"香蕉生长在热带地区。",
				"橙子的果汁很受欢迎，早餐常见。",
				"葡萄可以用来酿酒。",
				"西瓜是夏天最解渴的水果之一。",
				"草莓表面有很多细小的种子。",
				"芒果原产于南亚。",
			),
			exact: true,
		},
		{
			name:    "oversized paragraph between short ones",
			size:    30,
			overlap: 8,
			text: join(
				"开头一段只有几个字。",
				"接着是第二段文字。",
				strings.Repeat("这是一句很长的话。", 8),
				"中间的短段落。",
				"结尾的段落在这里。",
			),
		},
		{
			name:    "english sentences",
			size:    60,
			overlap: 20,
			text: join(
				"Retrieval augmented generation grounds answers.",
				"Documents are split into overlapping chunks.",
				"Each chunk is embedded into a vector.",
				"Queries are embedded the same way and compared.",
			),
			exact: true,
		},
		{
			name:    "messy whitespace",
			size:    24,
			overlap: 6,
			text:    "  first\t\tparagraph here  \r\n\r\n\r\n\r\nsecond paragraph text\n\n\n\nthird one ends",
			want:    join("first paragraph here", "second paragraph text", "third one ends"),
			exact:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newChunker(t, tt.size, tt.overlap)
			chunks, err := c.Chunk(tt.text)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)

			want := tt.want
			if want == "" {
				want = tt.text
			}

			stripped := []string{chunks[0]}
			seeded := 0
			for i := 1; i < len(chunks); i++ {
				body, ok := stripSeed(chunks[i-1], chunks[i], tt.overlap)
				if ok {
					seeded++
				}
				require.NotEmpty(t, body, "chunk %d", i)
				stripped = append(stripped, body)
			}
			assert.Positive(t, seeded, "no chunk carried an overlap seed")

			if tt.exact {
				assert.Equal(t, want, strings.Join(stripped, paragraphSep))
			}
			assert.Equal(t, squeeze(want), squeeze(strings.Join(stripped, "")))

			for _, chunk := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(chunk), tt.size)
			}
		})
	}
}

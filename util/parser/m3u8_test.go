package parser

import (
	"errors"
	"testing"

	"hlsgrab/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseURL = "https://cdn.example.com/video/720p/index.m3u8"

func TestParseMediaPlaylist(t *testing.T) {
	content := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:7
#EXT-X-KEY:METHOD=AES-128,URI="key.bin",IV=0x000102030405060708090a0b0c0d0e0f
#EXTINF:10.0,
seg-7.ts
#EXTINF:10.0,
../shared/seg-8.ts
#EXTINF:4.5,
https://other.example.com/seg-9.ts?token=abc
#EXT-X-ENDLIST
`
	manifest, err := ParseM3U8Content([]byte(content), baseURL)
	require.NoError(t, err)

	require.Len(t, manifest.Segments, 3)
	assert.True(t, manifest.Closed)
	assert.Equal(t, uint64(7), manifest.MediaSequence)
	assert.InDelta(t, 24.5, manifest.Duration, 0.001)

	assert.Equal(t, "https://cdn.example.com/video/720p/seg-7.ts", manifest.Segments[0].URI)
	assert.Equal(t, "https://cdn.example.com/video/shared/seg-8.ts", manifest.Segments[1].URI)
	assert.Equal(t, "https://other.example.com/seg-9.ts?token=abc", manifest.Segments[2].URI)

	for i, segment := range manifest.Segments {
		assert.Equal(t, uint64(i), segment.Index)
		assert.Equal(t, uint64(7+i), segment.Sequence)
		assert.False(t, segment.Init)
	}

	require.NotNil(t, manifest.Key)
	assert.True(t, manifest.IsEncrypted())
	assert.Equal(t, "AES-128", manifest.Key.Method)
	assert.Equal(t, "https://cdn.example.com/video/720p/key.bin", manifest.Key.URI)
	assert.Equal(t,
		[]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
		manifest.Key.IV,
	)
}

func TestParseMediaPlaylistWithoutKey(t *testing.T) {
	content := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXTINF:6.0,
a.ts
#EXTINF:6.0,
b.ts
`
	manifest, err := ParseM3U8Content([]byte(content), baseURL)
	require.NoError(t, err)

	assert.Nil(t, manifest.Key)
	assert.False(t, manifest.IsEncrypted())
	assert.False(t, manifest.Closed)
	assert.Equal(t, uint64(0), manifest.Segments[0].Sequence)
}

func TestParseMethodNoneIsUnencrypted(t *testing.T) {
	content := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-KEY:METHOD=NONE
#EXTINF:6.0,
a.ts
#EXT-X-ENDLIST
`
	manifest, err := ParseM3U8Content([]byte(content), baseURL)
	require.NoError(t, err)
	assert.Nil(t, manifest.Key)
}

func TestParseKeyWithoutIV(t *testing.T) {
	content := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-KEY:METHOD=AES-128,URI="https://keys.example.com/k"
#EXTINF:6.0,
a.ts
#EXT-X-ENDLIST
`
	manifest, err := ParseM3U8Content([]byte(content), baseURL)
	require.NoError(t, err)
	require.NotNil(t, manifest.Key)
	assert.Nil(t, manifest.Key.IV)
	assert.Equal(t, "https://keys.example.com/k", manifest.Key.URI)
}

func TestParseShortIVIsLeftPadded(t *testing.T) {
	content := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-KEY:METHOD=AES-128,URI="k",IV=0x1
#EXTINF:6.0,
a.ts
#EXT-X-ENDLIST
`
	manifest, err := ParseM3U8Content([]byte(content), baseURL)
	require.NoError(t, err)
	require.NotNil(t, manifest.Key)
	expected := make([]byte, 16)
	expected[15] = 1
	assert.Equal(t, expected, manifest.Key.IV)
}

func TestParseFirstKeyWins(t *testing.T) {
	content := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-KEY:METHOD=AES-128,URI="first.key"
#EXTINF:6.0,
a.ts
#EXT-X-KEY:METHOD=AES-128,URI="second.key"
#EXTINF:6.0,
b.ts
#EXT-X-ENDLIST
`
	manifest, err := ParseM3U8Content([]byte(content), baseURL)
	require.NoError(t, err)
	require.NotNil(t, manifest.Key)
	assert.Equal(t, "https://cdn.example.com/video/720p/first.key", manifest.Key.URI)
	assert.Len(t, manifest.Segments, 2)
}

func TestParseInitSectionComesFirst(t *testing.T) {
	content := `#EXTM3U
#EXT-X-VERSION:7
#EXT-X-TARGETDURATION:4
#EXT-X-MEDIA-SEQUENCE:3
#EXT-X-MAP:URI="init.mp4"
#EXTINF:4.0,
part-3.m4s
#EXTINF:4.0,
part-4.m4s
#EXT-X-ENDLIST
`
	manifest, err := ParseM3U8Content([]byte(content), baseURL)
	require.NoError(t, err)
	require.Len(t, manifest.Segments, 3)

	initSegment := manifest.Segments[0]
	assert.True(t, initSegment.Init)
	assert.True(t, initSegment.Clear)
	assert.Equal(t, uint64(0), initSegment.Index)
	assert.Equal(t, "https://cdn.example.com/video/720p/init.mp4", initSegment.URI)

	assert.Equal(t, uint64(1), manifest.Segments[1].Index)
	assert.Equal(t, uint64(3), manifest.Segments[1].Sequence)
	assert.Equal(t, uint64(2), manifest.Segments[2].Index)
	assert.Equal(t, uint64(4), manifest.Segments[2].Sequence)
}

func TestParseInitSectionKeyOrder(t *testing.T) {
	tests := []struct {
		name  string
		tags  string
		clear bool
	}{
		{
			name: "map before key",
			tags: "#EXT-X-MAP:URI=\"init.mp4\"\n" +
				"#EXT-X-KEY:METHOD=AES-128,URI=\"k.key\",IV=0x1\n",
			clear: true,
		},
		{
			name: "key before map",
			tags: "#EXT-X-KEY:METHOD=AES-128,URI=\"k.key\",IV=0x1\n" +
				"#EXT-X-MAP:URI=\"init.mp4\"\n",
			clear: false,
		},
		{
			name: "key switched off before map",
			tags: "#EXT-X-KEY:METHOD=AES-128,URI=\"k.key\"\n" +
				"#EXT-X-KEY:METHOD=NONE\n" +
				"#EXT-X-MAP:URI=\"init.mp4\"\n",
			clear: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "#EXTM3U\n#EXT-X-VERSION:7\n#EXT-X-TARGETDURATION:4\n" +
				tt.tags +
				"#EXTINF:4.0,\npart-0.m4s\n#EXT-X-ENDLIST\n"
			manifest, err := ParseM3U8Content([]byte(content), baseURL)
			require.NoError(t, err)
			require.Len(t, manifest.Segments, 2)
			assert.True(t, manifest.Segments[0].Init)
			assert.Equal(t, tt.clear, manifest.Segments[0].Clear)
			assert.False(t, manifest.Segments[1].Clear)
		})
	}
}

func TestParseMasterPlaylist(t *testing.T) {
	content := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
high/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720
mid/index.m3u8
`
	manifest, err := ParseM3U8Content([]byte(content), "https://cdn.example.com/video/master.m3u8")
	require.Error(t, err)
	assert.Nil(t, manifest)

	var masterErr *MasterPlaylistError
	require.True(t, errors.As(err, &masterErr))
	assert.Equal(t, "https://cdn.example.com/video/high/index.m3u8", masterErr.VariantURL)
	assert.Equal(t, uint32(5000000), masterErr.Bandwidth)
}

func TestParseRejectsUnusablePlaylists(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "not a playlist",
			content: "<html><body>nope</body></html>",
		},
		{
			name: "no segments",
			content: `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-ENDLIST
`,
		},
		{
			name: "unsupported method",
			content: `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-KEY:METHOD=SAMPLE-AES,URI="k"
#EXTINF:6.0,
a.ts
#EXT-X-ENDLIST
`,
		},
		{
			name: "byte range",
			content: `#EXTM3U
#EXT-X-VERSION:4
#EXT-X-TARGETDURATION:6
#EXTINF:6.0,
#EXT-X-BYTERANGE:1000@0
all.ts
#EXT-X-ENDLIST
`,
		},
		{
			name: "invalid iv",
			content: `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-KEY:METHOD=AES-128,URI="k",IV=0xZZ
#EXTINF:6.0,
a.ts
#EXT-X-ENDLIST
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manifest, err := ParseM3U8Content([]byte(tt.content), baseURL)
			require.Error(t, err)
			assert.Nil(t, manifest)
			assert.ErrorIs(t, err, util.ErrParse)
		})
	}
}

func TestSamePath(t *testing.T) {
	assert.True(t, SamePath(
		"https://cdn.example.com/a/seg-1.ts?token=1",
		"https://cdn.example.com/a/seg-1.ts?token=2",
	))
	assert.False(t, SamePath(
		"https://cdn.example.com/a/seg-1.ts",
		"https://cdn.example.com/a/seg-2.ts",
	))
	assert.False(t, SamePath(
		"https://cdn.example.com/a/seg-1.ts",
		"https://mirror.example.com/a/seg-1.ts",
	))
}

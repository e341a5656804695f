package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/glucomem/internal/model"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		want      string
		wantFound bool
		wantErr   bool
	}{
		{
			name:      "no marker",
			text:      "好的，我记下了。",
			wantFound: false,
		},
		{
			name:      "plain block",
			text:      "记录好了。\n---MEMORY_UPDATE---\n{\"events\":[]}",
			want:      `{"events":[]}`,
			wantFound: true,
		},
		{
			name:      "trailing prose discarded",
			text:      "ok\n---MEMORY_UPDATE---\n{\"events\":[]}\n\n还有什么需要帮忙的吗？",
			want:      `{"events":[]}`,
			wantFound: true,
		},
		{
			name:      "trailing prose with braces",
			text:      "ok ---MEMORY_UPDATE--- {\"a\":1} see {note}",
			want:      `{"a":1}`,
			wantFound: true,
		},
		{
			name:      "code fence around block",
			text:      "ok\n---MEMORY_UPDATE---\n```json\n{\"a\":{\"b\":2}}\n```\n",
			want:      "{\"a\":{\"b\":2}}",
			wantFound: true,
		},
		{
			name:      "marker noise",
			text:      "ok\n--- memory_update ---\n{\"a\":1}",
			want:      `{"a":1}`,
			wantFound: true,
		},
		{
			name:      "no closing brace",
			text:      "ok\n---MEMORY_UPDATE---\n{\"events\":[",
			wantFound: true,
			wantErr:   true,
		},
		{
			name:      "no object",
			text:      "ok\n---MEMORY_UPDATE---\nnothing here",
			wantFound: true,
			wantErr:   true,
		},
		{
			name:      "broken json",
			text:      "ok\n---MEMORY_UPDATE---\n{\"events\": [}",
			wantFound: true,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found, err := Extract(tt.text)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, model.ErrMalformedDelta)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUsesFirstMarker(t *testing.T) {
	text := "a ---MEMORY_UPDATE--- {\"events\":[{\"type\":\"meal\"}]} b ---MEMORY_UPDATE--- {\"x\":1}"
	// The last brace closes the second block, which makes the whole tail invalid
	// JSON; the extractor backs off to the first complete object.
	obj, found, err := Parse(text)
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, obj, "events")
}

package artifact

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanTranscript(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"[Music] hello  world [Applause]", "hello world"},
		{"it&#39;s a &amp; b", "it's a & b"},
		{"  lots   of   spaces  ", "lots of spaces"},
		{"[Laughter] test [Inaudible] end", "test end"},
		{"&lt;tag&gt; &quot;quoted&quot;", `<tag> "quoted"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanTranscript(tt.in))
	}
}

const srv3Payload = `<?xml version="1.0" encoding="utf-8"?>
<timedtext format="3">
	<body>
		<p t="0" d="2000">hello there</p>
		<p t="2000" d="2000">[Music]</p>
		<p t="4000" d="2000">general &amp;c</p>
	</body>
</timedtext>`

const legacyPayload = `<?xml version="1.0" encoding="utf-8"?>
<transcript>
	<text start="0" dur="2">first line padded out to a reasonable length</text>
	<text start="2" dur="2">second line</text>
</transcript>`

func TestFetchTranscriptFromURL_ParsesSrv3(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(srv3Payload))
	}))
	defer server.Close()

	text, err := fetchTranscriptFromURL(context.Background(), server.Client(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "hello there general &c", text)
}

func TestFetchTranscriptFromURL_ParsesLegacyFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(legacyPayload))
	}))
	defer server.Close()

	text, err := fetchTranscriptFromURL(context.Background(), server.Client(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "first line padded out to a reasonable length second line", text)
}

func TestFetchTranscriptFromURL_RejectsTinyOrFailedResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"not found", http.StatusNotFound, srv3Payload},
		{"suspiciously small body", http.StatusOK, "<timedtext/>"},
		{"no text entries", http.StatusOK, "<timedtext><body></body></timedtext>" + strings.Repeat(" ", 50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.payload))
			}))
			defer server.Close()

			_, err := fetchTranscriptFromURL(context.Background(), server.Client(), server.URL)
			assert.Error(t, err)
		})
	}
}

// Package transcript downloads episode transcripts and reduces them to plain text.
package transcript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Formats recognized by Fetch.
const (
	FormatHTML  = "html"
	FormatVTT   = "vtt"
	FormatSRT   = "srt"
	FormatJSON  = "json"
	FormatPlain = "text"
)

const (
	DefaultMaxChars = 20000
	maxBodyBytes    = 10 << 20
	userAgent       = "pod-discover/0.1.0 (transcript fetcher)"
)

// ErrNoTranscript is returned for episodes that publish no transcript.
var ErrNoTranscript = errors.New("episode has no transcript")

// Transcript is the extracted text of one transcript document.
type Transcript struct {
	URL       string `json:"url"`
	Format    string `json:"format"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated"`
}

// Fetcher retrieves transcripts over HTTP.
type Fetcher struct {
	client   *http.Client
	maxChars int
}

// NewFetcher creates a fetcher. Zero values select defaults.
func NewFetcher(timeout time.Duration, maxChars int) *Fetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Fetcher{
		maxChars: maxChars,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Fetch downloads a transcript and extracts its text. HTML pages go through
// readability, subtitle formats lose their cue numbers and timings, and
// PodcastIndex JSON transcripts have their segment bodies joined.
func (f *Fetcher) Fetch(ctx context.Context, transcriptURL string) (*Transcript, error) {
	if strings.TrimSpace(transcriptURL) == "" {
		return nil, ErrNoTranscript
	}
	parsedURL, err := url.Parse(transcriptURL)
	if err != nil {
		return nil, fmt.Errorf("invalid transcript url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, transcriptURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching transcript: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &httpError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}

	format := detectFormat(resp.Header.Get("Content-Type"), parsedURL.Path, body)
	var text string
	switch format {
	case FormatHTML:
		article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
		if err != nil {
			return nil, fmt.Errorf("extracting transcript page: %w", err)
		}
		text = article.TextContent
	case FormatVTT, FormatSRT:
		text = CueText(string(body))
	case FormatJSON:
		text, err = segmentText(body)
		if err != nil {
			return nil, err
		}
	default:
		text = string(body)
	}

	t := &Transcript{URL: transcriptURL, Format: format}
	t.Text, t.Truncated = truncate(collapseSpace(text), f.maxChars)
	log.Debug().Str("url", transcriptURL).Str("format", format).Int("chars", len(t.Text)).Msg("Fetched transcript")
	return t, nil
}

func detectFormat(contentType, urlPath string, body []byte) string {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return FormatHTML
	case "text/vtt":
		return FormatVTT
	case "application/x-subrip", "application/srt", "text/srt":
		return FormatSRT
	case "application/json":
		return FormatJSON
	}

	switch strings.ToLower(path.Ext(urlPath)) {
	case ".html", ".htm":
		return FormatHTML
	case ".vtt":
		return FormatVTT
	case ".srt":
		return FormatSRT
	case ".json":
		return FormatJSON
	}

	head := bytes.TrimSpace(body)
	switch {
	case bytes.HasPrefix(head, []byte("WEBVTT")):
		return FormatVTT
	case bytes.HasPrefix(head, []byte("{")):
		return FormatJSON
	case bytes.HasPrefix(bytes.ToLower(head), []byte("<!doctype html")), bytes.HasPrefix(bytes.ToLower(head), []byte("<html")):
		return FormatHTML
	}
	return FormatPlain
}

var (
	cueIndex = regexp.MustCompile(`^\d+$`)
	voiceTag = regexp.MustCompile(`</?[^>]+>`)
)

// CueText returns the spoken text of a WebVTT or SRT document, one cue per
// line, dropping headers, cue numbers, timing lines and NOTE blocks.
// Consecutive duplicate lines, common in rolling captions, are collapsed.
func CueText(doc string) string {
	var out []string
	inNote := false
	for _, line := range strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			inNote = false
			continue
		case inNote:
			continue
		case strings.HasPrefix(line, "WEBVTT"), strings.HasPrefix(line, "STYLE"), strings.HasPrefix(line, "REGION"):
			inNote = true
			continue
		case strings.HasPrefix(line, "NOTE"):
			inNote = true
			continue
		case strings.Contains(line, "-->"), cueIndex.MatchString(line):
			continue
		}

		line = strings.TrimSpace(voiceTag.ReplaceAllString(line, ""))
		if line == "" || (len(out) > 0 && out[len(out)-1] == line) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

type jsonTranscript struct {
	Segments []struct {
		Speaker string `json:"speaker"`
		Body    string `json:"body"`
	} `json:"segments"`
}

func segmentText(body []byte) (string, error) {
	var doc jsonTranscript
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decoding json transcript: %w", err)
	}
	parts := make([]string, 0, len(doc.Segments))
	for _, s := range doc.Segments {
		if b := strings.TrimSpace(s.Body); b != "" {
			parts = append(parts, b)
		}
	}
	return strings.Join(parts, " "), nil
}

func collapseSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func truncate(s string, max int) (string, bool) {
	r := []rune(s)
	if len(r) <= max {
		return s, false
	}
	return string(r[:max]), true
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("transcript request failed: %d %s", e.code, http.StatusText(e.code))
}

// StatusCode returns the HTTP status that failed the request.
func (e *httpError) StatusCode() int { return e.code }

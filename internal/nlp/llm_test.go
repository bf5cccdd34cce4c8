package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	reply string
	err   error
	calls int
	user  string
}

func (f *fakeCompleter) Complete(_ context.Context, _, user string) (string, error) {
	f.calls++
	f.user = user
	return f.reply, f.err
}

func TestNewLLMRecognizer_RequiresClient(t *testing.T) {
	_, err := NewLLMRecognizer(nil)
	assert.Error(t, err)
}

func TestLLMRecognizer_AnchorsReportedSpans(t *testing.T) {
	fake := &fakeCompleter{reply: "```json\n" +
		`{"entities":[{"label":"date","text":"June 19th"},{"label":"TIME","text":"9 am"},{"label":"PLACE","text":"lab"}]}` +
		"\n```"}
	rec, err := NewLLMRecognizer(fake)
	require.NoError(t, err)

	text := "exam on june 19th at 9 am in the lab"
	ents, err := rec.DetectEntities(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, text, fake.user)
	require.Len(t, ents, 2)
	assert.Equal(t, Entity{Label: LabelDate, Text: "june 19th", Start: 8, End: 17}, ents[0])
	assert.Equal(t, Entity{Label: LabelTime, Text: "9 am", Start: 21, End: 25}, ents[1])
}

func TestLLMRecognizer_RepeatedPhrasesMapToSuccessiveOccurrences(t *testing.T) {
	fake := &fakeCompleter{reply: `{"entities":[{"label":"DATE","text":"tomorrow"},{"label":"DATE","text":"tomorrow"}]}`}
	rec, err := NewLLMRecognizer(fake)
	require.NoError(t, err)

	ents, err := rec.DetectEntities(context.Background(), "gym tomorrow and dinner tomorrow")
	require.NoError(t, err)
	require.Len(t, ents, 2)
	assert.Equal(t, 4, ents[0].Start)
	assert.Equal(t, 24, ents[1].Start)
}

func TestLLMRecognizer_FallsBackToRules(t *testing.T) {
	text := "exam on may 10th at 2 pm"
	want, err := NewRules().DetectEntities(context.Background(), text)
	require.NoError(t, err)

	tests := []struct {
		name string
		fake *fakeCompleter
	}{
		{name: "client error", fake: &fakeCompleter{err: errors.New("timeout")}},
		{name: "not json", fake: &fakeCompleter{reply: "sorry, I cannot help"}},
		{name: "missing array", fake: &fakeCompleter{reply: `{"dates":[]}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewLLMRecognizer(tt.fake)
			require.NoError(t, err)

			got, err := rec.DetectEntities(context.Background(), text)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLLMRecognizer_DelegatesTokenization(t *testing.T) {
	rec, err := NewLLMRecognizer(&fakeCompleter{})
	require.NoError(t, err)

	tokens := rec.Tag(rec.Tokenize("a meeting"))
	require.Len(t, tokens, 2)
	assert.Equal(t, TagDet, tokens[0].Tag)
	assert.Equal(t, TagNoun, tokens[1].Tag)
}

func TestNewOpenAICompleter_Validation(t *testing.T) {
	_, err := NewOpenAICompleter(OpenAISettings{Model: "gpt-4o-mini"})
	assert.Error(t, err)

	_, err = NewOpenAICompleter(OpenAISettings{APIKey: "sk-test"})
	assert.Error(t, err)
}

func TestOpenAICompleter_Complete(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",`+
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"entities\":[]}"}}]}`)
	}))
	defer srv.Close()

	c, err := NewOpenAICompleter(OpenAISettings{Model: "gpt-4o-mini", APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "system prompt", "exam tomorrow")
	require.NoError(t, err)
	assert.Equal(t, `{"entities":[]}`, out)
	assert.Equal(t, "gpt-4o-mini", gotBody["model"])

	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

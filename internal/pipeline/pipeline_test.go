package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textcal/internal/config"
	"textcal/internal/ics"
	"textcal/internal/model"
	"textcal/internal/nlp"
	"textcal/internal/segment"
)

var anchor = time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)

func testSerializer() *ics.Serializer {
	n := 0
	return ics.NewSerializer("", "",
		ics.WithClock(func() time.Time { return anchor }),
		ics.WithUIDGenerator(func() string {
			n++
			return fmt.Sprintf("evt-%d@test", n)
		}),
	)
}

func newTestGenerator(policy segment.Policy) *Generator {
	return New(Options{Policy: policy, Serializer: testSerializer()})
}

func utc(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2024, month, day, hour, minute, 0, 0, time.UTC)
}

func TestGenerate_Scenarios(t *testing.T) {
	type want struct {
		title      string
		start, end time.Time
	}
	tests := []struct {
		name  string
		input string
		want  []want
	}{
		{
			name:  "relative to previous event",
			input: "I have a chemistry exam on June 19th at 9 AM and a meeting the day after",
			want: []want{
				{"Chemistry Exam", utc(time.June, 19, 9, 0), utc(time.June, 19, 10, 0)},
				{"Meeting", utc(time.June, 20, 9, 0), utc(time.June, 20, 10, 0)},
			},
		},
		{
			name:  "bare day follows previous month",
			input: "Physics exam on May 10th at 2 PM and a project deadline on the 15th at noon",
			want: []want{
				{"Physics Exam", utc(time.May, 10, 14, 0), utc(time.May, 10, 15, 0)},
				{"Project Deadline", utc(time.May, 15, 12, 0), utc(time.May, 15, 13, 0)},
			},
		},
		{
			name:  "explicit range and duration",
			input: "Dentist tomorrow 2-4 pm. Gym on Friday for 90 minutes",
			want: []want{
				{"Dentist", utc(time.January, 2, 14, 0), utc(time.January, 2, 16, 0)},
				{"Gym", utc(time.January, 5, 9, 0), utc(time.January, 5, 10, 30)},
			},
		},
		{
			name:  "dash before a lone time",
			input: "Doctor appointment - 3 pm tomorrow",
			want: []want{
				{"Doctor Appointment", utc(time.January, 2, 15, 0), utc(time.January, 2, 16, 0)},
			},
		},
		{
			name:  "to before a lone time",
			input: "Call mom to 3 pm tomorrow",
			want: []want{
				{"Call Mom", utc(time.January, 2, 15, 0), utc(time.January, 2, 16, 0)},
			},
		},
		{
			name:  "dotted clock",
			input: "Meeting at 10.30 am tomorrow",
			want: []want{
				{"Meeting", utc(time.January, 2, 10, 30), utc(time.January, 2, 11, 30)},
			},
		},
		{
			name:  "end after midnight",
			input: "Party at 10 pm until 1 am tomorrow",
			want: []want{
				{"Party", utc(time.January, 2, 22, 0), utc(time.January, 3, 1, 0)},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestGenerator(segment.PolicyJoin).Generate(context.Background(), tt.input, anchor)
			require.NoError(t, err)
			assert.Empty(t, res.Skipped)
			assert.Empty(t, res.Warnings)

			events := res.Document.Events
			require.Len(t, events, len(tt.want))
			for i, w := range tt.want {
				assert.Equal(t, w.title, events[i].Title, "event %d", i)
				assert.True(t, w.start.Equal(events[i].Start), "event %d start %s", i, events[i].Start)
				assert.True(t, w.end.Equal(events[i].End), "event %d end %s", i, events[i].End)
				assert.Equal(t, i, events[i].SourceClauseIndex)
			}
			assert.Equal(t, len(tt.want), strings.Count(res.Document.Text, "BEGIN:VEVENT\r\n"))
		})
	}
}

func TestGenerate_DocumentText(t *testing.T) {
	res, err := newTestGenerator(segment.PolicyJoin).Generate(context.Background(),
		"I have a chemistry exam on June 19th at 9 AM and a meeting the day after", anchor)
	require.NoError(t, err)

	text := res.Document.Text
	assert.Contains(t, text, "UID:evt-1@test\r\n")
	assert.Contains(t, text, "SUMMARY:Chemistry Exam\r\n")
	assert.Contains(t, text, "DTSTART:20240619T090000Z\r\n")
	assert.Contains(t, text, "DTEND:20240620T100000Z\r\n")
	assert.Contains(t, text, "PRODID:"+ics.DefaultProductID+"\r\n")
}

func TestGenerate_NoDate(t *testing.T) {
	res, err := newTestGenerator(segment.PolicyJoin).Generate(context.Background(), "buy groceries", anchor)
	require.NoError(t, err)

	assert.Empty(t, res.Document.Events)
	require.Len(t, res.Skipped, 1)
	assert.True(t, errors.Is(res.Skipped[0].Reason, model.ErrUnresolvedDate))
	assert.Equal(t, "buy groceries", res.Skipped[0].Text)
	assert.Equal(t, 0, res.Skipped[0].Start)
	assert.Equal(t, len("buy groceries"), res.Skipped[0].End)
	assert.Contains(t, res.Warnings, "no events found")
	assert.NotContains(t, res.Document.Text, "BEGIN:VEVENT")
}

func TestGenerate_EmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := newTestGenerator(segment.PolicyJoin).Generate(context.Background(), input, anchor)
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrEmptyInput), "input %q", input)
	}
}

func TestGenerate_DayAfterWithoutAnchor(t *testing.T) {
	res, err := newTestGenerator(segment.PolicyJoin).Generate(context.Background(),
		"Meeting the day after. Lunch tomorrow at noon", anchor)
	require.NoError(t, err)

	require.Len(t, res.Skipped, 1)
	assert.True(t, errors.Is(res.Skipped[0].Reason, model.ErrNoAnchorEvent))
	assert.Equal(t, 0, res.Skipped[0].Index)

	require.Len(t, res.Document.Events, 1)
	assert.Equal(t, "Lunch", res.Document.Events[0].Title)
	assert.Equal(t, 1, res.Document.Events[0].SourceClauseIndex)
	assert.True(t, utc(time.January, 2, 12, 0).Equal(res.Document.Events[0].Start))
}

func TestGenerate_SkippedClauseDoesNotAnchor(t *testing.T) {
	res, err := newTestGenerator(segment.PolicyJoin).Generate(context.Background(),
		"Party on March 3rd. Buy groceries. Cleanup the day after", anchor)
	require.NoError(t, err)

	require.Len(t, res.Skipped, 1)
	require.Len(t, res.Document.Events, 2)
	assert.True(t, utc(time.March, 4, 9, 0).Equal(res.Document.Events[1].Start))
}

func TestGenerate_PlaceholderTitle(t *testing.T) {
	res, err := New(Options{Placeholder: "Busy", Serializer: testSerializer()}).
		Generate(context.Background(), "tomorrow at 9 am", anchor)
	require.NoError(t, err)

	require.Len(t, res.Document.Events, 1)
	assert.Equal(t, "Busy", res.Document.Events[0].Title)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], `"Busy"`)
}

func TestGenerate_ClampedEnd(t *testing.T) {
	res, err := newTestGenerator(segment.PolicyJoin).Generate(context.Background(),
		"standup tomorrow from 10 am to 9 am", anchor)
	require.NoError(t, err)

	require.Len(t, res.Document.Events, 1)
	ev := res.Document.Events[0]
	assert.True(t, utc(time.January, 2, 10, 0).Equal(ev.Start))
	assert.Equal(t, time.Hour, ev.End.Sub(ev.Start))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "end time is not after start")
}

func TestGenerate_DistributePolicy(t *testing.T) {
	input := "exam on the 10th and the 15th and a party on friday"

	joined, err := newTestGenerator(segment.PolicyJoin).Generate(context.Background(), input, anchor)
	require.NoError(t, err)
	require.Len(t, joined.Document.Events, 2)
	assert.True(t, utc(time.January, 10, 9, 0).Equal(joined.Document.Events[0].Start))

	spread, err := newTestGenerator(segment.PolicyDistribute).Generate(context.Background(), input, anchor)
	require.NoError(t, err)
	require.Len(t, spread.Document.Events, 3)
	assert.Equal(t, "Exam", spread.Document.Events[0].Title)
	assert.Equal(t, "Exam", spread.Document.Events[1].Title)
	assert.Equal(t, "Party", spread.Document.Events[2].Title)
	assert.True(t, utc(time.January, 10, 9, 0).Equal(spread.Document.Events[0].Start))
	assert.True(t, utc(time.January, 15, 9, 0).Equal(spread.Document.Events[1].Start))
	assert.True(t, utc(time.January, 5, 9, 0).Equal(spread.Document.Events[2].Start))
}

func TestGenerate_CustomDefaults(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	g := New(Options{
		Location:        seoul,
		DefaultHour:     8,
		DefaultMinute:   30,
		DefaultDuration: 30 * time.Minute,
		Serializer:      testSerializer(),
	})
	assert.Equal(t, seoul, g.Location())

	res, err := g.Generate(context.Background(), "dentist tomorrow", anchor)
	require.NoError(t, err)
	require.Len(t, res.Document.Events, 1)

	ev := res.Document.Events[0]
	assert.True(t, time.Date(2024, time.January, 2, 8, 30, 0, 0, seoul).Equal(ev.Start))
	assert.Equal(t, "KST", ev.Start.Location().String())
	assert.Equal(t, 30*time.Minute, ev.End.Sub(ev.Start))
	assert.Contains(t, res.Document.Text, "DTSTART:20240101T233000Z\r\n")
}

func TestGenerate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestGenerator(segment.PolicyJoin).Generate(ctx, "gym tomorrow", anchor)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerate_Concurrent(t *testing.T) {
	g := New(Options{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := g.Generate(context.Background(), "Physics exam on May 10th at 2 PM and a project deadline on the 15th at noon", anchor)
			assert.NoError(t, err)
			assert.Len(t, res.Document.Events, 2)
		}()
	}
	wg.Wait()
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Timezone = "Asia/Seoul"
	cfg.DefaultTime = "00:00"
	cfg.UIDDomain = "cal.example.com"

	g, err := FromConfig(cfg, ics.WithClock(func() time.Time { return anchor }))
	require.NoError(t, err)
	assert.Equal(t, "Asia/Seoul", g.Location().String())

	res, err := g.Generate(context.Background(), "dentist tomorrow", anchor)
	require.NoError(t, err)
	require.Len(t, res.Document.Events, 1)
	assert.Equal(t, 0, res.Document.Events[0].Start.Hour())
	assert.Contains(t, res.Document.Text, "DTSTART:20240101T150000Z\r\n")
	assert.Regexp(t, `UID:[0-9a-f-]{36}@cal\.example\.com`, res.Document.Text)

	_, err = FromConfig(nil)
	assert.Error(t, err)

	bad := config.DefaultConfig()
	bad.Timezone = "Nowhere/Land"
	_, err = FromConfig(bad)
	assert.Error(t, err)
}

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(config.NLPConfig{Engine: "rules"})
	require.NoError(t, err)
	assert.IsType(t, &nlp.Rules{}, engine)

	engine, err = NewEngine(config.NLPConfig{Engine: "dateparser"})
	require.NoError(t, err)
	assert.IsType(t, &nlp.DateparserRecognizer{}, engine)

	t.Setenv("OPENAI_API_KEY", "")
	_, err = NewEngine(config.NLPConfig{Engine: "openai", Model: "gpt-4o-mini"})
	assert.Error(t, err)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	engine, err = NewEngine(config.NLPConfig{Engine: "openai", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.IsType(t, &nlp.LLMRecognizer{}, engine)

	_, err = NewEngine(config.NLPConfig{Engine: "spacy"})
	assert.Error(t, err)
}

func TestGenerator_WithLocation(t *testing.T) {
	base := New(Options{DefaultHour: 7, DefaultMinute: 15, Serializer: testSerializer()})
	berlin := time.FixedZone("CET", 3600)

	moved := base.WithLocation(berlin)
	assert.Equal(t, time.UTC, base.Location())
	assert.Equal(t, berlin, moved.Location())

	res, err := moved.Generate(context.Background(), "yoga tomorrow", anchor)
	require.NoError(t, err)
	require.Len(t, res.Document.Events, 1)
	assert.Contains(t, res.Document.Text, "DTSTART:20240102T061500Z\r\n")
}

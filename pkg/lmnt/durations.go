package lmnt

import (
	"strings"
	"unicode"
)

// SampleSpan is a grouped word (or whitespace run) with its position in
// samples.
type SampleSpan struct {
	Text     string `json:"text"`
	Start    int    `json:"start"`
	Duration int    `json:"duration"`
}

// Seconds converts the span to a WordDuration at the given sample rate.
func (s SampleSpan) Seconds(sampleRate int) WordDuration {
	if sampleRate <= 0 {
		return WordDuration{Text: s.Text}
	}
	rate := float64(sampleRate)
	return WordDuration{
		Text:     s.Text,
		Start:    float64(s.Start) / rate,
		Duration: float64(s.Duration) / rate,
	}
}

// GroupPhonemeDurations folds per-phoneme frame counts into word spans.
//
// frames[i] is the number of frames spent on phonemes[i]. Consecutive
// non-whitespace phonemes form one word and each whitespace run forms one
// entry. Spans are contiguous: every span starts where the previous one
// ended.
//
//	GroupPhonemeDurations([]int{1, 1, 1, 2}, []string{"H", "i", " ", "!"}, 300)
//	// [{Hi 0 600} {" " 600 300} {! 900 600}]
func GroupPhonemeDurations(frames []int, phonemes []string, samplesPerFrame int) ([]SampleSpan, error) {
	const op = "GroupPhonemeDurations"
	if len(frames) == 0 || len(phonemes) == 0 {
		return nil, configError(op, "durations and phonemes must not be empty")
	}
	if len(frames) != len(phonemes) {
		return nil, configError(op, "got %d durations for %d phonemes", len(frames), len(phonemes))
	}
	if samplesPerFrame <= 0 {
		return nil, configError(op, "samples per frame must be positive, got %d", samplesPerFrame)
	}

	var (
		spans   []SampleSpan
		text    strings.Builder
		start   int
		length  int
		inSpace bool
	)
	emit := func() {
		if text.Len() == 0 {
			return
		}
		spans = append(spans, SampleSpan{Text: text.String(), Start: start, Duration: length})
		start += length
		length = 0
		text.Reset()
	}

	for i, ph := range phonemes {
		if frames[i] < 0 {
			return nil, configError(op, "negative duration %d at index %d", frames[i], i)
		}
		if ph == "" {
			return nil, configError(op, "empty phoneme at index %d", i)
		}
		space := isSpace(ph)
		if text.Len() > 0 && space != inSpace {
			emit()
		}
		inSpace = space
		text.WriteString(ph)
		length += frames[i] * samplesPerFrame
	}
	emit()
	return spans, nil
}

func isSpace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

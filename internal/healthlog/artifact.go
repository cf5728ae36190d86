package healthlog

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SummaryRuneLimit bounds the artifact summary; longer transcripts are cut
// and marked with an ellipsis.
const SummaryRuneLimit = 100

// MinTranscriptRunes is the smallest trimmed transcript worth logging.
const MinTranscriptRunes = 3

// Category tags the kind of recovery event an artifact records.
type Category string

const (
	CategoryMood       Category = "mood"
	CategoryPain       Category = "pain"
	CategorySleep      Category = "sleep"
	CategoryMeal       Category = "meal"
	CategoryMedication Category = "medication"
	CategoryGeneral    Category = "general"
)

// Impact is the recovery-score adjustment attached to an artifact.
type Impact struct {
	Category Category `json:"category"`
	Change   int      `json:"change"`
}

// Artifact is the immutable output of a logging-mode session. Ownership
// transfers to the caller at creation; this package never mutates one.
type Artifact struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Summary   string `json:"summary"`
	Impact    Impact `json:"impact"`
}

// FromTranscript synthesizes an artifact from a session transcript. It
// returns nil when the trimmed transcript is too short to be a meaningful
// log entry.
func FromTranscript(transcript string, at time.Time) *Artifact {
	text := strings.TrimSpace(transcript)
	if len([]rune(text)) < MinTranscriptRunes {
		return nil
	}
	return &Artifact{
		ID:        uuid.New().String(),
		Timestamp: at.UTC().Format(time.RFC3339),
		Summary:   Summarize(text),
		Impact:    Classify(text),
	}
}

// Summarize truncates text to SummaryRuneLimit runes, appending "..." only
// when something was cut.
func Summarize(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= SummaryRuneLimit {
		return string(runes)
	}
	return string(runes[:SummaryRuneLimit]) + "..."
}

// categoryWords maps transcript keywords to an event category. First match
// in category order wins, so the more specific clinical categories are
// checked before mood.
var categoryWords = []struct {
	cat   Category
	words []string
}{
	{CategoryMedication, []string{"medication", "medicine", "pill", "dose", "药", "吃药", "服药"}},
	{CategoryPain, []string{"pain", "ache", "hurt", "sore", "疼", "痛"}},
	{CategorySleep, []string{"sleep", "slept", "insomnia", "nap", "睡", "失眠"}},
	{CategoryMeal, []string{"eat", "ate", "meal", "appetite", "food", "吃饭", "胃口", "食欲"}},
	{CategoryMood, []string{"mood", "feel", "feeling", "happy", "sad", "anxious", "心情", "情绪", "开心", "难过", "焦虑"}},
}

var positiveWords = []string{
	"good", "better", "great", "well", "improved", "fine",
	"不错", "好转", "开心", "舒服", "轻松",
}

var negativeWords = []string{
	"bad", "worse", "terrible", "awful", "tired", "weak",
	"难受", "不好", "糟糕", "疼", "痛", "失眠",
}

// Classify derives an impact tag from transcript keywords. Unmatched text
// gets a neutral general entry.
func Classify(text string) Impact {
	lower := strings.ToLower(text)

	impact := Impact{Category: CategoryGeneral}
	for _, group := range categoryWords {
		if containsAny(lower, group.words) {
			impact.Category = group.cat
			break
		}
	}

	if containsAny(lower, positiveWords) {
		impact.Change = 1
	} else if containsAny(lower, negativeWords) {
		impact.Change = -1
	}
	return impact
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

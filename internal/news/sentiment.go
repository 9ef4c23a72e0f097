package news

import (
	"sync"

	"github.com/jonreiter/govader"
)

// Sentiment labels.
const (
	Bullish = "Bullish"
	Bearish = "Bearish"
	Neutral = "Neutral"
)

// LabelThreshold is the polarity magnitude beyond which a score is labelled
// Bullish or Bearish.
const LabelThreshold = 0.1

// analyzer loads the VADER lexicon once; scoring only reads it.
var analyzer = sync.OnceValue(govader.NewSentimentIntensityAnalyzer)

// Score returns the VADER compound polarity of text in [-1, 1]. Negation,
// intensifiers and punctuation emphasis are handled by the analyzer. Text
// with no lexicon words scores 0.
func Score(text string) float64 {
	if text == "" {
		return 0
	}
	return analyzer().PolarityScores(text).Compound
}

// AverageScore is the mean Score over articles, or 0 for none.
func AverageScore(articles []Article) float64 {
	if len(articles) == 0 {
		return 0
	}
	var sum float64
	for _, a := range articles {
		sum += Score(a.Text())
	}
	return sum / float64(len(articles))
}

// Label maps a score to Bullish, Bearish or Neutral.
func Label(score float64) string {
	switch {
	case score > LabelThreshold:
		return Bullish
	case score < -LabelThreshold:
		return Bearish
	default:
		return Neutral
	}
}

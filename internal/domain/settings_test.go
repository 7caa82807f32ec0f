package domain

import (
	"reflect"
	"testing"
)

func TestNormalized_ZeroValuesGetDefaults(t *testing.T) {
	got := Settings{}.Normalized()

	if got.IntervalHours != DefaultIntervalHours {
		t.Errorf("IntervalHours = %d, want %d", got.IntervalHours, DefaultIntervalHours)
	}
	if got.MaxPostsPerDay != DefaultMaxPostsPerDay {
		t.Errorf("MaxPostsPerDay = %d, want %d", got.MaxPostsPerDay, DefaultMaxPostsPerDay)
	}
	if got.ArticleLength != DefaultArticleLength {
		t.Errorf("ArticleLength = %d, want %d", got.ArticleLength, DefaultArticleLength)
	}
	if got.ImagesPerArticle != DefaultImagesPerArticle {
		t.Errorf("ImagesPerArticle = %d, want %d", got.ImagesPerArticle, DefaultImagesPerArticle)
	}
	if got.Category != "general" {
		t.Errorf("Category = %q, want %q", got.Category, "general")
	}
}

func TestNormalized_SetValuesKept(t *testing.T) {
	in := Settings{
		Enabled:          true,
		IntervalHours:    2,
		CronExpression:   "0 */2 * * *",
		MaxPostsPerDay:   12,
		ArticleLength:    500,
		ImagesPerArticle: 1,
		Category:         "technology",
		ManualKeywords:   []string{"golang"},
		ManualTitles:     []string{"A Title"},
	}

	got := in.Normalized()

	if !reflect.DeepEqual(got, in) {
		t.Errorf("Normalized() = %+v, want unchanged %+v", got, in)
	}
}

func TestNormalized_NegativeValuesGetDefaults(t *testing.T) {
	got := Settings{IntervalHours: -1, MaxPostsPerDay: -5}.Normalized()

	if got.IntervalHours != DefaultIntervalHours {
		t.Errorf("IntervalHours = %d, want %d", got.IntervalHours, DefaultIntervalHours)
	}
	if got.MaxPostsPerDay != DefaultMaxPostsPerDay {
		t.Errorf("MaxPostsPerDay = %d, want %d", got.MaxPostsPerDay, DefaultMaxPostsPerDay)
	}
}

func TestNormalized_DoesNotMutateReceiver(t *testing.T) {
	in := Settings{}
	_ = in.Normalized()

	if in.IntervalHours != 0 || in.Category != "" {
		t.Errorf("receiver mutated: %+v", in)
	}
}

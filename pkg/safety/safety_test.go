package safety_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hitlbot/warden/pkg/safety"
)

func TestAnalyzeDeterministic(t *testing.T) {
	f := safety.New()
	a1 := f.Analyze("are you single?")
	a2 := f.Analyze("are you single?")
	assert.Equal(t, a1, a2)
	assert.Greater(t, a1.RiskScore, 0.0)
	assert.Contains(t, a1.Flags, string(safety.CategoryAmbiguous))
}

func TestAnalyzeBenignText(t *testing.T) {
	f := safety.New()
	a := f.Analyze("hey what are you up to?")
	assert.Equal(t, 0.0, a.RiskScore)
	assert.Empty(t, a.Flags)
}

func TestAnalyzeLeetSpeakNormalization(t *testing.T) {
	f := safety.New()
	plain := f.Analyze("send me nudes")
	leet := f.Analyze("s3nd m3 nud3s")
	assert.Equal(t, plain.RiskScore, leet.RiskScore)
}

func TestAnalyzeAllTakesWorstCase(t *testing.T) {
	f := safety.New()
	a := f.AnalyzeAll([]string{"hey!", "are you single?"})
	assert.Equal(t, safety.RiskScoreForCategory(safety.CategoryAmbiguous), a.RiskScore)
}

func TestRiskScoreMaxAcrossCategories(t *testing.T) {
	f := safety.New()
	a := f.Analyze("are you single? send me nudes")
	assert.Equal(t, safety.RiskScoreForCategory(safety.CategorySexual), a.RiskScore)
}

package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCondition_Evaluate(t *testing.T) {
	facts := Facts{
		"HTTP_HOST":       "www.example.com",
		"QUERY_STRING":    "lang=en",
		"HTTP_USER_AGENT": "Mozilla/5.0 (iPhone)",
	}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals", Condition{Input: "HTTP_HOST", Comparator: CompareEquals, Value: "www.example.com"}, true},
		{"equals case sensitive", Condition{Input: "HTTP_HOST", Comparator: CompareEquals, Value: "WWW.example.com"}, false},
		{"equals ignore case", Condition{Input: "HTTP_HOST", Comparator: CompareEquals, Value: "WWW.example.com", IgnoreCase: true}, true},
		{"pattern", Condition{Input: "HTTP_USER_AGENT", Comparator: ComparePattern, Value: `iPhone|Android`}, true},
		{"pattern ignore case", Condition{Input: "HTTP_USER_AGENT", Value: `IPHONE`, IgnoreCase: true}, true},
		{"default comparator is pattern", Condition{Input: "QUERY_STRING", Value: `^lang=`}, true},
		{"negate", Condition{Input: "QUERY_STRING", Value: `^lang=`, Negate: true}, false},
		{"lowercase input name", Condition{Input: "http_host", Comparator: CompareEquals, Value: "www.example.com"}, true},
		{"missing input is empty", Condition{Input: "HTTP_REFERER", Value: `^$`}, true},
		{"missing input equals empty", Condition{Input: "HTTPS", Comparator: CompareEquals, Value: ""}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc, err := CompileCondition(tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cc.Evaluate(facts))
		})
	}
}

func TestEvaluateAll(t *testing.T) {
	facts := Facts{"A": "1", "B": "2"}
	yes, err := CompileCondition(Condition{Input: "A", Comparator: CompareEquals, Value: "1"})
	require.NoError(t, err)
	no, err := CompileCondition(Condition{Input: "B", Comparator: CompareEquals, Value: "1"})
	require.NoError(t, err)

	assert.True(t, EvaluateAll(nil, MatchAll, facts))
	assert.False(t, EvaluateAll(nil, MatchAny, facts))

	assert.True(t, EvaluateAll([]CompiledCondition{yes, yes}, MatchAll, facts))
	assert.False(t, EvaluateAll([]CompiledCondition{yes, no}, MatchAll, facts))
	assert.True(t, EvaluateAll([]CompiledCondition{no, yes}, MatchAny, facts))
	assert.False(t, EvaluateAll([]CompiledCondition{no, no}, MatchAny, facts))
}

func TestHeaderFact(t *testing.T) {
	assert.Equal(t, "HTTP_USER_AGENT", HeaderFact("User-Agent"))
	assert.Equal(t, "HTTP_X_FORWARDED_PROTO", HeaderFact("x-forwarded-proto"))
}

func TestCompiledRule_MatchConditionsWithoutConditions(t *testing.T) {
	def := redirectDef("a", "^/a$", "/b")
	assert.True(t, MustCompile(def).MatchConditions(Facts{}))

	def.ConditionGrouping = MatchAny
	assert.False(t, MustCompile(def).MatchConditions(Facts{}))
}

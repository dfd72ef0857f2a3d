package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"url-rewrite/internal/rules"
)

func TestRuleRecord_Normalize(t *testing.T) {
	t.Run("requires exactly one body", func(t *testing.T) {
		assert.Error(t, (&RuleRecord{Context: "web"}).Normalize())
		assert.Error(t, (&RuleRecord{
			Context: "web",
			Rule:    &rules.RuleDefinition{},
			Simple:  &rules.SimpleRedirect{},
		}).Normalize())
	})

	t.Run("requires context", func(t *testing.T) {
		assert.Error(t, (&RuleRecord{Rule: &rules.RuleDefinition{ID: "a"}}).Normalize())
	})

	t.Run("assigns id", func(t *testing.T) {
		rec := RuleRecord{Context: "web", Simple: &rules.SimpleRedirect{Path: "/a"}}
		require.NoError(t, rec.Normalize())
		assert.Len(t, rec.ID(), 36)
		assert.Equal(t, KindSimpleRedirect, rec.Kind())
	})
}

func TestRuleRecord_Definition(t *testing.T) {
	folder := &Folder{SiteRestriction: "shop"}

	rec := RuleRecord{Context: "web", Rule: &rules.RuleDefinition{ID: "a", Pattern: "^/a$"}}
	def := rec.Definition(folder)
	assert.Equal(t, rules.Inbound, def.Direction)
	assert.Equal(t, "shop", def.SiteRestriction)
	assert.Equal(t, KindRule, rec.Kind())

	rec.Rule.SiteRestriction = "blog"
	assert.Equal(t, "blog", rec.Definition(folder).SiteRestriction)
	assert.Equal(t, "blog", rec.Definition(nil).SiteRestriction)
}

func TestDecodeRecord(t *testing.T) {
	rec := RuleRecord{Context: "web", Simple: &rules.SimpleRedirect{ID: "s", Path: "/a", TargetURL: "/b", Enabled: true}}
	body, err := rec.Body()
	require.NoError(t, err)

	decoded, err := DecodeRecord(KindSimpleRedirect, body)
	require.NoError(t, err)
	assert.Equal(t, rec.Simple, decoded.Simple)

	_, err = DecodeRecord("widget", body)
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, err = DecodeRecord(KindRule, []byte("{"))
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

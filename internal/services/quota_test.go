package services

import (
	"testing"

	"exambank/internal/config"

	"github.com/stretchr/testify/assert"
)

func newTestQuotaPolicy() *QuotaPolicy {
	return NewQuotaPolicy(map[string]config.SubjectConfig{
		"english-language_ple": {
			DefaultQuota: 1,
			CategoryQuotas: map[int]int{
				31: 20,
				6:  10,
				1:  5,
				18: 3,
				16: 2,
				51: 1,
			},
		},
		"social-studies_ple": {
			DefaultQuota: 1,
			CategoryQuotas: map[int]int{
				36: 5,
				51: 5,
			},
		},
		"mathematics_ple": {DefaultQuota: 1},
		"degenerate":      {DefaultQuota: 0, CategoryQuotas: map[int]int{3: -2}},
	})
}

func TestQuotaPolicy_KnownSubject(t *testing.T) {
	policy := newTestQuotaPolicy()

	assert.True(t, policy.KnownSubject("english-language_ple"))
	assert.True(t, policy.KnownSubject("mathematics_ple"))
	assert.False(t, policy.KnownSubject("chemistry_ple"))
	assert.False(t, policy.KnownSubject(""))
}

func TestQuotaPolicy_RequiredCount_MappedCategories(t *testing.T) {
	policy := newTestQuotaPolicy()

	assert.Equal(t, 20, policy.RequiredCount("english-language_ple", 31))
	assert.Equal(t, 10, policy.RequiredCount("english-language_ple", 6))
	assert.Equal(t, 5, policy.RequiredCount("english-language_ple", 1))
	assert.Equal(t, 3, policy.RequiredCount("english-language_ple", 18))
	assert.Equal(t, 2, policy.RequiredCount("english-language_ple", 16))
	assert.Equal(t, 1, policy.RequiredCount("english-language_ple", 51))
	assert.Equal(t, 5, policy.RequiredCount("social-studies_ple", 36))
}

func TestQuotaPolicy_RequiredCount_SameCategoryDiffersPerSubject(t *testing.T) {
	policy := newTestQuotaPolicy()

	assert.Equal(t, 1, policy.RequiredCount("english-language_ple", 51))
	assert.Equal(t, 5, policy.RequiredCount("social-studies_ple", 51))
}

func TestQuotaPolicy_RequiredCount_UnmappedCategoryUsesDefault(t *testing.T) {
	policy := newTestQuotaPolicy()

	assert.Equal(t, 1, policy.RequiredCount("english-language_ple", 999))
	assert.Equal(t, 1, policy.RequiredCount("mathematics_ple", 12))
}

func TestQuotaPolicy_RequiredCount_FloorsDegenerateValues(t *testing.T) {
	policy := newTestQuotaPolicy()

	// Sub-floor override falls back to the (floored) default
	assert.Equal(t, 1, policy.RequiredCount("degenerate", 3))
	// Zero default is floored at one
	assert.Equal(t, 1, policy.RequiredCount("degenerate", 99))
	// Unknown subject still answers the floor
	assert.Equal(t, 1, policy.RequiredCount("nope", 1))
}

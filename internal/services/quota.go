package services

import (
	"exambank/internal/config"
)

// QuotaPolicy answers how many questions a category must contribute to one
// exam for a subject. It is a pure lookup over configuration data; the
// selector stays subject-agnostic.
type QuotaPolicy struct {
	subjects map[string]config.SubjectConfig
}

// NewQuotaPolicy creates a quota policy from the configured subject tables.
func NewQuotaPolicy(subjects map[string]config.SubjectConfig) *QuotaPolicy {
	return &QuotaPolicy{subjects: subjects}
}

// KnownSubject reports whether the subject has a quota mapping at all.
// Unknown subjects are client-input errors, not empty exams.
func (p *QuotaPolicy) KnownSubject(subjectName string) bool {
	_, ok := p.subjects[subjectName]
	return ok
}

// RequiredCount returns the number of questions category categoryID must
// contribute to one exam of subjectName. Total: any unmapped category, and
// any configured value below the floor, resolves to the subject default
// (itself floored at 1).
func (p *QuotaPolicy) RequiredCount(subjectName string, categoryID int) int {
	subject, ok := p.subjects[subjectName]
	if !ok {
		return config.MinCategoryQuota
	}

	def := subject.DefaultQuota
	if def < config.MinCategoryQuota {
		def = config.MinCategoryQuota
	}

	if quota, ok := subject.CategoryQuotas[categoryID]; ok {
		if quota < config.MinCategoryQuota {
			return def
		}
		return quota
	}
	return def
}

package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/program-enrollment-api/internal/models"
)

type workflowConfigReader interface {
	WorkflowConfig(ctx context.Context, namespace, key string) (*models.WorkflowConfig, error)
}

type personAttributeReader interface {
	AttributeValues(ctx context.Context, personUID string, attributeUIDs []string) (map[string]string, error)
}

// EnrollmentControlFilter restricts the catalog with the programEnrollmentControl rules kept in
// the data store. A program without rules is always enrollable.
type EnrollmentControlFilter struct {
	configs    workflowConfigReader
	attributes personAttributeReader
	namespace  string
	key        string
	logger     *zap.Logger
}

// NewEnrollmentControlFilter constructs EnrollmentControlFilter.
func NewEnrollmentControlFilter(configs workflowConfigReader, attributes personAttributeReader, namespace, key string, logger *zap.Logger) *EnrollmentControlFilter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentControlFilter{configs: configs, attributes: attributes, namespace: namespace, key: key, logger: logger}
}

// EnrollablePrograms returns the subset of programUIDs whose rules are all met by the person.
func (f *EnrollmentControlFilter) EnrollablePrograms(ctx context.Context, personUID string, programUIDs []string) ([]string, error) {
	cfg, err := f.configs.WorkflowConfig(ctx, f.namespace, f.key)
	if err != nil {
		return nil, fmt.Errorf("load workflow config: %w", err)
	}
	if cfg == nil || len(cfg.ProgramEnrollmentControl) == 0 {
		return programUIDs, nil
	}

	rules := make(map[string][]models.ProgramEnrollmentControl)
	attributeSet := make(map[string]struct{})
	for _, rule := range cfg.ProgramEnrollmentControl {
		rules[rule.ProgramUID] = append(rules[rule.ProgramUID], rule)
		attributeSet[rule.AttributeUID] = struct{}{}
	}

	needed := false
	for _, uid := range programUIDs {
		if len(rules[uid]) > 0 {
			needed = true
			break
		}
	}
	if !needed {
		return programUIDs, nil
	}

	attributeUIDs := make([]string, 0, len(attributeSet))
	for uid := range attributeSet {
		attributeUIDs = append(attributeUIDs, uid)
	}
	values, err := f.attributes.AttributeValues(ctx, personUID, attributeUIDs)
	if err != nil {
		return nil, fmt.Errorf("load person attributes: %w", err)
	}

	allowed := make([]string, 0, len(programUIDs))
	for _, uid := range programUIDs {
		if rulesMet(rules[uid], values) {
			allowed = append(allowed, uid)
			continue
		}
		f.logger.Debug("program hidden by enrollment control", zap.String("person_uid", personUID), zap.String("program_uid", uid))
	}
	return allowed, nil
}

func rulesMet(rules []models.ProgramEnrollmentControl, values map[string]string) bool {
	for _, rule := range rules {
		if !ConditionMet(rule, values[rule.AttributeUID]) {
			return false
		}
	}
	return true
}

// ConditionMet evaluates one rule against the person's attribute value. Unknown conditions fail.
func ConditionMet(rule models.ProgramEnrollmentControl, value string) bool {
	switch rule.Condition {
	case models.ConditionEquals:
		return value == rule.AttributeValue
	case models.ConditionNotEquals:
		return value != rule.AttributeValue
	case models.ConditionContains:
		return strings.Contains(value, rule.AttributeValue)
	case models.ConditionNotContains:
		return !strings.Contains(value, rule.AttributeValue)
	case models.ConditionBetween:
		bounds := strings.Split(rule.AttributeValue, ",")
		if len(bounds) != 2 {
			return false
		}
		lower, err := parseNumber(strings.TrimSpace(bounds[0]))
		if err != nil {
			return false
		}
		upper, err := parseNumber(strings.TrimSpace(bounds[1]))
		if err != nil {
			return false
		}
		n, err := parseNumber(value)
		if err != nil {
			return false
		}
		return n >= lower && n <= upper
	case models.ConditionGreaterThan:
		return numberOrZero(value) > numberOrZero(rule.AttributeValue)
	case models.ConditionLessThan:
		return numberOrZero(value) < numberOrZero(rule.AttributeValue)
	}
	return false
}

// parseNumber accepts only a bare number; surrounding whitespace is a parse failure.
func parseNumber(raw string) (float64, error) {
	return strconv.ParseFloat(raw, 64)
}

func numberOrZero(raw string) float64 {
	n, err := parseNumber(raw)
	if err != nil {
		return 0
	}
	return n
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/program-enrollment-api/internal/models"
)

// WorkflowConfigRepository reads the workflow document from the data store and the person
// attribute values its rules refer to.
type WorkflowConfigRepository struct {
	db *sqlx.DB
}

// NewWorkflowConfigRepository constructs the repository.
func NewWorkflowConfigRepository(db *sqlx.DB) *WorkflowConfigRepository {
	return &WorkflowConfigRepository{db: db}
}

// WorkflowConfig returns the document stored under namespace/key. A missing entry yields an
// empty config.
func (r *WorkflowConfigRepository) WorkflowConfig(ctx context.Context, namespace, key string) (*models.WorkflowConfig, error) {
	const query = `SELECT value FROM data_store WHERE namespace = $1 AND key = $2`
	var raw []byte
	if err := r.db.GetContext(ctx, &raw, query, namespace, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.WorkflowConfig{}, nil
		}
		return nil, fmt.Errorf("load data store %s/%s: %w", namespace, key, err)
	}
	var cfg models.WorkflowConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode data store %s/%s: %w", namespace, key, err)
	}
	return &cfg, nil
}

// AttributeValues returns the person's values for attributeUIDs keyed by attribute uid.
// Attributes without a value are absent from the map.
func (r *WorkflowConfigRepository) AttributeValues(ctx context.Context, personUID string, attributeUIDs []string) (map[string]string, error) {
	values := make(map[string]string, len(attributeUIDs))
	if len(attributeUIDs) == 0 {
		return values, nil
	}
	const query = `SELECT attribute_uid, value FROM person_attribute_values WHERE person_uid = $1 AND attribute_uid = ANY($2)`
	var rows []struct {
		AttributeUID string `db:"attribute_uid"`
		Value        string `db:"value"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, personUID, pq.Array(attributeUIDs)); err != nil {
		return nil, fmt.Errorf("load person attributes: %w", err)
	}
	for _, row := range rows {
		values[row.AttributeUID] = row.Value
	}
	return values, nil
}

// internal/audit/mirror.go
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"poultry-workflow/internal/common/logger"
	"poultry-workflow/internal/models"
)

// Mirror copies committed ledger rows into a secondary index for reporting
// queries. Implementations must never block the caller on failure.
type Mirror interface {
	Mirror(action *models.ReviewAction)
}

// NopMirror discards everything. Used when the search mirror is disabled.
type NopMirror struct{}

func (NopMirror) Mirror(*models.ReviewAction) {}

// SearchMirror indexes ledger rows into Elasticsearch asynchronously.
type SearchMirror struct {
	client  *elasticsearch.Client
	index   string
	timeout time.Duration
	log     logger.Logger
}

func NewSearchMirror(client *elasticsearch.Client, index string, log logger.Logger) *SearchMirror {
	return &SearchMirror{
		client:  client,
		index:   index,
		timeout: 10 * time.Second,
		log:     log,
	}
}

func (m *SearchMirror) Mirror(action *models.ReviewAction) {
	go m.indexAction(action)
}

func (m *SearchMirror) indexAction(action *models.ReviewAction) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	body, err := json.Marshal(action)
	if err != nil {
		m.log.WithError(err).Error("Failed to encode review action for search mirror", map[string]interface{}{
			"actionId": action.ID,
		})
		return
	}

	res, err := m.client.Index(
		m.index,
		bytes.NewReader(body),
		m.client.Index.WithDocumentID(action.ID),
		m.client.Index.WithContext(ctx),
	)
	if err != nil {
		m.log.WithError(err).Warn("Search mirror index failed", map[string]interface{}{
			"actionId":      action.ID,
			"applicationId": action.ApplicationID,
		})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		m.log.Warn("Search mirror rejected review action", map[string]interface{}{
			"actionId": action.ID,
			"status":   res.Status(),
		})
	}
}

package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/koustreak/dataagent/internal/errs"
	"github.com/koustreak/dataagent/internal/logger"
	"github.com/koustreak/dataagent/internal/model"
)

// HTTPTranslator delegates to an external model service. It POSTs
//
//	{"query": "...", "dialect": "...", "model": "...", "schemas": [...]}
//
// and expects {"sql": "..."} back, or {"error": "..."} with a non-2xx status.
type HTTPTranslator struct {
	endpoint string
	model    string
	client   *http.Client
	log      *logger.Logger
}

// NewHTTPTranslator creates a translator calling endpoint. timeout bounds
// each call; zero means 30s.
func NewHTTPTranslator(endpoint, modelName string, timeout time.Duration, log *logger.Logger) *HTTPTranslator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPTranslator{
		endpoint: endpoint,
		model:    modelName,
		client:   &http.Client{Timeout: timeout},
		log:      log.Component("translator"),
	}
}

type translateRequest struct {
	Query   string         `json:"query"`
	Dialect string         `json:"dialect"`
	Model   string         `json:"model,omitempty"`
	Schemas []schemaPrompt `json:"schemas"`
}

type translateResponse struct {
	SQL   string `json:"sql"`
	Error string `json:"error"`
}

// schemaPrompt is the compact schema view sent to the model. Sensitive
// columns are announced so the model can avoid them.
type schemaPrompt struct {
	Entity        string         `json:"entity"`
	Table         string         `json:"table"`
	Description   string         `json:"description,omitempty"`
	Columns       []columnPrompt `json:"columns"`
	Relationships []string       `json:"relationships,omitempty"`
}

type columnPrompt struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	PrimaryKey  bool   `json:"primaryKey,omitempty"`
	Nullable    bool   `json:"nullable"`
	Description string `json:"description,omitempty"`
	Examples    string `json:"examples,omitempty"`
	Sensitive   bool   `json:"sensitive,omitempty"`
}

func promptSchemas(schemas []*model.EntityDescriptor) []schemaPrompt {
	out := make([]schemaPrompt, 0, len(schemas))
	for _, d := range schemas {
		sp := schemaPrompt{
			Entity:      d.SimpleName(),
			Table:       d.TableName,
			Description: d.Description,
			Columns:     make([]columnPrompt, 0, len(d.Fields)),
		}
		for _, f := range d.Fields {
			sp.Columns = append(sp.Columns, columnPrompt{
				Name:        f.ColumnName,
				Type:        string(f.ColumnType),
				PrimaryKey:  f.PrimaryKey,
				Nullable:    f.Nullable,
				Description: f.Description,
				Examples:    f.Examples,
				Sensitive:   f.Sensitive,
			})
		}
		for _, r := range d.Relationships {
			rel := fmt.Sprintf("%s %s -> %s", r.FieldName, r.RelationshipType, r.TargetEntity)
			if r.JoinColumn != "" {
				rel += " via " + r.JoinColumn
			}
			sp.Relationships = append(sp.Relationships, rel)
		}
		out = append(out, sp)
	}
	return out
}

func (t *HTTPTranslator) Translate(ctx context.Context, text string, schemas []*model.EntityDescriptor, dialect string) (string, error) {
	body, err := json.Marshal(translateRequest{
		Query:   text,
		Dialect: dialect,
		Model:   t.model,
		Schemas: promptSchemas(schemas),
	})
	if err != nil {
		return "", errs.Wrap(errs.ErrKindTranslation, "cannot encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errs.Wrap(errs.ErrKindTranslation, "cannot build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindTranslation, "translation service unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errs.Wrap(errs.ErrKindTranslation, "cannot read translation response", err)
	}

	var out translateResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("translation service answered %d", resp.StatusCode)
		if decodeErr == nil && out.Error != "" {
			msg += ": " + out.Error
		}
		return "", errs.New(errs.ErrKindTranslation, msg)
	}
	if decodeErr != nil {
		return "", errs.Wrap(errs.ErrKindTranslation, "invalid translation response", decodeErr)
	}

	sql := cleanSQL(out.SQL)
	if sql == "" {
		return "", errs.New(errs.ErrKindTranslation, "translation service returned no statement")
	}

	t.log.DebugWith("translation service answered", map[string]any{
		"elapsed_ms": time.Since(start).Milliseconds(),
		"schemas":    len(schemas),
	})
	return sql, nil
}

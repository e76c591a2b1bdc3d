package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/dataagent/internal/errs"
	"github.com/koustreak/dataagent/internal/logger"
	"github.com/koustreak/dataagent/internal/model"
)

type naturalLanguageRequest struct {
	Query        string `json:"query"`
	DatabaseType string `json:"databaseType,omitempty"`
}

type sqlRequest struct {
	SQL        string         `json:"sql"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (s *Server) listSchemas(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.schemas.Schemas())
}

func (s *Server) clearSchemas(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Info("clearing learned schemas")
	s.schemas.Clear()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) summary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.schemas.Summary())
}

func (s *Server) count(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.schemas.Count())
}

func (s *Server) schemaByTable(w http.ResponseWriter, r *http.Request) {
	table, ok := pathParam(w, r, "table")
	if !ok {
		return
	}
	d, found := s.schemas.SchemaByTable(table)
	if !found {
		writeError(w, http.StatusNotFound, "no schema for table "+table)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) schema(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	d, found := s.schemas.Schema(id)
	if !found {
		writeError(w, http.StatusNotFound, "no schema for entity "+id)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) schemaExists(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.schemas.HasSchema(id))
}

func (s *Server) entityInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	info, found := s.schemas.EntityInfo(id)
	if !found {
		writeError(w, http.StatusNotFound, "no schema for entity "+id)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(info))
}

func (s *Server) entityNames(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.schemas.EntityNames())
}

func (s *Server) tableNames(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.schemas.TableNames())
}

// discover accepts the scope as ?scope= or the older ?packageName=.
func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope := strings.TrimSpace(q.Get("scope"))
	if scope == "" {
		scope = strings.TrimSpace(q.Get("packageName"))
	}
	if scope == "" {
		writeError(w, http.StatusBadRequest, "scope is required")
		return
	}
	force := false
	if raw := q.Get("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "force must be a boolean")
			return
		}
		force = v
	}

	log := logger.FromContext(r.Context())
	log.InfoWith("discovering schemas", map[string]any{"scope": scope, "force": force})
	ds, err := s.schemas.DiscoverAndLearn(r.Context(), scope, force)
	if err != nil {
		log.ErrorWith("schema discovery failed", err, map[string]any{"scope": scope})
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) naturalLanguage(w http.ResponseWriter, r *http.Request) {
	var req naturalLanguageRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, s.queries.ProcessNaturalLanguage(r.Context(), req.Query, req.DatabaseType))
}

func (s *Server) sql(w http.ResponseWriter, r *http.Request) {
	var req sqlRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, s.queries.ExecuteSQL(r.Context(), req.SQL, req.Parameters))
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":        s.queries.IsReady(r.Context()),
		"databaseInfo": s.queries.DatabaseInfo(r.Context()),
		"timestamp":    s.now().UTC(),
	})
}

func (s *Server) databaseInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queries.DatabaseInfo(r.Context()))
}

func (s *Server) databaseTables(w http.ResponseWriter, r *http.Request) {
	tables, ok := s.queries.Tables(r.Context())
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "table listing is not available")
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "UP",
		"schemas":  s.schemas.Count(),
		"entities": len(s.schemas.EntityNames()),
		"tables":   len(s.schemas.TableNames()),
	})
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		writeError(w, http.StatusNotFound, "snapshots are disabled")
		return
	}
	list, err := s.snapshots.List(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) saveSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		writeError(w, http.StatusNotFound, "snapshots are disabled")
		return
	}
	info, err := s.snapshots.Save(r.Context(), s.schemas.Schemas())
	if err != nil {
		logger.FromContext(r.Context()).ErrorWith("snapshot failed", err, nil)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// pathParam returns the unescaped URL parameter. Identifiers are package
// qualified and arrive with their slashes escaped.
func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil || v == "" {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return v, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func writeResult(w http.ResponseWriter, res *model.QueryResult) {
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, res)
}

func statusFor(err error) int {
	switch {
	case errs.IsInvalidInput(err), errs.IsValidationBlocked(err):
		return http.StatusBadRequest
	case errs.IsNotFound(err):
		return http.StatusNotFound
	case errs.IsPermissionDenied(err):
		return http.StatusForbidden
	case errs.IsTimeout(err):
		return http.StatusGatewayTimeout
	case errs.IsConnectionFailed(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error":  message,
		"status": status,
	})
}

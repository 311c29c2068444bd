// Package query exposes the catalog's read side over HTTP: asset
// listing with column and metadata filters, and per-asset current
// metadata values. It is a thin JSON translation in front of
// store.QueryRepo, in the same spirit as the teacher's health check
// server — a bare ServeMux, no framework.
package query

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/cuemby/katalog/pkg/log"
	"github.com/cuemby/katalog/pkg/registry"
	"github.com/cuemby/katalog/pkg/store"
	"github.com/cuemby/katalog/pkg/types"
)

// Server answers catalog read queries over HTTP.
type Server struct {
	store store.Store
	reg   *registry.Registry
	mux   *http.ServeMux
}

// NewServer builds a query server backed by st and reg. Call Handler
// to mount it on an existing mux, or use it directly as an
// http.Handler.
func NewServer(st store.Store, reg *registry.Registry) *Server {
	s := &Server{store: st, reg: reg, mux: http.NewServeMux()}
	s.mux.HandleFunc("/query/assets", s.handleListAssets)
	s.mux.HandleFunc("/query/assets/metadata", s.handleCurrentValues)
	return s
}

// Handler returns the HTTP handler to mount under a shared mux.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type assetResponse struct {
	ID               int64  `json:"id"`
	Namespace        string `json:"namespace"`
	ExternalID       string `json:"external_id"`
	CanonicalURI     string `json:"canonical_uri"`
	ActorID          int64  `json:"actor_id"`
	CanonicalAssetID *int64 `json:"canonical_asset_id,omitempty"`
}

type listAssetsResponse struct {
	Assets []assetResponse `json:"assets"`
	Total  *int            `json:"total,omitempty"`
}

// handleListAssets implements GET /query/assets.
//
// Supported query parameters:
//
//	namespace, external_id, canonical_uri, actor_id, canonical_asset_id
//	    exact-match filters on the assets table.
//	sort, desc=true, limit, offset, include_total=true
func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()

	opts := store.ListOptions{
		SortColumn:   q.Get("sort"),
		SortDesc:     q.Get("desc") == "true",
		IncludeTotal: q.Get("include_total") == "true",
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid offset", http.StatusBadRequest)
			return
		}
		opts.Offset = n
	}
	for _, col := range []string{"namespace", "external_id", "canonical_uri", "actor_id", "canonical_asset_id"} {
		if v := q.Get(col); v != "" {
			opts.Filters = append(opts.Filters, store.Filter{Column: col, Op: "=", Value: v})
		}
	}
	if keys, ok := q["metadata"]; ok {
		filters, err := s.parseMetadataFilters(keys)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		opts.MetadataFilters = filters
	}

	result, err := s.store.ListAssets(opts)
	if err != nil {
		log.WithComponent("query").Error().Err(err).Msg("list assets failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := listAssetsResponse{Total: result.Total}
	for _, a := range result.Assets {
		resp.Assets = append(resp.Assets, assetResponse{
			ID: a.ID, Namespace: a.Namespace, ExternalID: a.ExternalID,
			CanonicalURI: a.CanonicalURI, ActorID: a.ActorID, CanonicalAssetID: a.CanonicalAssetID,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseMetadataFilters decodes "metadata=key:op:value" query params,
// e.g. "metadata=file/size:>:1024".
func (s *Server) parseMetadataFilters(raw []string) ([]store.MetadataFilter, error) {
	var out []store.MetadataFilter
	for _, item := range raw {
		parts := strings.SplitN(item, ":", 3)
		if len(parts) != 3 {
			return nil, errBadMetadataFilter(item)
		}
		def, err := s.reg.GetByName(parts[0])
		if err != nil {
			return nil, err
		}
		keyID, err := s.reg.GetID(parts[0])
		if err != nil {
			return nil, err
		}
		value, err := coerceValue(def.ValueType, parts[2])
		if err != nil {
			return nil, err
		}
		out = append(out, store.MetadataFilter{KeyID: keyID, ValueType: def.ValueType, Op: parts[1], Value: value})
	}
	return out, nil
}

func errBadMetadataFilter(item string) error {
	return &queryError{msg: "malformed metadata filter " + strconv.Quote(item) + ", want key:op:value"}
}

type queryError struct{ msg string }

func (e *queryError) Error() string { return e.msg }

func coerceValue(vt types.ValueType, raw string) (any, error) {
	switch vt {
	case types.ValueInt, types.ValueRelation, types.ValueCollection:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		return n, nil
	case types.ValueFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return raw, nil
	}
}

type metadataValueResponse struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// handleCurrentValues implements GET /query/assets/metadata, returning
// the live values for one or more asset ids.
//
//	?asset_id=1&asset_id=2&key=file/name&key=file/size
//
// Omitting key returns every key declared in the registry.
func (s *Server) handleCurrentValues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()

	var assetIDs []int64
	for _, v := range q["asset_id"] {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid asset_id", http.StatusBadRequest)
			return
		}
		assetIDs = append(assetIDs, id)
	}
	if len(assetIDs) == 0 {
		http.Error(w, "at least one asset_id is required", http.StatusBadRequest)
		return
	}

	var keyIDs []int64
	keyNames := q["key"]
	if len(keyNames) == 0 {
		for _, def := range s.reg.All() {
			keyIDs = append(keyIDs, def.ID)
		}
	} else {
		for _, name := range keyNames {
			id, err := s.reg.GetID(name)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			keyIDs = append(keyIDs, id)
		}
	}

	values, err := s.store.CurrentValues(assetIDs, keyIDs)
	if err != nil {
		log.WithComponent("query").Error().Err(err).Msg("current values failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make(map[string]map[string]metadataValueResponse, len(values))
	for assetID, byKey := range values {
		keyed := make(map[string]metadataValueResponse, len(byKey))
		for keyID, m := range byKey {
			def, err := s.reg.GetByID(keyID)
			if err != nil {
				continue
			}
			keyed[def.Name] = metadataValueResponse{Key: def.Name, Value: scalarValue(m)}
		}
		out[strconv.FormatInt(assetID, 10)] = keyed
	}
	writeJSON(w, http.StatusOK, out)
}

func scalarValue(m *types.Metadata) any {
	switch m.ValueType {
	case types.ValueString:
		return derefString(m.ValueText)
	case types.ValueInt:
		return derefInt(m.ValueInt)
	case types.ValueFloat:
		return derefFloat(m.ValueReal)
	case types.ValueDatetime:
		if m.ValueDatetime == nil {
			return nil
		}
		return m.ValueDatetime
	case types.ValueJSON:
		return m.ValueJSON
	case types.ValueRelation:
		return derefInt(m.ValueRelationID)
	case types.ValueCollection:
		return derefInt(m.ValueCollectionID)
	default:
		return nil
	}
}

func derefString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func derefInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func derefFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

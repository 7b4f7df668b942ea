package server

import (
	"net/http"

	"github.com/pingcap-incubator/tinyds/kv/datastore"
	"github.com/pingcap-incubator/tinyds/kv/model"
	"github.com/pingcap-incubator/tinyds/kv/transaction"
	"github.com/unrolled/render"
)

type entityHandler struct {
	store *datastore.Store
	rd    *render.Render
}

func newEntityHandler(store *datastore.Store, rd *render.Render) *entityHandler {
	return &entityHandler{store: store, rd: rd}
}

type putRequest struct {
	Transaction uint64        `json:"transaction,omitempty"`
	Entities    []*jsonEntity `json:"entities"`
}

type keysRequest struct {
	Transaction uint64     `json:"transaction,omitempty"`
	Keys        []*jsonKey `json:"keys"`
}

type keysResponse struct {
	Keys []*jsonKey `json:"keys"`
}

type entitiesResponse struct {
	Entities []*jsonEntity `json:"entities"`
}

func (h *entityHandler) Put(w http.ResponseWriter, r *http.Request) {
	app := appVar(r)
	var req putRequest
	if err := readJSONRespondError(h.rd, w, r, &req); err != nil {
		return
	}
	entities := make([]*model.Entity, 0, len(req.Entities))
	for _, je := range req.Entities {
		e, err := decodeEntity(je, app)
		if err != nil {
			respondError(h.rd, w, err)
			return
		}
		entities = append(entities, e)
	}
	keys, err := h.store.Put(txHandle(app, req.Transaction), entities)
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, keysResponse{Keys: encodeKeys(keys)})
}

func (h *entityHandler) Get(w http.ResponseWriter, r *http.Request) {
	app := appVar(r)
	var req keysRequest
	if err := readJSONRespondError(h.rd, w, r, &req); err != nil {
		return
	}
	keys, err := decodeKeys(req.Keys, app)
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	entities, err := h.store.Get(txHandle(app, req.Transaction), keys)
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	jes, err := encodeEntities(entities)
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, entitiesResponse{Entities: jes})
}

func (h *entityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	app := appVar(r)
	var req keysRequest
	if err := readJSONRespondError(h.rd, w, r, &req); err != nil {
		return
	}
	keys, err := decodeKeys(req.Keys, app)
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	if err := h.store.Delete(txHandle(app, req.Transaction), keys); err != nil {
		respondError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, nil)
}

type allocateIDsRequest struct {
	Key  *jsonKey `json:"key"`
	Size uint64   `json:"size,omitempty"`
	Max  uint64   `json:"max,omitempty"`
}

type allocateIDsResponse struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

func (h *entityHandler) AllocateIDs(w http.ResponseWriter, r *http.Request) {
	app := appVar(r)
	var req allocateIDsRequest
	if err := readJSONRespondError(h.rd, w, r, &req); err != nil {
		return
	}
	key, err := decodeKey(req.Key, app)
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	start, end, err := h.store.AllocateIDs(key, req.Size, req.Max)
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, allocateIDsResponse{Start: start, End: end})
}

type queryHandler struct {
	store *datastore.Store
	rd    *render.Render
}

func newQueryHandler(store *datastore.Store, rd *render.Render) *queryHandler {
	return &queryHandler{store: store, rd: rd}
}

func (h *queryHandler) decode(w http.ResponseWriter, r *http.Request) (*model.Query, bool) {
	var jq jsonQuery
	if err := readJSONRespondError(h.rd, w, r, &jq); err != nil {
		return nil, false
	}
	q, err := decodeQuery(&jq, appVar(r))
	if err != nil {
		respondError(h.rd, w, err)
		return nil, false
	}
	return q, true
}

func (h *queryHandler) respond(w http.ResponseWriter, res *model.QueryResult, err error) {
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	jres, err := encodeQueryResult(res)
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, jres)
}

func (h *queryHandler) Run(w http.ResponseWriter, r *http.Request) {
	q, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := h.store.RunQuery(q)
	h.respond(w, res, err)
}

type nextRequest struct {
	Cursor  uint64 `json:"cursor"`
	Count   int    `json:"count,omitempty"`
	Offset  int    `json:"offset,omitempty"`
	Compile bool   `json:"compile,omitempty"`
}

func (h *queryHandler) Next(w http.ResponseWriter, r *http.Request) {
	var req nextRequest
	if err := readJSONRespondError(h.rd, w, r, &req); err != nil {
		return
	}
	res, err := h.store.Next(appVar(r), req.Cursor, req.Count, req.Offset, req.Compile)
	h.respond(w, res, err)
}

type countResponse struct {
	Count uint64 `json:"count"`
}

func (h *queryHandler) Count(w http.ResponseWriter, r *http.Request) {
	q, ok := h.decode(w, r)
	if !ok {
		return
	}
	n, err := h.store.Count(q)
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, countResponse{Count: n})
}

type historyEntry struct {
	Query *jsonQuery `json:"query"`
	Count uint64     `json:"count"`
}

type historyResponse struct {
	Queries []historyEntry `json:"queries"`
}

func (h *queryHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.store.QueryHistory(appVar(r))
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	resp := historyResponse{Queries: make([]historyEntry, 0, len(history))}
	for _, entry := range history {
		jq, err := encodeQuery(entry.Query)
		if err != nil {
			respondError(h.rd, w, err)
			return
		}
		resp.Queries = append(resp.Queries, historyEntry{Query: jq, Count: entry.Count})
	}
	h.rd.JSON(w, http.StatusOK, resp)
}

func (h *queryHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearQueryHistory(appVar(r)); err != nil {
		respondError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, nil)
}

type schemaHandler struct {
	store *datastore.Store
	rd    *render.Render
}

func newSchemaHandler(store *datastore.Store, rd *render.Render) *schemaHandler {
	return &schemaHandler{store: store, rd: rd}
}

type schemaResponse struct {
	Kinds []*jsonEntity `json:"kinds"`
}

// Get serves the kinds of a namespace, optionally bounded by the start_kind
// and end_kind query parameters.
func (h *schemaHandler) Get(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	kinds, err := h.store.GetSchema(appVar(r), params.Get("namespace"),
		params.Get("start_kind"), params.Get("end_kind"))
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	jkinds, err := encodeEntities(kinds)
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, schemaResponse{Kinds: jkinds})
}

type dropRequest struct {
	Namespace string `json:"namespace,omitempty"`
	Kind      string `json:"kind"`
}

type dropResponse struct {
	Dropped int `json:"dropped"`
}

func (h *schemaHandler) Drop(w http.ResponseWriter, r *http.Request) {
	var req dropRequest
	if err := readJSONRespondError(h.rd, w, r, &req); err != nil {
		return
	}
	n, err := h.store.Drop(appVar(r), req.Namespace, req.Kind)
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, dropResponse{Dropped: n})
}

type txnHandler struct {
	store *datastore.Store
	rd    *render.Render
}

func newTxnHandler(store *datastore.Store, rd *render.Render) *txnHandler {
	return &txnHandler{store: store, rd: rd}
}

type beginResponse struct {
	Transaction uint64 `json:"transaction"`
}

// Begin waits for the store's transaction slot as long as the client
// keeps the request open.
func (h *txnHandler) Begin(w http.ResponseWriter, r *http.Request) {
	tx, err := h.store.BeginTransaction(r.Context(), appVar(r))
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, beginResponse{Transaction: tx.Handle})
}

func (h *txnHandler) Commit(w http.ResponseWriter, r *http.Request) {
	tx, err := txVar(r)
	if err == nil {
		err = h.store.Commit(tx)
	}
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, nil)
}

func (h *txnHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	tx, err := txVar(r)
	if err == nil {
		err = h.store.Rollback(tx)
	}
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, nil)
}

type actionsRequest struct {
	Actions []*transaction.Action `json:"actions"`
}

func (h *txnHandler) AddActions(w http.ResponseWriter, r *http.Request) {
	tx, err := txVar(r)
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	var req actionsRequest
	if err := readJSONRespondError(h.rd, w, r, &req); err != nil {
		return
	}
	if err := h.store.AddActions(tx, req.Actions); err != nil {
		respondError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, nil)
}

type indexHandler struct {
	store *datastore.Store
	rd    *render.Render
}

func newIndexHandler(store *datastore.Store, rd *render.Render) *indexHandler {
	return &indexHandler{store: store, rd: rd}
}

type indexesResponse struct {
	Indexes []*jsonIndex `json:"indexes"`
}

type createIndexResponse struct {
	ID int64 `json:"id"`
}

func (h *indexHandler) List(w http.ResponseWriter, r *http.Request) {
	indexes, err := h.store.GetIndices(appVar(r))
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	resp := indexesResponse{Indexes: make([]*jsonIndex, 0, len(indexes))}
	for _, index := range indexes {
		resp.Indexes = append(resp.Indexes, encodeIndex(index))
	}
	h.rd.JSON(w, http.StatusOK, resp)
}

func (h *indexHandler) decode(w http.ResponseWriter, r *http.Request) (*model.CompositeIndex, bool) {
	var ji jsonIndex
	if err := readJSONRespondError(h.rd, w, r, &ji); err != nil {
		return nil, false
	}
	index, err := decodeIndex(&ji, appVar(r))
	if err != nil {
		respondError(h.rd, w, err)
		return nil, false
	}
	return index, true
}

func (h *indexHandler) Create(w http.ResponseWriter, r *http.Request) {
	index, ok := h.decode(w, r)
	if !ok {
		return
	}
	id, err := h.store.CreateIndex(index)
	if err != nil {
		respondError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, createIndexResponse{ID: id})
}

func (h *indexHandler) Update(w http.ResponseWriter, r *http.Request) {
	index, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.store.UpdateIndex(index); err != nil {
		respondError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, nil)
}

func (h *indexHandler) Delete(w http.ResponseWriter, r *http.Request) {
	index, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteIndex(index); err != nil {
		respondError(h.rd, w, err)
		return
	}
	h.rd.JSON(w, http.StatusOK, nil)
}

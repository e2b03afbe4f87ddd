package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/CrowderSoup/tasklist/services"
	"github.com/CrowderSoup/tasklist/store"
)

// TagHandler exposes the tag vocabulary operations over HTTP.
type TagHandler struct {
	store  store.Store
	hub    *services.Hub
	logger *log.Logger
}

func NewTagHandler(st store.Store, hub *services.Hub, logger *log.Logger) *TagHandler {
	return &TagHandler{store: st, hub: hub, logger: logger}
}

func (h *TagHandler) Register(r *mux.Router) {
	r.HandleFunc("/tags", h.List).Methods("GET")
	r.HandleFunc("/tags", h.Create).Methods("POST")
	r.HandleFunc("/tags/{name}", h.Rename).Methods("PATCH")
	r.HandleFunc("/tags/{name}", h.Delete).Methods("DELETE")
}

func (h *TagHandler) List(w http.ResponseWriter, r *http.Request) {
	tags, err := h.store.ListTags(r.Context())
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (h *TagHandler) Create(w http.ResponseWriter, r *http.Request) {
	name, ok := h.readName(w, r)
	if !ok {
		return
	}

	result, err := h.store.CreateTag(r.Context(), name)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
		h.hub.Broadcast(services.Event{Type: "tags"})
	}
	writeJSON(w, status, result)
}

func (h *TagHandler) Rename(w http.ResponseWriter, r *http.Request) {
	current := mux.Vars(r)["name"]
	next, ok := h.readName(w, r)
	if !ok {
		return
	}

	result, err := h.store.RenameTag(r.Context(), current, next)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	// Renames touch task associations too.
	h.hub.Broadcast(services.Event{Type: "tags"})
	h.hub.Broadcast(services.Event{Type: "tasks"})
	writeJSON(w, http.StatusOK, result)
}

func (h *TagHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	tags, err := h.store.DeleteTag(r.Context(), name)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(services.Event{Type: "tags"})
	h.hub.Broadcast(services.Event{Type: "tasks"})
	writeJSON(w, http.StatusOK, tags)
}

func (h *TagHandler) readName(w http.ResponseWriter, r *http.Request) (string, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "unreadable request body")
		return "", false
	}
	if err := validateBody("tag_name.json", body); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return "", false
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request format")
		return "", false
	}
	return req.Name, true
}

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

const maxBodyBytes = 1 << 20

// TaskHandler exposes the task operations of the store over HTTP. It
// is a thin pass-through: validation happens at the schema boundary
// and inside the store, and the handler only maps errors to statuses
// and notifies the hub.
type TaskHandler struct {
	store  store.Store
	hub    *services.Hub
	logger *log.Logger
}

func NewTaskHandler(st store.Store, hub *services.Hub, logger *log.Logger) *TaskHandler {
	return &TaskHandler{store: st, hub: hub, logger: logger}
}

func (h *TaskHandler) Register(r *mux.Router) {
	r.HandleFunc("/tasks", h.List).Methods("GET")
	r.HandleFunc("/tasks", h.Create).Methods("POST")
	r.HandleFunc("/tasks/reorder", h.Reorder).Methods("PUT")
	r.HandleFunc("/tasks/{id}", h.Update).Methods("PATCH")
	r.HandleFunc("/tasks/{id}", h.Delete).Methods("DELETE")
	r.HandleFunc("/tasks/{id}/move", h.Move).Methods("POST")
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.ListTasks(r.Context())
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	if err := validateBody("task_create.json", body); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	var in store.TaskInput
	if err := json.Unmarshal(body, &in); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request format")
		return
	}

	task, err := h.store.CreateTask(r.Context(), in)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(services.Event{Type: "tasks"})
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	if err := validateBody("task_update.json", body); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	// Decode into the tri-state patch directly so absent keys stay
	// distinguishable from explicit nulls.
	var patch store.TaskPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request format")
		return
	}

	task, err := h.store.UpdateTask(r.Context(), id, patch)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(services.Event{Type: "tasks"})
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	task, err := h.store.DeleteTask(r.Context(), id)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(services.Event{Type: "tasks"})
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	if err := validateBody("task_reorder.json", body); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request format")
		return
	}

	tasks, err := h.store.ReorderTasks(r.Context(), req.IDs)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(services.Event{Type: "tasks"})
	writeJSON(w, http.StatusOK, tasks)
}

// Move serves the single-step reorder used by drag and keyboard
// shortcuts: it computes the new sequence and persists it through the
// same reorder path.
func (h *TaskHandler) Move(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	if err := validateBody("task_move.json", body); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Target string `json:"target"`
		Place  string `json:"place"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request format")
		return
	}

	tasks, err := h.store.ListTasks(r.Context())
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}

	moved := store.Move(ids, id, req.Target, store.Placement(req.Place))
	tasks, err = h.store.ReorderTasks(r.Context(), moved)
	if err != nil {
		writeStoreError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(services.Event{Type: "tasks"})
	writeJSON(w, http.StatusOK, tasks)
}

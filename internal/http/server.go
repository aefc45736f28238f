package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Deepaks31/Workflow-Automation-Engine/internal/log"
	"github.com/Deepaks31/Workflow-Automation-Engine/pkg/service"
)

// NewMux wires the request lifecycle endpoints. The HTTP surface is a thin
// shell: all rules live in the service.
func NewMux(svc *service.RequestService) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HealthHandler)
	mux.HandleFunc("POST /requests", CreateRequestHandler(svc))
	mux.HandleFunc("GET /requests", ListRequestsHandler(svc))
	mux.HandleFunc("GET /requests/{id}", GetRequestHandler(svc))
	mux.HandleFunc("PUT /requests/{id}/approve", ApproveHandler(svc))
	mux.HandleFunc("PUT /requests/{id}/reject", RejectHandler(svc))
	mux.HandleFunc("GET /requests/{id}/audit", AuditTrailHandler(svc))
	mux.HandleFunc("GET /requests/{id}/escalations", EscalationTrailHandler(svc))
	mux.HandleFunc("GET /workflows", ListWorkflowsHandler(svc))
	mux.HandleFunc("GET /workflows/{id}", GetWorkflowHandler(svc))
	return mux
}

// StartServer starts the HTTP API on the given port.
func StartServer(port string, svc *service.RequestService) error {
	log.GetLogger().Infof("Starting workflow automation engine server on :%s", port)
	return http.ListenAndServe(":"+port, NewMux(svc))
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "Workflow automation engine is running")
}

func CreateRequestHandler(svc *service.RequestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			WorkflowID  int64           `json:"workflow_id"`
			InitiatorID int64           `json:"initiator_id"`
			Payload     json.RawMessage `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if body.WorkflowID == 0 || body.InitiatorID == 0 {
			writeError(w, http.StatusBadRequest, "Missing 'workflow_id' or 'initiator_id'")
			return
		}
		req, err := svc.CreateRequest(body.WorkflowID, body.InitiatorID, body.Payload)
		if err != nil {
			writeServiceError(w, err, "Failed to create request")
			return
		}
		writeJSON(w, http.StatusOK, req)
	}
}

func ListRequestsHandler(svc *service.RequestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if v := r.URL.Query().Get("initiator"); v != "" {
			initiatorID, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid 'initiator' parameter")
				return
			}
			requests, err := svc.ListByInitiator(initiatorID)
			if err != nil {
				writeServiceError(w, err, "Failed to list requests")
				return
			}
			writeJSON(w, http.StatusOK, requests)
			return
		}
		if v := r.URL.Query().Get("level"); v != "" {
			level, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid 'level' parameter")
				return
			}
			requests, err := svc.ListPendingAtLevel(level)
			if err != nil {
				writeServiceError(w, err, "Failed to list requests")
				return
			}
			writeJSON(w, http.StatusOK, requests)
			return
		}
		writeError(w, http.StatusBadRequest, "Missing 'initiator' or 'level' parameter")
	}
}

func GetRequestHandler(svc *service.RequestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		req, err := svc.GetRequest(id)
		if err != nil {
			writeServiceError(w, err, "Failed to get request")
			return
		}
		writeJSON(w, http.StatusOK, req)
	}
}

func ApproveHandler(svc *service.RequestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var body struct {
			ApproverID int64 `json:"approver_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ApproverID == 0 {
			writeError(w, http.StatusBadRequest, "Missing 'approver_id'")
			return
		}
		req, err := svc.Approve(id, body.ApproverID)
		if err != nil {
			writeServiceError(w, err, "Failed to approve request")
			return
		}
		writeJSON(w, http.StatusOK, req)
	}
}

func RejectHandler(svc *service.RequestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var body struct {
			ApproverID int64  `json:"approver_id"`
			Remarks    string `json:"remarks"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ApproverID == 0 {
			writeError(w, http.StatusBadRequest, "Missing 'approver_id'")
			return
		}
		req, err := svc.Reject(id, body.ApproverID, body.Remarks)
		if err != nil {
			writeServiceError(w, err, "Failed to reject request")
			return
		}
		writeJSON(w, http.StatusOK, req)
	}
}

func AuditTrailHandler(svc *service.RequestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		records, err := svc.AuditTrail(id)
		if err != nil {
			writeServiceError(w, err, "Failed to get audit trail")
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func EscalationTrailHandler(svc *service.RequestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		records, err := svc.EscalationTrail(id)
		if err != nil {
			writeServiceError(w, err, "Failed to get escalation trail")
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func ListWorkflowsHandler(svc *service.RequestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workflows, err := svc.ListWorkflows()
		if err != nil {
			writeServiceError(w, err, "Failed to list workflows")
			return
		}
		writeJSON(w, http.StatusOK, workflows)
	}
}

func GetWorkflowHandler(svc *service.RequestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		wf, err := svc.GetWorkflow(id)
		if err != nil {
			writeServiceError(w, err, "Failed to get workflow")
			return
		}
		writeJSON(w, http.StatusOK, wf)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps the engine's error taxonomy onto HTTP statuses.
// Conflicts are retryable by the caller, so they get their own status.
func writeServiceError(w http.ResponseWriter, err error, msg string) {
	log.GetLogger().Errorf("%s: %v", msg, err)
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s: %v", msg, err))
	case errors.Is(err, service.ErrInvalidState):
		writeError(w, http.StatusConflict, fmt.Sprintf("%s: %v", msg, err))
	case errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusLocked, fmt.Sprintf("%s: %v", msg, err))
	default:
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("%s: %v", msg, err))
	}
}

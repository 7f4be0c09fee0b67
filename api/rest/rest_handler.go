package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/zlnvch/flipbook/models"
	"github.com/zlnvch/flipbook/service"
	"github.com/zlnvch/flipbook/store"
)

type Handler struct {
	Service *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{Service: svc}
}

type sessionRequest struct {
	Name string `json:"name"`
}

type sessionResponse struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Token string `json:"token"`
}

func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	peer, token, err := h.Service.CreateSession(req.Name)
	if err != nil {
		log.Printf("CreateSession failed: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := sessionResponse{
		Id:    peer.Id,
		Name:  peer.Name,
		Color: peer.Color,
		Token: token,
	}
	h.sendResponse(w, resp)
}

type pagesResponse struct {
	BookId string        `json:"bookId"`
	Pages  []models.Page `json:"pages"`
}

type pagesRequest struct {
	Pages []models.Page `json:"pages"`
}

type acceptedResponse struct {
	Success bool `json:"success"`
}

// HandleBookPages serves /books/{bookId}/pages. Reads are public to anyone
// holding a token; writes are queued and flushed by the snapshot batcher.
func (h *Handler) HandleBookPages(w http.ResponseWriter, r *http.Request) {
	token := h.getTokenFromAuthHeader(r)
	if _, err := h.Service.AuthenticateToken(token); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	bookId := r.PathValue("bookId")
	if err := service.ValidateBookId(bookId); err != nil {
		http.Error(w, "invalid book id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		pages, err := h.Service.LoadBookPages(r.Context(), bookId)
		if err != nil {
			log.Printf("LoadBookPages failed: %v", err)
			http.Error(w, "failed to load pages", http.StatusInternalServerError)
			return
		}
		h.sendResponse(w, pagesResponse{BookId: bookId, Pages: pages})

	case http.MethodPut:
		r.Body = http.MaxBytesReader(w, r.Body, service.MaxPayloadBytes)
		var req pagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := h.Service.QueueBookPages(bookId, req.Pages); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		h.sendResponse(w, acceptedResponse{Success: true})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

const maxPrefsBytes = 4 << 10

func (h *Handler) HandlePrefs(w http.ResponseWriter, r *http.Request) {
	token := h.getTokenFromAuthHeader(r)
	peer, err := h.Service.AuthenticateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.sendResponse(w, h.Service.LoadToolPrefs(r.Context(), peer))

	case http.MethodPut:
		r.Body = http.MaxBytesReader(w, r.Body, maxPrefsBytes)
		var prefs store.ToolPrefs
		if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := h.Service.SaveToolPrefs(r.Context(), peer, prefs); err != nil {
			log.Printf("SaveToolPrefs failed: %v", err)
			http.Error(w, "failed to save preferences", http.StatusBadRequest)
			return
		}
		h.sendResponse(w, h.Service.LoadToolPrefs(r.Context(), peer))

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) sendResponse(w http.ResponseWriter, resp any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (h *Handler) getTokenFromAuthHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimPrefix(authHeader, prefix)
}

package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/AdamBeresnev/fpv-bracket/internal/httputil"
	"github.com/AdamBeresnev/fpv-bracket/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("Invalid %s", name), err)
		return uuid.Nil, false
	}
	return id, true
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || n < 1 {
		httputil.BadRequest(w, fmt.Sprintf("Invalid %s number", name), err)
		return 0, false
	}
	return n, true
}

type idResponse struct {
	ID uuid.UUID `json:"id"`
}

type demoFillRequest struct {
	Count  int    `json:"count"`
	Prefix string `json:"prefix"`
}

type completenessResponse struct {
	Complete bool                  `json:"complete"`
	Missing  []service.MissingItem `json:"missing"`
}

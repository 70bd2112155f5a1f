package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/AdamBeresnev/fpv-bracket/internal/service"
	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
)

// A draft holds the runs of one heat while a timekeeper enters them one by one. It lives in the
// operator's session until it is submitted as a single RecordHeat call or reset.

type heatKey struct {
	stageID uuid.UUID
	group   int
	heat    int
	track   int
}

func (k heatKey) sessionKey() string {
	return fmt.Sprintf("draft:%s:%d:%d:%d", k.stageID, k.group, k.heat, k.track)
}

func parseHeatKey(w http.ResponseWriter, r *http.Request) (heatKey, bool) {
	var k heatKey
	var ok bool
	if k.stageID, ok = uuidParam(w, r, "id"); !ok {
		return k, false
	}
	if k.group, ok = intParam(w, r, "group"); !ok {
		return k, false
	}
	if k.heat, ok = intParam(w, r, "heat"); !ok {
		return k, false
	}
	if k.track, ok = intParam(w, r, "track"); !ok {
		return k, false
	}
	return k, true
}

func loadDraft(sessionManager *scs.SessionManager, r *http.Request, k heatKey) ([]service.RunInput, error) {
	raw := sessionManager.GetString(r.Context(), k.sessionKey())
	if raw == "" {
		return []service.RunInput{}, nil
	}
	var runs []service.RunInput
	if err := json.Unmarshal([]byte(raw), &runs); err != nil {
		return nil, fmt.Errorf("failed to decode draft: %w", err)
	}
	return runs, nil
}

func saveDraft(sessionManager *scs.SessionManager, r *http.Request, k heatKey, runs []service.RunInput) error {
	raw, err := json.Marshal(runs)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	sessionManager.Put(r.Context(), k.sessionKey(), string(raw))
	return nil
}

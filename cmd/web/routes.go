package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/AdamBeresnev/fpv-bracket/internal/config"
	"github.com/AdamBeresnev/fpv-bracket/internal/export"
	"github.com/AdamBeresnev/fpv-bracket/internal/httputil"
	"github.com/AdamBeresnev/fpv-bracket/internal/live"
	"github.com/AdamBeresnev/fpv-bracket/internal/middleware"
	"github.com/AdamBeresnev/fpv-bracket/internal/service"
	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func newRouter(cfg *config.Config, deps service.Deps, sessionManager *scs.SessionManager, hub *live.Hub, registry *prometheus.Registry) http.Handler {
	tournamentService := service.NewTournamentService(deps)
	bracketService := service.NewBracketService(deps)

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	// Websocket upgrades are long-lived; they skip the limiter and the session store.
	r.Get("/tournaments/{id}/live", hub.ServeWs)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)))
		r.Use(sessionManager.LoadAndSave)
		r.Use(middleware.LoadOperator(sessionManager))

		r.Route("/tournaments", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				tournaments, err := tournamentService.ListTournaments(r.Context())
				if err != nil {
					httputil.ServiceError(w, "Failed to list tournaments", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, tournaments)
			})
			r.Post("/", func(w http.ResponseWriter, r *http.Request) {
				var in service.TournamentInput
				if err := httputil.ReadJSON(w, r, &in); err != nil {
					httputil.BadRequest(w, err.Error(), err)
					return
				}
				id, err := tournamentService.CreateTournament(r.Context(), in)
				if err != nil {
					httputil.ServiceError(w, "Failed to create tournament", err)
					return
				}
				w.Header().Set("Location", "/tournaments/"+id.String())
				httputil.WriteJSON(w, http.StatusCreated, idResponse{ID: id})
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					tournament, err := tournamentService.GetTournament(r.Context(), id)
					if err != nil {
						httputil.ServiceError(w, "Failed to get tournament", err)
						return
					}
					httputil.WriteJSON(w, http.StatusOK, tournament)
				})
				r.Get("/overview", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					overview, err := tournamentService.TournamentOverview(r.Context(), id)
					if err != nil {
						httputil.ServiceError(w, "Failed to build overview", err)
						return
					}
					httputil.WriteJSON(w, http.StatusOK, overview)
				})
				r.Get("/entrants", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					entrants, err := tournamentService.GetEntrants(r.Context(), id)
					if err != nil {
						httputil.ServiceError(w, "Failed to get entrants", err)
						return
					}
					httputil.WriteJSON(w, http.StatusOK, entrants)
				})
				r.Post("/entrants", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					var in []service.EntrantInput
					if err := httputil.ReadJSON(w, r, &in); err != nil {
						httputil.BadRequest(w, err.Error(), err)
						return
					}
					entrants, err := tournamentService.AddEntrants(r.Context(), id, in)
					if err != nil {
						httputil.ServiceError(w, "Failed to add entrants", err)
						return
					}
					httputil.WriteJSON(w, http.StatusCreated, entrants)
				})
				r.Post("/entrants/demo", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					var in demoFillRequest
					if err := httputil.ReadJSON(w, r, &in); err != nil {
						httputil.BadRequest(w, err.Error(), err)
						return
					}
					entrants, err := tournamentService.DemoFill(r.Context(), id, in.Count, in.Prefix)
					if err != nil {
						httputil.ServiceError(w, "Failed to fill demo entrants", err)
						return
					}
					httputil.WriteJSON(w, http.StatusCreated, entrants)
				})
				r.Post("/start-numbers/draw", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					if err := tournamentService.DrawStartNumbers(r.Context(), id); err != nil {
						httputil.ServiceError(w, "Failed to draw start numbers", err)
						return
					}
					w.WriteHeader(http.StatusNoContent)
				})

				r.Post("/qualification/start", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					if err := tournamentService.StartQualification(r.Context(), id); err != nil {
						httputil.ServiceError(w, "Failed to start qualification", err)
						return
					}
					w.WriteHeader(http.StatusNoContent)
				})
				r.Get("/qualification", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					ranked, err := tournamentService.QualificationRanking(r.Context(), id)
					if err != nil {
						httputil.ServiceError(w, "Failed to rank qualification", err)
						return
					}
					httputil.WriteJSON(w, http.StatusOK, ranked)
				})
				r.Post("/qualification", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					var runs []service.RunInput
					if err := httputil.ReadJSON(w, r, &runs); err != nil {
						httputil.BadRequest(w, err.Error(), err)
						return
					}
					if err := tournamentService.RecordQualification(r.Context(), id, runs); err != nil {
						httputil.ServiceError(w, "Failed to record qualification", err)
						return
					}
					w.WriteHeader(http.StatusNoContent)
				})
				r.Delete("/qualification/{entrantID}", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					entrantID, ok := uuidParam(w, r, "entrantID")
					if !ok {
						return
					}
					if err := tournamentService.DeleteQualification(r.Context(), id, entrantID); err != nil {
						httputil.ServiceError(w, "Failed to delete qualification result", err)
						return
					}
					w.WriteHeader(http.StatusNoContent)
				})

				r.Get("/stages", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					stages, err := bracketService.GetStages(r.Context(), id)
					if err != nil {
						httputil.ServiceError(w, "Failed to get stages", err)
						return
					}
					httputil.WriteJSON(w, http.StatusOK, stages)
				})
				r.Post("/stages", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					stageID, err := bracketService.OpenFirstStage(r.Context(), id)
					if err != nil {
						httputil.ServiceError(w, "Failed to open first stage", err)
						return
					}
					httputil.WriteJSON(w, http.StatusCreated, idResponse{ID: stageID})
				})
				r.Post("/advance", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					stageID, err := bracketService.Advance(r.Context(), id)
					if err != nil {
						httputil.ServiceError(w, "Failed to advance", err)
						return
					}
					httputil.WriteJSON(w, http.StatusOK, idResponse{ID: stageID})
				})
				r.Post("/finish", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					if err := bracketService.Finish(r.Context(), id); err != nil {
						httputil.ServiceError(w, "Failed to finish tournament", err)
						return
					}
					w.WriteHeader(http.StatusNoContent)
				})
				r.Post("/rollback", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					if err := bracketService.Rollback(r.Context(), id); err != nil {
						httputil.ServiceError(w, "Failed to roll back", err)
						return
					}
					w.WriteHeader(http.StatusNoContent)
				})

				r.Get("/standings", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					placed, err := bracketService.ComputeOverallStandings(r.Context(), id)
					if err != nil {
						httputil.ServiceError(w, "Failed to compute overall standings", err)
						return
					}
					httputil.WriteJSON(w, http.StatusOK, placed)
				})
				r.Get("/export.xlsx", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					sheets, err := export.TournamentSheets(r.Context(), bracketService, tournamentService, id)
					if err != nil {
						httputil.ServiceError(w, "Failed to collect standings", err)
						return
					}
					if len(sheets) == 0 {
						httputil.ServiceError(w, "Nothing to export", &service.PreconditionError{Message: "tournament has no stages yet"})
						return
					}
					w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
					w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="standings-%s.xlsx"`, id))
					if err := export.WriteStandingsXLSX(w, sheets...); err != nil {
						httputil.InternalServerError(w, "Failed to write workbook", err)
					}
				})
			})
		})

		r.Route("/stages/{id}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				id, ok := uuidParam(w, r, "id")
				if !ok {
					return
				}
				st, err := bracketService.GetStage(r.Context(), id)
				if err != nil {
					httputil.ServiceError(w, "Failed to get stage", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, st)
			})
			r.Get("/standings", func(w http.ResponseWriter, r *http.Request) {
				id, ok := uuidParam(w, r, "id")
				if !ok {
					return
				}
				groups, err := bracketService.ComputeStageStandings(r.Context(), id)
				if err != nil {
					httputil.ServiceError(w, "Failed to compute stage standings", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, groups)
			})
			r.Get("/completeness", func(w http.ResponseWriter, r *http.Request) {
				id, ok := uuidParam(w, r, "id")
				if !ok {
					return
				}
				complete, missing, err := bracketService.CheckStageComplete(r.Context(), id)
				if err != nil {
					httputil.ServiceError(w, "Failed to check stage", err)
					return
				}
				if missing == nil {
					missing = []service.MissingItem{}
				}
				httputil.WriteJSON(w, http.StatusOK, completenessResponse{Complete: complete, Missing: missing})
			})
			r.Get("/ties", func(w http.ResponseWriter, r *http.Request) {
				id, ok := uuidParam(w, r, "id")
				if !ok {
					return
				}
				ties, err := bracketService.DetectTies(r.Context(), id)
				if err != nil {
					httputil.ServiceError(w, "Failed to detect ties", err)
					return
				}
				if ties == nil {
					ties = [][]uuid.UUID{}
				}
				httputil.WriteJSON(w, http.StatusOK, ties)
			})
			r.Get("/export.csv", func(w http.ResponseWriter, r *http.Request) {
				id, ok := uuidParam(w, r, "id")
				if !ok {
					return
				}
				sheet, err := export.StageSheetByID(r.Context(), bracketService, tournamentService, id)
				if err != nil {
					httputil.ServiceError(w, "Failed to collect standings", err)
					return
				}
				w.Header().Set("Content-Type", "text/csv; charset=utf-8")
				w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="stage-%s.csv"`, id))
				if err := export.WriteStandingsCSV(w, sheet); err != nil {
					httputil.InternalServerError(w, "Failed to write CSV", err)
				}
			})

			r.Route("/groups/{group}", func(r chi.Router) {
				r.Get("/standings", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					groupNo, ok := intParam(w, r, "group")
					if !ok {
						return
					}
					standings, err := bracketService.ComputeGroupRanking(r.Context(), id, groupNo)
					if err != nil {
						httputil.ServiceError(w, "Failed to rank group", err)
						return
					}
					httputil.WriteJSON(w, http.StatusOK, standings)
				})
				r.Post("/tie-break", func(w http.ResponseWriter, r *http.Request) {
					id, ok := uuidParam(w, r, "id")
					if !ok {
						return
					}
					groupNo, ok := intParam(w, r, "group")
					if !ok {
						return
					}
					var runs []service.RunInput
					if err := httputil.ReadJSON(w, r, &runs); err != nil {
						httputil.BadRequest(w, err.Error(), err)
						return
					}
					if err := bracketService.ResolveTie(r.Context(), id, groupNo, runs); err != nil {
						httputil.ServiceError(w, "Failed to resolve tie", err)
						return
					}
					w.WriteHeader(http.StatusNoContent)
				})

				r.Route("/heats/{heat}/tracks/{track}", func(r chi.Router) {
					r.Post("/", func(w http.ResponseWriter, r *http.Request) {
						key, ok := parseHeatKey(w, r)
						if !ok {
							return
						}
						var runs []service.RunInput
						if err := httputil.ReadJSON(w, r, &runs); err != nil {
							httputil.BadRequest(w, err.Error(), err)
							return
						}
						if err := bracketService.RecordHeat(r.Context(), key.stageID, key.group, key.heat, key.track, runs); err != nil {
							httputil.ServiceError(w, "Failed to record heat", err)
							return
						}
						w.WriteHeader(http.StatusNoContent)
					})
					r.Get("/draft", func(w http.ResponseWriter, r *http.Request) {
						k, ok := parseHeatKey(w, r)
						if !ok {
							return
						}
						runs, err := loadDraft(sessionManager, r, k)
						if err != nil {
							httputil.InternalServerError(w, "Failed to load draft", err)
							return
						}
						httputil.WriteJSON(w, http.StatusOK, runs)
					})
					// Adds one run to the draft, replacing an earlier run of the same entrant.
					r.Post("/draft", func(w http.ResponseWriter, r *http.Request) {
						k, ok := parseHeatKey(w, r)
						if !ok {
							return
						}
						var in service.RunInput
						if err := httputil.ReadJSON(w, r, &in); err != nil {
							httputil.BadRequest(w, err.Error(), err)
							return
						}
						if in.EntrantID == uuid.Nil {
							httputil.BadRequest(w, "entrant_id is required", nil)
							return
						}

						runs, err := loadDraft(sessionManager, r, k)
						if err != nil {
							httputil.InternalServerError(w, "Failed to load draft", err)
							return
						}
						replaced := false
						for i := range runs {
							if runs[i].EntrantID == in.EntrantID {
								runs[i] = in
								replaced = true
							}
						}
						if !replaced {
							runs = append(runs, in)
						}
						if err := saveDraft(sessionManager, r, k, runs); err != nil {
							httputil.InternalServerError(w, "Failed to save draft", err)
							return
						}
						httputil.WriteJSON(w, http.StatusOK, runs)
					})
					r.Delete("/draft", func(w http.ResponseWriter, r *http.Request) {
						k, ok := parseHeatKey(w, r)
						if !ok {
							return
						}
						sessionManager.Remove(r.Context(), k.sessionKey())
						w.WriteHeader(http.StatusNoContent)
					})
					r.Post("/draft/submit", func(w http.ResponseWriter, r *http.Request) {
						k, ok := parseHeatKey(w, r)
						if !ok {
							return
						}
						runs, err := loadDraft(sessionManager, r, k)
						if err != nil {
							httputil.InternalServerError(w, "Failed to load draft", err)
							return
						}
						if len(runs) == 0 {
							httputil.BadRequest(w, "Draft is empty", nil)
							return
						}

						if err := bracketService.RecordHeat(r.Context(), k.stageID, k.group, k.heat, k.track, runs); err != nil {
							// The draft survives a rejected submission so the timekeeper can correct it.
							httputil.ServiceError(w, "Failed to record heat", err)
							return
						}
						sessionManager.Remove(r.Context(), k.sessionKey())

						operatorID, _ := middleware.GetOperatorIDFromContext(r.Context())
						slog.Info("heat draft submitted", "operator_id", operatorID, "stage_id", k.stageID, "group", k.group, "heat", k.heat, "track", k.track)
						w.WriteHeader(http.StatusNoContent)
					})
				})
			})
		})
	})

	return r
}

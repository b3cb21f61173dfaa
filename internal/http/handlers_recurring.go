package http

import (
	"errors"
	"net/http"

	"registro/internal/core"
	"registro/internal/log"
	"registro/internal/services"
)

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	enabledOnly := r.URL.Query().Get("enabled") == "true"

	defs, err := s.recurring.List(r.Context(), userID, enabledOnly)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}

	today := s.today()
	out := make([]recurringResponse, 0, len(defs))
	for _, def := range defs {
		out = append(out, newRecurringResponse(def, today))
	}
	NewResponse().JSON(out).Write(w)
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	var req recurringRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	def, err := req.toDefinition(userID)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}

	created, err := s.recurring.Create(r.Context(), def)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Recurring definition created",
		log.FieldUserID, userID, log.FieldRecurringID, created.ID, "frequency", created.Frequency())

	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/users/"+userID+"/recurring/"+created.ID).
		JSON(newRecurringResponse(created, s.today())).
		Write(w)
}

func (s *Server) handleGetRecurring(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	def, err := s.recurring.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(newRecurringResponse(def, s.today())).Write(w)
}

func (s *Server) handleUpdateRecurring(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	var req recurringPatchRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}

	updated, err := s.recurring.Update(r.Context(), userID, r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	NewResponse().JSON(newRecurringResponse(updated, s.today())).Write(w)
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	id := r.PathValue("id")
	if err := s.recurring.Delete(r.Context(), userID, id); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Recurring definition deleted",
		log.FieldUserID, userID, log.FieldRecurringID, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleRecurring(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.writeError(w, r, log.OpToggle, err)
		return
	}
	def, err := s.recurring.Toggle(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, log.OpToggle, err)
		return
	}
	NewResponse().JSON(newRecurringResponse(def, s.today())).Write(w)
}

// handleGenerate materializes a definition on the requested date. A saved
// transaction whose marker could not be advanced is still a 201.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.writeError(w, r, log.OpGenerate, err)
		return
	}
	var req generateRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		s.writeError(w, r, log.OpGenerate, err)
		return
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		s.writeError(w, r, log.OpGenerate, err)
		return
	}

	id := r.PathValue("id")
	tx, err := s.recurring.Generate(r.Context(), userID, id, date)
	advanced := true
	if errors.Is(err, services.ErrStoreUpdate) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Transaction generated but marker not advanced",
			log.FieldRecurringID, id, log.FieldTransactionID, tx.ID, log.FieldError, err)
		advanced = false
	} else if err != nil {
		s.writeError(w, r, log.OpGenerate, err)
		return
	}

	NewResponse().
		Status(http.StatusCreated).
		JSON(generateResponse{Transaction: newTransactionResponse(tx), MarkerAdvanced: advanced}).
		Write(w)
}

func (s *Server) handleDueDates(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	q := r.URL.Query()
	today := s.today()
	from, err := parseDateQuery(q, "from", today)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	to, err := parseDateQuery(q, "to", from.AddDays(defaultUpcomingDays))
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}

	dates, err := s.recurring.DueDates(r.Context(), userID, r.PathValue("id"), from, to)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	if dates == nil {
		dates = []core.Date{}
	}
	NewResponse().JSON(dueDatesResponse{From: from, To: to, Dates: dates}).Write(w)
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	userID, from, days, err := s.upcomingParams(r)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	upcoming, err := s.recurring.Upcoming(r.Context(), userID, from, days)
	if err != nil {
		s.writeError(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(newUpcomingResponse(upcoming)).Write(w)
}

func (s *Server) upcomingParams(r *http.Request) (string, core.Date, int, error) {
	userID, err := pathUserID(r)
	if err != nil {
		return "", core.Date{}, 0, err
	}
	q := r.URL.Query()
	from, err := parseDateQuery(q, "from", s.today())
	if err != nil {
		return "", core.Date{}, 0, err
	}
	days, err := parseIntQuery(q, "days", defaultUpcomingDays)
	if err != nil {
		return "", core.Date{}, 0, err
	}
	return userID, from, days, nil
}

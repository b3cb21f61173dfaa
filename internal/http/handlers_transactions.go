package http

import (
	"fmt"
	"net/http"

	"registro/internal/log"
)

// handleListTransactions lists transactions dated in [from, to]. Without
// parameters it covers the last 31 days up to today.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	q := r.URL.Query()
	to, err := parseDateQuery(q, "to", s.today())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	from, err := parseDateQuery(q, "from", to.AddDays(-defaultListDays))
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	if from.After(to) {
		s.writeError(w, r, log.OpList, fmt.Errorf("%w: from %s after to %s", errBadRequest, from, to))
		return
	}

	txs, err := s.ledger.ListTransactions(r.Context(), userID, from, to)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, newTransactionResponse(tx))
	}
	NewResponse().JSON(out).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	var req transactionRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	tx, err := req.toTransaction(userID)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}

	created, err := s.ledger.CreateTransaction(r.Context(), tx)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	s.structured.LogTransactionCreated(r.Context(), userID, created.ID, created.Date.String(),
		string(created.Kind), created.Amount.String(), created.Category)

	NewResponse().
		Status(http.StatusCreated).
		JSON(newTransactionResponse(created)).
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	id := r.PathValue("id")
	if err := s.ledger.DeleteTransaction(r.Context(), userID, id); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction deleted",
		log.FieldUserID, userID, log.FieldTransactionID, id)
	w.WriteHeader(http.StatusNoContent)
}

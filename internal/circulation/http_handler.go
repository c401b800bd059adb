package circulation

import (
	"net/http"
	"strconv"
	"time"

	"libraryapi/internal/httpx"
	"libraryapi/internal/user"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type HTTPHandler struct {
	service *Service
	sweeper *Sweeper
}

func NewHTTPHandler(service *Service, sweeper *Sweeper) *HTTPHandler {
	return &HTTPHandler{service: service, sweeper: sweeper}
}

func actorFrom(r *http.Request) Actor {
	return Actor{UserID: httpx.UserIDFrom(r), Librarian: httpx.RoleFrom(r) == user.RoleLibrarian}
}

var errorStatus = map[ErrCode]int{
	CodeNotFound:          http.StatusNotFound,
	CodeOutOfStock:        http.StatusConflict,
	CodeLimitExceeded:     http.StatusConflict,
	CodeDuplicateHold:     http.StatusConflict,
	CodeInvalidTransition: http.StatusConflict,
	CodeNotOwner:          http.StatusForbidden,
	CodeSameUser:          http.StatusBadRequest,
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := Code(err)
	status, ok := errorStatus[code]
	if !ok {
		h.service.log.WithError(err).WithField("request_id", httpx.RequestIDFrom(r)).Error("circulation request failed")
		httpx.InternalError(w, r)
		return
	}
	httpx.JSONError(w, r, status, string(code), err.Error(), nil)
}

type reservationView struct {
	Reservation
	IsExpired        bool  `json:"is_expired"`
	RemainingSeconds int64 `json:"remaining_seconds"`
}

func viewReservation(res Reservation, now time.Time) reservationView {
	return reservationView{
		Reservation:      res,
		IsExpired:        res.IsExpired(now),
		RemainingSeconds: int64(res.RemainingTime(now).Seconds()),
	}
}

type loanView struct {
	Loan
	IsOverdue        bool  `json:"is_overdue"`
	RemainingSeconds int64 `json:"remaining_seconds"`
}

func viewLoan(l Loan, now time.Time) loanView {
	return loanView{
		Loan:             l,
		IsOverdue:        l.IsOverdue(now),
		RemainingSeconds: int64(l.RemainingTime(now).Seconds()),
	}
}

func viewLoans(loans []Loan, now time.Time) []loanView {
	out := make([]loanView, len(loans))
	for i, l := range loans {
		out[i] = viewLoan(l, now)
	}
	return out
}

// pageParams reads ?cursor and ?limit. ok is false after an error response.
func pageParams(w http.ResponseWriter, r *http.Request) (afterID string, limit int, ok bool) {
	cur, err := httpx.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid cursor", nil)
		return "", 0, false
	}
	return cur.AfterID, httpx.PageLimit(r, defaultPageLimit, maxPageLimit), true
}

func pageMeta(lastID string, n, limit int) map[string]any {
	meta := map[string]any{"limit": limit, "count": n}
	if n == limit && lastID != "" {
		meta["next_cursor"] = httpx.EncodeCursor(httpx.CursorData{AfterID: lastID})
	}
	return meta
}

type createReservationReq struct {
	BookID string `json:"book_id" validate:"required,uuid"`
}

// CreateReservation handles POST /v1/reservations
func (h *HTTPHandler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req createReservationReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body", nil)
		return
	}
	if details := httpx.ValidateStruct(req); len(details) > 0 {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid input", details)
		return
	}

	res, err := h.service.CreateReservation(r.Context(), httpx.UserIDFrom(r), req.BookID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONCreated(w, r, viewReservation(res, h.service.Now()))
}

// ListReservations handles GET /v1/reservations
func (h *HTTPHandler) ListReservations(w http.ResponseWriter, r *http.Request) {
	afterID, limit, ok := pageParams(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := ReservationFilter{
		UserID:  q.Get("user_id"),
		BookID:  q.Get("book_id"),
		Status:  ReservationStatus(q.Get("status")),
		AfterID: afterID,
		Limit:   limit,
	}

	list, err := h.service.ListReservations(r.Context(), actorFrom(r), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	now := h.service.Now()
	out := make([]reservationView, len(list))
	lastID := ""
	for i, res := range list {
		out[i] = viewReservation(res, now)
		lastID = res.ID
	}
	httpx.JSONSuccess(w, r, out, pageMeta(lastID, len(out), limit))
}

// GetReservation handles GET /v1/reservations/{id}
func (h *HTTPHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetReservation(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, viewReservation(res, h.service.Now()), nil)
}

// CancelReservation handles DELETE /v1/reservations/{id}
func (h *HTTPHandler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CancelReservation(r.Context(), actorFrom(r), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONNoContent(w)
}

// ConvertReservation handles POST /v1/reservations/{id}/convert-to-loan
func (h *HTTPHandler) ConvertReservation(w http.ResponseWriter, r *http.Request) {
	l, err := h.service.ConvertReservation(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONCreated(w, r, viewLoan(l, h.service.Now()))
}

type createLoanReq struct {
	BookID        string  `json:"book_id" validate:"required,uuid"`
	ReservationID *string `json:"reservation_id" validate:"omitempty,min=1"`
}

// CreateLoan handles POST /v1/loans
func (h *HTTPHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body", nil)
		return
	}
	if details := httpx.ValidateStruct(req); len(details) > 0 {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid input", details)
		return
	}

	l, err := h.service.CreateLoan(r.Context(), httpx.UserIDFrom(r), req.BookID, req.ReservationID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONCreated(w, r, viewLoan(l, h.service.Now()))
}

// ListLoans handles GET /v1/loans
func (h *HTTPHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	afterID, limit, ok := pageParams(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := LoanFilter{
		UserID:  q.Get("user_id"),
		BookID:  q.Get("book_id"),
		AfterID: afterID,
		Limit:   limit,
	}
	for _, s := range q["status"] {
		f.Statuses = append(f.Statuses, LoanStatus(s))
	}

	loans, err := h.service.ListLoans(r.Context(), actorFrom(r), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lastID := ""
	if len(loans) > 0 {
		lastID = loans[len(loans)-1].ID
	}
	httpx.JSONSuccess(w, r, viewLoans(loans, h.service.Now()), pageMeta(lastID, len(loans), limit))
}

// ListActiveLoans handles GET /v1/loans/active
func (h *HTTPHandler) ListActiveLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.ListActiveLoans(r.Context(), actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, viewLoans(loans, h.service.Now()), map[string]any{"count": len(loans)})
}

// GetLoan handles GET /v1/loans/{id}
func (h *HTTPHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	l, err := h.service.GetLoan(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, viewLoan(l, h.service.Now()), nil)
}

// ReturnLoan handles POST /v1/loans/{id}/return
func (h *HTTPHandler) ReturnLoan(w http.ResponseWriter, r *http.Request) {
	l, err := h.service.ReturnLoan(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, viewLoan(l, h.service.Now()), nil)
}

type shareLoanReq struct {
	ToUserID string `json:"to_user_id" validate:"required,uuid"`
}

// ShareLoan handles POST /v1/loans/{id}/share
func (h *HTTPHandler) ShareLoan(w http.ResponseWriter, r *http.Request) {
	var req shareLoanReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body", nil)
		return
	}
	if details := httpx.ValidateStruct(req); len(details) > 0 {
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid input", details)
		return
	}

	t, err := h.service.ShareLoan(r.Context(), r.PathValue("id"), httpx.UserIDFrom(r), req.ToUserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONCreated(w, r, t)
}

// ListTransfers handles GET /v1/transfers
func (h *HTTPHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	afterID, limit, ok := pageParams(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := TransferFilter{UserID: q.Get("user_id"), LoanID: q.Get("loan_id"), AfterID: afterID, Limit: limit}

	list, err := h.service.ListTransfers(r.Context(), actorFrom(r), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lastID := ""
	if len(list) > 0 {
		lastID = list[len(list)-1].ID
	}
	httpx.JSONSuccess(w, r, list, pageMeta(lastID, len(list), limit))
}

// GetTransfer handles GET /v1/transfers/{id}
func (h *HTTPHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.GetTransfer(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, t, nil)
}

// Standing handles GET /v1/me/standing and GET /v1/users/{id}/standing
func (h *HTTPHandler) Standing(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	userID := r.PathValue("id")
	if userID == "" {
		userID = actor.UserID
	}
	st, err := h.service.Standing(r.Context(), actor, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, st, nil)
}

// Sweep handles POST /v1/admin/sweep?dry_run=true&limit=N
func (h *HTTPHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := SweepOptions{DryRun: q.Get("dry_run") == "true"}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer", nil)
			return
		}
		opts.Limit = n
	}

	rep := h.sweeper.RunSweepWith(r.Context(), h.service.Now(), opts)
	httpx.JSONSuccess(w, r, rep, nil)
}

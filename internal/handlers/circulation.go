package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"lending/internal/auth"
	"lending/internal/models"
	"lending/internal/services"
)

// loanView adds the status as seen today, which reports OVERDUE for late BORROWED loans.
type loanView struct {
	*models.Loan
	EffectiveStatus models.LoanStatus `json:"effective_status"`
}

func viewLoan(loan *models.Loan, today time.Time) loanView {
	return loanView{Loan: loan, EffectiveStatus: loan.StatusOn(today)}
}

func viewLoans(loans []models.Loan, today time.Time) []loanView {
	views := make([]loanView, 0, len(loans))
	for i := range loans {
		views = append(views, viewLoan(&loans[i], today))
	}
	return views
}

func copyStatus(raw string) models.BookCopyStatus {
	return models.BookCopyStatus(strings.ToUpper(strings.TrimSpace(raw)))
}

// ─── Loans ────────────────────────────────────────────────────────────────────

type issueLoanRequest struct {
	CopyID    int64   `json:"copy_id"`
	MemberID  int64   `json:"member_id" binding:"required"`
	IssueDate *string `json:"issue_date"`
	DueDate   *string `json:"due_date"`
}

func (r issueLoanRequest) toService() (services.IssueLoanRequest, error) {
	issue, err := parseDate(r.IssueDate)
	if err != nil {
		return services.IssueLoanRequest{}, err
	}
	due, err := parseDate(r.DueDate)
	if err != nil {
		return services.IssueLoanRequest{}, err
	}
	return services.IssueLoanRequest{MemberID: r.MemberID, IssueDate: issue, DueDate: due}, nil
}

func (h *LibraryHandler) issueLoan(c *gin.Context) {
	var req issueLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.CopyID <= 0 {
		badRequest(c, "copy_id is required")
		return
	}
	sreq, err := req.toService()
	if err != nil {
		badRequest(c, "dates must be YYYY-MM-DD")
		return
	}
	loan, err := h.svc.IssueLoan(c.Request.Context(), auth.CallerFrom(c), req.CopyID, sreq)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewLoan(loan, h.svc.Today()))
}

func (h *LibraryHandler) issueLoanForBook(c *gin.Context) {
	bookID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req issueLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sreq, err := req.toService()
	if err != nil {
		badRequest(c, "dates must be YYYY-MM-DD")
		return
	}
	loan, err := h.svc.IssueLoanForBook(c.Request.Context(), auth.CallerFrom(c), bookID, sreq)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewLoan(loan, h.svc.Today()))
}

func (h *LibraryHandler) returnLoan(c *gin.Context) {
	loanID, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.svc.ReturnLoan(c.Request.Context(), auth.CallerFrom(c), loanID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"loan": viewLoan(result.Loan, h.svc.Today()),
		"fine": result.Fine,
	})
}

func (h *LibraryHandler) deleteLoan(c *gin.Context) {
	loanID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteLoan(c.Request.Context(), auth.CallerFrom(c), loanID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *LibraryHandler) getLoan(c *gin.Context) {
	loanID, ok := pathID(c, "id")
	if !ok {
		return
	}
	loan, err := h.svc.GetLoan(c.Request.Context(), auth.CallerFrom(c), loanID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewLoan(loan, h.svc.Today()))
}

func (h *LibraryHandler) listLoans(c *gin.Context) {
	memberID, ok := queryID(c, "member_id")
	if !ok {
		return
	}
	loans, err := h.svc.ListLoans(c.Request.Context(), auth.CallerFrom(c), memberID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewLoans(loans, h.svc.Today()))
}

func (h *LibraryHandler) listOverdueLoans(c *gin.Context) {
	loans, err := h.svc.ListOverdueLoans(c.Request.Context(), auth.CallerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewLoans(loans, h.svc.Today()))
}

// ─── Fines ────────────────────────────────────────────────────────────────────

func (h *LibraryHandler) listFines(c *gin.Context) {
	fines, err := h.svc.ListFines(c.Request.Context(), auth.CallerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fines)
}

func (h *LibraryHandler) payFine(c *gin.Context) {
	fineID, ok := pathID(c, "id")
	if !ok {
		return
	}
	fine, err := h.svc.PayFine(c.Request.Context(), auth.CallerFrom(c), fineID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fine)
}

// ─── Reservations ─────────────────────────────────────────────────────────────

type createReservationRequest struct {
	BookID   int64 `json:"book_id" binding:"required"`
	MemberID int64 `json:"member_id"`
}

func (h *LibraryHandler) createReservation(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	caller := auth.CallerFrom(c)
	if caller.IsLibrarian() && req.MemberID <= 0 {
		badRequest(c, "member_id is required")
		return
	}
	res, err := h.svc.CreateReservation(c.Request.Context(), caller, req.BookID, req.MemberID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *LibraryHandler) cancelReservation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.CancelReservation(c.Request.Context(), auth.CallerFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type fulfillReservationRequest struct {
	CopyID int64 `json:"copy_id" binding:"required"`
}

func (h *LibraryHandler) fulfillReservation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req fulfillReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, loan, err := h.svc.FulfillReservation(c.Request.Context(), auth.CallerFrom(c), id, req.CopyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reservation": res,
		"loan":        viewLoan(loan, h.svc.Today()),
	})
}

func (h *LibraryHandler) listReservations(c *gin.Context) {
	bookID, ok := queryID(c, "book_id")
	if !ok {
		return
	}
	reservations, err := h.svc.ListReservations(c.Request.Context(), auth.CallerFrom(c), bookID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservations)
}

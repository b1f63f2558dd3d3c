package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"lending/internal/auth"
	"lending/internal/models"
	"lending/internal/services"
)

const dateLayout = "2006-01-02"

type LibraryHandler struct {
	svc    services.LibraryService
	issuer *auth.Issuer
}

// RegisterRoutes mounts the lending API on r. Only the token endpoint is open; every other
// route needs a bearer token, and role checks happen in the service layer.
func RegisterRoutes(r *gin.Engine, svc services.LibraryService, issuer *auth.Issuer) {
	h := &LibraryHandler{svc: svc, issuer: issuer}

	r.Use(RequestID(), auth.Middleware(issuer))

	r.POST("/token", h.issueToken)

	a := r.Group("/", auth.RequireAuthenticated())

	// Catalogue reads (any account)
	a.GET("/books", h.listBooks)
	a.GET("/books/:id", h.getBook)
	a.GET("/books/:id/copies", h.listCopies)
	a.GET("/authors", h.listAuthors)
	a.GET("/categories", h.listCategories)
	a.GET("/events", h.listEvents)

	// Catalogue (librarian)
	a.POST("/books", h.createBook)
	a.PATCH("/books/:id", h.updateBook)
	a.DELETE("/books/:id", h.deleteBook)
	a.POST("/books/:id/authors/:authorID", h.linkAuthor)
	a.POST("/books/:id/categories/:categoryID", h.linkCategory)
	a.POST("/authors", h.createAuthor)
	a.POST("/categories", h.createCategory)

	// Copy inventory (librarian)
	a.POST("/books/:id/copies", h.addCopies)
	a.DELETE("/books/:id/copies", h.removeCopies)
	a.GET("/copies", h.listCopiesByStatus)
	a.PUT("/copies/:id/status", h.setCopyStatus)

	// People
	a.GET("/members", h.listMembers)
	a.POST("/members", h.createMember)
	a.GET("/members/:id", h.getMember)
	a.PATCH("/members/:id", h.updateMember)
	a.POST("/librarians", h.createLibrarian)
	a.POST("/accounts", h.createAccount)
	a.POST("/events", h.createEvent)
	a.PATCH("/events/:id", h.updateEvent)

	// Loans
	a.GET("/loans", h.listLoans)
	a.POST("/loans", h.issueLoan)
	a.GET("/loans/overdue", h.listOverdueLoans)
	a.GET("/loans/:id", h.getLoan)
	a.DELETE("/loans/:id", h.deleteLoan)
	a.POST("/loans/:id/return", h.returnLoan)
	a.POST("/books/:id/loans", h.issueLoanForBook)

	// Fines
	a.GET("/fines", h.listFines)
	a.POST("/fines/:id/pay", h.payFine)

	// Reservations
	a.GET("/reservations", h.listReservations)
	a.POST("/reservations", h.createReservation)
	a.POST("/reservations/:id/cancel", h.cancelReservation)
	a.POST("/reservations/:id/fulfill", h.fulfillReservation)

	// Maintenance
	a.POST("/admin/reconcile", h.reconcile)
}

// ─── Books ────────────────────────────────────────────────────────────────────

type createBookRequest struct {
	Title       string  `json:"title" binding:"required"`
	Edition     string  `json:"edition"`
	TotalCopies int     `json:"total_copies" binding:"min=0"`
	AuthorIDs   []int64 `json:"author_ids"`
	CategoryIDs []int64 `json:"category_ids"`
}

func (h *LibraryHandler) createBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	book, err := h.svc.CreateBook(c.Request.Context(), auth.CallerFrom(c), services.CreateBookRequest{
		Title:       req.Title,
		Edition:     req.Edition,
		TotalCopies: req.TotalCopies,
		AuthorIDs:   req.AuthorIDs,
		CategoryIDs: req.CategoryIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *LibraryHandler) listBooks(c *gin.Context) {
	books, err := h.svc.ListBooks(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

func (h *LibraryHandler) getBook(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	book, err := h.svc.GetBook(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

type updateBookRequest struct {
	Title       *string `json:"title"`
	Edition     *string `json:"edition"`
	TotalCopies *int    `json:"total_copies"`
}

func (h *LibraryHandler) updateBook(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	book, err := h.svc.UpdateBook(c.Request.Context(), auth.CallerFrom(c), id, services.UpdateBookRequest{
		Title:       req.Title,
		Edition:     req.Edition,
		TotalCopies: req.TotalCopies,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *LibraryHandler) deleteBook(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteBook(c.Request.Context(), auth.CallerFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Authors & Categories ─────────────────────────────────────────────────────

type nameRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *LibraryHandler) createAuthor(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	author, err := h.svc.CreateAuthor(c.Request.Context(), auth.CallerFrom(c), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, author)
}

func (h *LibraryHandler) listAuthors(c *gin.Context) {
	authors, err := h.svc.ListAuthors(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, authors)
}

func (h *LibraryHandler) createCategory(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	category, err := h.svc.CreateCategory(c.Request.Context(), auth.CallerFrom(c), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *LibraryHandler) listCategories(c *gin.Context) {
	categories, err := h.svc.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *LibraryHandler) linkAuthor(c *gin.Context) {
	bookID, ok := pathID(c, "id")
	if !ok {
		return
	}
	authorID, ok := pathID(c, "authorID")
	if !ok {
		return
	}
	if err := h.svc.LinkAuthor(c.Request.Context(), auth.CallerFrom(c), bookID, authorID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *LibraryHandler) linkCategory(c *gin.Context) {
	bookID, ok := pathID(c, "id")
	if !ok {
		return
	}
	categoryID, ok := pathID(c, "categoryID")
	if !ok {
		return
	}
	if err := h.svc.LinkCategory(c.Request.Context(), auth.CallerFrom(c), bookID, categoryID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Copies ───────────────────────────────────────────────────────────────────

type copyCountRequest struct {
	Count int `json:"count" binding:"required,min=1"`
}

func (h *LibraryHandler) addCopies(c *gin.Context) {
	bookID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req copyCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ids, err := h.svc.AddCopies(c.Request.Context(), auth.CallerFrom(c), bookID, req.Count)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"copy_ids": ids})
}

// removeCopies takes the count from the query string: DELETE /books/:id/copies?count=n.
func (h *LibraryHandler) removeCopies(c *gin.Context) {
	bookID, ok := pathID(c, "id")
	if !ok {
		return
	}
	count, err := strconv.Atoi(c.Query("count"))
	if err != nil || count < 1 {
		badRequest(c, "count must be a positive integer")
		return
	}
	if err := h.svc.RemoveCopies(c.Request.Context(), auth.CallerFrom(c), bookID, count); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *LibraryHandler) listCopies(c *gin.Context) {
	bookID, ok := pathID(c, "id")
	if !ok {
		return
	}
	copies, err := h.svc.ListCopies(c.Request.Context(), bookID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, copies)
}

// listCopiesByStatus serves GET /copies?status=AVAILABLE; the status defaults to AVAILABLE.
func (h *LibraryHandler) listCopiesByStatus(c *gin.Context) {
	status := copyStatus(c.DefaultQuery("status", string(models.BookCopyStatusAvailable)))
	copies, err := h.svc.ListCopiesByStatus(c.Request.Context(), auth.CallerFrom(c), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, copies)
}

type copyStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *LibraryHandler) setCopyStatus(c *gin.Context) {
	copyID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req copyStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	copy, err := h.svc.SetCopyCondition(c.Request.Context(), auth.CallerFrom(c), copyID, copyStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, copy)
}

func (h *LibraryHandler) reconcile(c *gin.Context) {
	if !auth.CallerFrom(c).IsLibrarian() {
		respondError(c, services.ErrNotLibrarian)
		return
	}
	report, err := h.svc.Reconcile(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// pathID parses a positive integer path parameter, answering 400 itself on failure.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// queryID parses an optional positive integer query parameter.
func queryID(c *gin.Context, name string) (*int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return nil, false
	}
	return &id, true
}

// parseDate parses an optional YYYY-MM-DD value.
func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

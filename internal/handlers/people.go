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

// ─── Token ────────────────────────────────────────────────────────────────────

type tokenRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (h *LibraryHandler) issueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	caller, err := h.svc.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	token, err := h.issuer.Issue(caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.issuer.TTL() / time.Second),
	})
}

// ─── Members & Librarians ─────────────────────────────────────────────────────

type createMemberRequest struct {
	Name      string  `json:"name" binding:"required"`
	Address   string  `json:"address"`
	Email     string  `json:"email_address" binding:"required,email"`
	Phone     string  `json:"phone_number"`
	StartDate *string `json:"start_date"`
}

func (h *LibraryHandler) createMember(c *gin.Context) {
	var req createMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		badRequest(c, "start_date must be YYYY-MM-DD")
		return
	}
	member, err := h.svc.CreateMember(c.Request.Context(), auth.CallerFrom(c), services.CreateMemberRequest{
		Name:      req.Name,
		Address:   req.Address,
		Email:     req.Email,
		Phone:     req.Phone,
		StartDate: start,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (h *LibraryHandler) getMember(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	member, err := h.svc.GetMember(c.Request.Context(), auth.CallerFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

type updateMemberRequest struct {
	Name      *string `json:"name"`
	Address   *string `json:"address"`
	Email     *string `json:"email_address" binding:"omitempty,email"`
	Phone     *string `json:"phone_number"`
	StartDate *string `json:"start_date"`
}

func (h *LibraryHandler) updateMember(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		badRequest(c, "start_date must be YYYY-MM-DD")
		return
	}
	member, err := h.svc.UpdateMember(c.Request.Context(), auth.CallerFrom(c), id, services.UpdateMemberRequest{
		Name:      req.Name,
		Address:   req.Address,
		Email:     req.Email,
		Phone:     req.Phone,
		StartDate: start,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *LibraryHandler) listMembers(c *gin.Context) {
	members, err := h.svc.ListMembers(c.Request.Context(), auth.CallerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

type createLibrarianRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email_address" binding:"required,email"`
	Phone string `json:"phone_number"`
}

func (h *LibraryHandler) createLibrarian(c *gin.Context) {
	var req createLibrarianRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	librarian, err := h.svc.CreateLibrarian(c.Request.Context(), auth.CallerFrom(c), services.CreateLibrarianRequest{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, librarian)
}

type createAccountRequest struct {
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
	Role        string `json:"role" binding:"required"`
	MemberID    *int64 `json:"member_id"`
	LibrarianID *int64 `json:"librarian_id"`
}

func (h *LibraryHandler) createAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	account, err := h.svc.CreateAccount(c.Request.Context(), auth.CallerFrom(c), services.CreateAccountRequest{
		Username:    req.Username,
		Password:    req.Password,
		Role:        models.UserRole(strings.ToUpper(req.Role)),
		MemberID:    req.MemberID,
		LibrarianID: req.LibrarianID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

// ─── Events ───────────────────────────────────────────────────────────────────

type createEventRequest struct {
	Name      string `json:"name" binding:"required"`
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
	EventTime string `json:"event_time" binding:"required"`
	MemberID  *int64 `json:"member_id"`
}

func (h *LibraryHandler) createEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		badRequest(c, "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		badRequest(c, "end_date must be YYYY-MM-DD")
		return
	}
	event, err := h.svc.CreateEvent(c.Request.Context(), auth.CallerFrom(c), services.CreateEventRequest{
		Name:      req.Name,
		StartDate: start,
		EndDate:   end,
		EventTime: req.EventTime,
		MemberID:  req.MemberID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (h *LibraryHandler) listEvents(c *gin.Context) {
	events, err := h.svc.ListEvents(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

type updateEventRequest struct {
	Name        *string `json:"name"`
	StartDate   *string `json:"start_date"`
	EndDate     *string `json:"end_date"`
	EventTime   *string `json:"event_time"`
	MemberID    *int64  `json:"member_id"`
	ClearMember bool    `json:"clear_member"`
}

func (h *LibraryHandler) updateEvent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		badRequest(c, "start_date must be YYYY-MM-DD")
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		badRequest(c, "end_date must be YYYY-MM-DD")
		return
	}
	event, err := h.svc.UpdateEvent(c.Request.Context(), auth.CallerFrom(c), id, services.UpdateEventRequest{
		Name:        req.Name,
		StartDate:   start,
		EndDate:     end,
		EventTime:   req.EventTime,
		MemberID:    req.MemberID,
		ClearMember: req.ClearMember,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"libraryportal/internal/auth"
	"libraryportal/internal/models"
	"libraryportal/internal/services"
)

const identityKey = "identity"

type LibraryHandler struct {
	svc    services.LibraryService
	tokens *auth.TokenIssuer
}

func RegisterRoutes(r *gin.Engine, svc services.LibraryService, tokens *auth.TokenIssuer) {
	h := &LibraryHandler{svc: svc, tokens: tokens}

	// Auth endpoints
	r.POST("/login", h.login)
	r.POST("/signup", h.signup)
	r.POST("/logout", h.logout)
	r.GET("/whoami", h.whoami)

	// Any logged-in user
	api := r.Group("/api", h.requireLogin())
	api.GET("/books", h.listBooks)

	// Student endpoints
	student := api.Group("", h.requireRole(models.RoleStudent))
	student.GET("/mybooks", h.listMyBooks)
	student.GET("/myrequests", h.listMyRequests)
	student.POST("/request-borrow", h.requestBorrow)
	student.POST("/request-return", h.requestReturn)

	// Admin endpoints
	admin := api.Group("", h.requireRole(models.RoleAdmin))
	admin.POST("/books", h.addBook)
	admin.DELETE("/books/:id", h.removeBook)
	admin.GET("/issued", h.listIssued)
	admin.GET("/requests", h.listPendingRequests)
	admin.POST("/requests/approve", h.approveRequest)
	admin.POST("/requests/reject", h.rejectRequest)
}

// ─── Middleware ───────────────────────────────────────────────────────────────

// extractToken pulls the identity token from the Authorization header or,
// failing that, the token cookie.
func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	if cookie, err := c.Cookie("token"); err == nil {
		return cookie
	}
	return ""
}

func (h *LibraryHandler) requireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not logged in"})
			return
		}
		identity, err := h.tokens.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not logged in"})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func (h *LibraryHandler) requireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := currentIdentity(c)
		if identity == nil || identity.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}

func currentIdentity(c *gin.Context) *models.Identity {
	val, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, ok := val.(*models.Identity)
	if !ok {
		return nil
	}
	return identity
}

// statusFor maps workflow errors to HTTP status classes: 404 for missing
// records, 400 for validation and state errors, 500 for persistence
// failures.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrBookNotFound),
		errors.Is(err, services.ErrRequestNotPending):
		return http.StatusNotFound
	case errors.Is(err, services.ErrMissingFields),
		errors.Is(err, services.ErrInvalidRole),
		errors.Is(err, services.ErrUsernameExists),
		errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrNoCopiesAvailable),
		errors.Is(err, services.ErrDuplicatePendingRequest),
		errors.Is(err, services.ErrAlreadyBorrowed),
		errors.Is(err, services.ErrNoActiveIssue),
		errors.Is(err, services.ErrBookUnavailable),
		errors.Is(err, services.ErrNoOpenIssue),
		errors.Is(err, services.ErrActiveIssuesExist):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// ─── Auth ─────────────────────────────────────────────────────────────────────

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *LibraryHandler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.svc.Authenticate(req.Username, req.Password)
	if err != nil {
		fail(c, err)
		return
	}

	token, err := h.tokens.Issue(account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.SetCookie("token", token, int(auth.SessionTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "role": account.Role, "token": token})
}

type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *LibraryHandler) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.svc.Register(req.Username, req.Password, models.Role(req.Role)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *LibraryHandler) logout(c *gin.Context) {
	c.SetCookie("token", "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *LibraryHandler) whoami(c *gin.Context) {
	token := extractToken(c)
	if token == "" {
		c.JSON(http.StatusOK, gin.H{"user": nil})
		return
	}
	identity, err := h.tokens.Parse(token)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"user": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": identity})
}

// ─── Catalog ──────────────────────────────────────────────────────────────────

func (h *LibraryHandler) listBooks(c *gin.Context) {
	books, err := h.svc.ListBooks()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

type addBookRequest struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	Available *int   `json:"available"`
}

func (h *LibraryHandler) addBook(c *gin.Context) {
	var req addBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	available := 1
	if req.Available != nil {
		available = *req.Available
	}

	book, err := h.svc.AddBook(req.Title, req.Author, available)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "book": book})
}

func (h *LibraryHandler) removeBook(c *gin.Context) {
	bookID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
		return
	}

	if err := h.svc.RemoveBook(bookID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ─── Student Requests ─────────────────────────────────────────────────────────

type bookIDRequest struct {
	BookID int `json:"bookId" binding:"required"`
}

func (h *LibraryHandler) requestBorrow(c *gin.Context) {
	var req bookIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bookId required"})
		return
	}

	identity := currentIdentity(c)
	if _, err := h.svc.RequestBorrow(identity.Username, req.BookID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *LibraryHandler) requestReturn(c *gin.Context) {
	var req bookIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bookId required"})
		return
	}

	identity := currentIdentity(c)
	if _, err := h.svc.RequestReturn(identity.Username, req.BookID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *LibraryHandler) listMyBooks(c *gin.Context) {
	identity := currentIdentity(c)
	loans, err := h.svc.ListOpenLoans(identity.Username)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

func (h *LibraryHandler) listMyRequests(c *gin.Context) {
	identity := currentIdentity(c)
	requests, err := h.svc.ListUserPendingRequests(identity.Username)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, requests)
}

// ─── Admin Resolution ─────────────────────────────────────────────────────────

func (h *LibraryHandler) listIssued(c *gin.Context) {
	loans, err := h.svc.ListLoans()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

func (h *LibraryHandler) listPendingRequests(c *gin.Context) {
	requests, err := h.svc.ListPendingRequests()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, requests)
}

type requestIDRequest struct {
	RequestID int `json:"requestId" binding:"required"`
}

func (h *LibraryHandler) approveRequest(c *gin.Context) {
	var req requestIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "requestId required"})
		return
	}

	if err := h.svc.ApproveRequest(req.RequestID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *LibraryHandler) rejectRequest(c *gin.Context) {
	var req requestIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "requestId required"})
		return
	}

	if err := h.svc.RejectRequest(req.RequestID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

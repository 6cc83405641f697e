// auth_handlers.go implements stakeholder and admin login, the session echo,
// and the pre-auth agency listing that feeds the login form.
package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeryani-tests/joint-work-plan-app/internal/auth"
	"github.com/yeryani-tests/joint-work-plan-app/internal/config"
	"github.com/yeryani-tests/joint-work-plan-app/internal/middleware"
	"github.com/yeryani-tests/joint-work-plan-app/internal/store"
	"github.com/yeryani-tests/joint-work-plan-app/internal/telemetry"
)

// loginRequest is the stakeholder login form.
type loginRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Agency string `json:"agency"`
}

// adminLoginRequest carries the shared admin password.
type adminLoginRequest struct {
	Password string `json:"password"`
}

// @Summary      Stakeholder login
// @Description  Issues a session token for a stakeholder. Name, email and agency are all required; the agency must appear in the work plan.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  object  true  "name, email, agency"
// @Success      200  {object}  map[string]interface{}  "token, session"
// @Failure      400  {object}  map[string]interface{}  "Missing field or invalid body"
// @Failure      401  {object}  map[string]interface{}  "Agency not present in the work plan"
// @Router       /api/v1/auth/login [post]
// LoginHandler issues stakeholder sessions
func LoginHandler(st store.TableStore, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		id, err := auth.NewStakeholderIdentity(req.Name, req.Email, req.Agency)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// The agency must be one that actually appears in the work plan;
		// the login form offers exactly that list.
		master, err := fetchMaster(c.Request.Context(), st, cfg)
		if err != nil {
			respondStoreError(c, err)
			return
		}
		known := false
		for _, agency := range master.DistinctValues(cfg.Plan.AgencyColumn) {
			if agency == id.Agency {
				known = true
				break
			}
		}
		if !known {
			telemetry.LoginsTotal.WithLabelValues("stakeholder", "failure").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{"error": fmt.Sprintf("Agency %q is not part of the work plan", id.Agency)})
			return
		}

		token, err := auth.GenerateSessionToken(id, cfg.Auth.SessionTTL)
		if err != nil {
			slog.Error("session token generation failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}

		telemetry.LoginsTotal.WithLabelValues("stakeholder", "success").Inc()
		slog.Info("stakeholder login", "agency", id.Agency, "email", id.Email)
		c.JSON(http.StatusOK, gin.H{"token": token, "session": id})
	}
}

// @Summary      Admin login
// @Description  Issues an admin session token in exchange for the shared admin password.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  object  true  "password"
// @Success      200  {object}  map[string]interface{}  "token, session"
// @Failure      401  {object}  map[string]interface{}  "Invalid admin password"
// @Failure      503  {object}  map[string]interface{}  "Admin login is not configured"
// @Router       /api/v1/auth/admin [post]
// AdminLoginHandler issues admin sessions
func AdminLoginHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req adminLoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		if cfg.Auth.AdminPassword == "" {
			slog.Warn("admin login attempted but no admin password is configured")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Admin login is not configured"})
			return
		}

		if !auth.VerifyAdminPassword(req.Password, cfg.Auth.AdminPassword) {
			telemetry.LoginsTotal.WithLabelValues("admin", "failure").Inc()
			slog.Warn("admin login failed", "ip", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid admin password"})
			return
		}

		id := auth.AdminIdentity()
		token, err := auth.GenerateSessionToken(id, cfg.Auth.SessionTTL)
		if err != nil {
			slog.Error("session token generation failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}

		telemetry.LoginsTotal.WithLabelValues("admin", "success").Inc()
		slog.Info("admin login", "ip", c.ClientIP())
		c.JSON(http.StatusOK, gin.H{"token": token, "session": id})
	}
}

// @Summary      Current session
// @Description  Echoes the identity attached to the presented session token.
// @Tags         Authentication
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "session"
// @Failure      401  {object}  map[string]interface{}  "Missing or invalid session token"
// @Router       /api/v1/session [get]
// SessionHandler echoes the caller's session
func SessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := middleware.IdentityFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": id})
	}
}

// @Summary      List agencies
// @Description  Returns the sorted distinct agency values from the work plan. Unauthenticated: the login form needs it before a session exists.
// @Tags         Authentication
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "agencies: sorted string array"
// @Router       /api/v1/agencies [get]
// AgenciesHandler lists the agencies present in the work plan
func AgenciesHandler(st store.TableStore, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		master, err := fetchMaster(c.Request.Context(), st, cfg)
		if err != nil {
			respondStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"agencies": master.DistinctValues(cfg.Plan.AgencyColumn)})
	}
}

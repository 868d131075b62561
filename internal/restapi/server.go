// Package restapi provides the thin HTTP surface this core exposes:
// health checks, the git status/diff/conflicts read-only endpoints
// supplementing the gateway's realtime path, and a plain document-read
// endpoint for clients that haven't opened a websocket yet. Full
// CRUD/admin REST surfaces are out of scope; this wiring exists only
// so the pipeline can be exercised end-to-end over HTTP.
package restapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/refmd-collab/docserver/internal/apperr"
	"github.com/refmd-collab/docserver/internal/auth"
	"github.com/refmd-collab/docserver/internal/gitsync"
	"github.com/refmd-collab/docserver/internal/logging"
	"github.com/refmd-collab/docserver/internal/permission"
	"github.com/refmd-collab/docserver/internal/persistence"
	"github.com/refmd-collab/docserver/internal/scrap"
)

// Deps bundles the collaborators the REST surface calls into.
type Deps struct {
	Verifier   *auth.Verifier
	Documents  *persistence.DocumentRepository
	Scraps     *scrap.Service
	Git        gitsync.GitService
	ReposRoot  func(userID string) string
	Logger     *logging.Logger
}

// New builds the echo server with the middleware stack and the routes
// described above.
func New(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit("10M"))
	e.Use(authMiddleware(deps.Verifier))

	e.GET("/health", healthHandler)
	e.GET("/documents/:id", getDocumentHandler(deps.Documents))
	e.POST("/scraps/:id/posts", addScrapPostHandler(deps))
	e.GET("/git/status", gitStatusHandler(deps))
	e.GET("/git/diff/*", gitDiffHandler(deps))
	e.GET("/git/conflicts", gitConflictsHandler(deps))

	e.HTTPErrorHandler = errorHandler(deps.Logger)
	return e
}

type userIDCtxKey struct{}

// authMiddleware verifies the bearer token and stashes the user id in
// the request context; routes that don't require auth (health) simply
// never read it.
func authMiddleware(verifier *auth.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/health" {
				return next(c)
			}
			header := c.Request().Header.Get("Authorization")
			if len(header) < 8 || header[:7] != "Bearer " {
				return apperr.New(apperr.Unauthorized, "missing bearer token")
			}
			claims, err := verifier.VerifyToken(header[7:])
			if err != nil {
				return err
			}
			ctx := context.WithValue(c.Request().Context(), userIDCtxKey{}, claims.UserID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func userIDFrom(c echo.Context) string {
	v, _ := c.Request().Context().Value(userIDCtxKey{}).(string)
	return v
}

func healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "time": time.Now().Format(time.RFC3339)})
}

func getDocumentHandler(docs *persistence.DocumentRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id := c.Param("id")

		doc, err := docs.Get(ctx, id)
		if err != nil {
			return err
		}

		userID := userIDFrom(c)
		shareToken := c.QueryParam("share_token")

		req := permission.Request{
			DocumentID: id,
			UserID:     userID,
			IsOwner:    userID != "" && userID == doc.OwnerID,
			ShareToken: shareToken,
		}
		if userID != "" && !req.IsOwner {
			if grant, gerr := docs.GetPermission(ctx, id, userID); gerr == nil {
				level := grant.Level
				req.Grant = &level
			}
		}
		if shareToken != "" {
			if link, lerr := docs.GetShareLink(ctx, shareToken); lerr == nil && link.DocumentID == id {
				level := link.Level
				req.ShareLevel = &level
			}
		}

		decision := permission.Evaluate(req, permission.LevelView)
		if !decision.Allowed {
			return apperr.New(apperr.Forbidden, decision.Reason)
		}

		return c.JSON(http.StatusOK, doc)
	}
}

// addScrapPostRequest is the body of POST /scraps/:id/posts.
type addScrapPostRequest struct {
	Body       string `json:"body"`
	AuthorName string `json:"author_name,omitempty"`
}

func addScrapPostHandler(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req addScrapPostRequest
		if err := c.Bind(&req); err != nil {
			return apperr.Wrap(apperr.BadRequest, err)
		}

		userID := userIDFrom(c)
		var authorID *string
		if userID != "" {
			authorID = &userID
		}

		post, err := deps.Scraps.Add(c.Request().Context(), c.Param("id"), scrap.Author{UserID: authorID, Name: req.AuthorName}, req.Body)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, post)
	}
}

func gitStatusHandler(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		repo := deps.ReposRoot(userIDFrom(c))
		status, err := deps.Git.Status(c.Request().Context(), repo)
		if err != nil {
			return apperr.Wrap(apperr.GitFailure, err)
		}
		return c.JSON(http.StatusOK, status)
	}
}

func gitDiffHandler(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		repo := deps.ReposRoot(userIDFrom(c))
		path := c.Param("*")
		diff, err := deps.Git.Diff(c.Request().Context(), repo, path)
		if err != nil {
			return apperr.Wrap(apperr.GitFailure, err)
		}
		return c.String(http.StatusOK, diff)
	}
}

func gitConflictsHandler(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		repo := deps.ReposRoot(userIDFrom(c))
		conflicts, err := deps.Git.Conflicts(c.Request().Context(), repo)
		if err != nil {
			return apperr.Wrap(apperr.GitFailure, err)
		}
		return c.JSON(http.StatusOK, conflicts)
	}
}

func errorHandler(log *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		status := apperr.HTTPStatus(err)
		if log != nil {
			log.WithError(err).WithField("path", c.Request().URL.Path).Error("request failed")
		}
		if !c.Response().Committed {
			_ = c.JSON(status, map[string]string{"error": err.Error()})
		}
	}
}

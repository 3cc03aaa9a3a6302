package api

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/platelab/labeler/internal/catalog"
	"github.com/platelab/labeler/internal/errors"
	"github.com/platelab/labeler/internal/logger"
	"github.com/platelab/labeler/internal/media"
	"github.com/platelab/labeler/internal/triage"
)

// TriageRequest is the body of the POST /images/* endpoints.
type TriageRequest struct {
	Path  string  `json:"path"`
	Img   string  `json:"img"` // older UI name for path
	Label *string `json:"label,omitempty"`
}

func (r TriageRequest) imagePath() string {
	if r.Path != "" {
		return r.Path
	}
	return r.Img
}

// TriageResponse is returned after a successful move.
type TriageResponse struct {
	Success bool           `json:"success"`
	NewPath string         `json:"new_path"`
	Counts  catalog.Counts `json:"counts,omitempty"`
}

// wildcardPath returns the decoded remainder of a "/*" route.
func wildcardPath(c echo.Context) (string, error) {
	p := c.Param("*")
	if c.Request().URL.RawPath == "" {
		return p, nil
	}
	decoded, err := url.PathUnescape(p)
	if err != nil {
		return "", errors.New(media.ErrInvalidPath).
			Component("api").
			Category(errors.CategoryValidation).
			Context("path", p).
			Build()
	}
	return decoded, nil
}

func (s *Server) listImages(c echo.Context) error {
	paths, err := s.catalog.ListAll(c.Request().Context())
	if err != nil {
		return s.HandleError(c, err)
	}
	if paths == nil {
		paths = []string{}
	}
	return c.JSON(http.StatusOK, paths)
}

func (s *Server) countImages(c echo.Context) error {
	counts, err := s.catalog.Counts(c.Request().Context())
	if err != nil {
		return s.HandleError(c, err)
	}
	return c.JSON(http.StatusOK, counts)
}

func (s *Server) imageDetails(c echo.Context) error {
	p, err := wildcardPath(c)
	if err != nil {
		return s.HandleError(c, err)
	}
	details, err := s.preview.Details(p)
	if err != nil {
		return s.HandleError(c, err)
	}
	return c.JSON(http.StatusOK, details)
}

func (s *Server) previewCrop(c echo.Context) error {
	p, err := wildcardPath(c)
	if err != nil {
		return s.HandleError(c, err)
	}
	data, err := s.preview.Crop(c.Request().Context(), p)
	if err != nil {
		return s.HandleError(c, err)
	}
	// Crops depend on the detector and are rendered fresh on every request.
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, "image/jpeg", data)
}

// serveImage streams raw image bytes from the category subtree c.
func (s *Server) serveImage(category media.Category) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := wildcardPath(c)
		if err != nil {
			return s.HandleError(c, err)
		}
		rec, err := media.ParsePath(string(category) + "/" + p)
		if err != nil {
			return s.HandleError(c, err)
		}
		if rec.Category != category {
			return s.HandleError(c, errors.New(media.ErrInvalidPath).
				Component("api").
				Category(errors.CategoryValidation).
				Context("path", p).
				Build())
		}
		if err := s.files.ServeRelativeFile(c, rec.Path()); err != nil {
			return s.HandleError(c, err)
		}
		return nil
	}
}

func (s *Server) updateLabel(c echo.Context) error {
	return s.triageOp(c, func(req TriageRequest) (triage.Result, error) {
		label := ""
		if req.Label != nil {
			label = *req.Label
		}
		return s.triage.UpdateLabel(req.imagePath(), label)
	})
}

func (s *Server) markValid(c echo.Context) error {
	return s.triageOp(c, func(req TriageRequest) (triage.Result, error) {
		return s.triage.MarkValid(req.imagePath(), req.Label)
	})
}

func (s *Server) markInvalid(c echo.Context) error {
	return s.triageOp(c, func(req TriageRequest) (triage.Result, error) {
		return s.triage.MarkInvalid(req.imagePath())
	})
}

func (s *Server) markSkipped(c echo.Context) error {
	return s.triageOp(c, func(req TriageRequest) (triage.Result, error) {
		return s.triage.MarkSkipped(req.imagePath())
	})
}

// triageOp binds the request, runs op and answers with the new path and
// fresh counts. A counting failure after a completed move is logged and the
// counts are omitted; the move itself is not reported as failed.
func (s *Server) triageOp(c echo.Context, op func(TriageRequest) (triage.Result, error)) error {
	var req TriageRequest
	if err := c.Bind(&req); err != nil {
		return s.HandleError(c, err)
	}

	result, err := op(req)
	if err != nil {
		return s.HandleError(c, err)
	}

	resp := TriageResponse{Success: true, NewPath: result.NewPath}
	counts, err := s.catalog.Counts(c.Request().Context())
	if err != nil {
		s.log.Warn("counts unavailable after move",
			logger.String("new_path", result.NewPath),
			logger.Error(err))
	} else {
		resp.Counts = counts
	}
	return c.JSON(http.StatusOK, resp)
}

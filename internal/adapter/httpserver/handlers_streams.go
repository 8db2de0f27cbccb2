package httpserver

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/streamrelay/internal/platform/errors"
)

const (
	maxLoginLength = 25
	maxQueryLength = 100
)

func (s *Server) handleGetChannel(c echo.Context) error {
	login, err := normalizeLogin(c.Param("login"))
	if err != nil {
		return err
	}

	streamer, err := s.streams.GetChannel(c.Request().Context(), login)
	if err != nil {
		return mapServiceError(err, "failed to load channel").WithField("login", login)
	}

	if err := c.JSON(http.StatusOK, streamer); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleSearchChannels(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("query"))
	if query == "" {
		return apperrors.ValidationError("query is required")
	}
	if utf8.RuneCountInString(query) > maxQueryLength {
		return apperrors.ValidationError(fmt.Sprintf("query must be at most %d characters", maxQueryLength))
	}

	results, err := s.streams.SearchChannels(c.Request().Context(), query)
	if err != nil {
		return mapServiceError(err, "failed to search channels").WithField("query", query)
	}

	if err := c.JSON(http.StatusOK, results); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetFollowedStreams(c echo.Context) error {
	accountID, ok := c.Get(contextKeyAccountID).(string)
	if !ok {
		return apperrors.InternalError("missing account ID in context", nil)
	}

	streams, err := s.streams.GetFollowedStreamsForAccount(c.Request().Context(), accountID)
	if err != nil {
		return mapServiceError(err, "failed to load followed streams")
	}

	if err := c.JSON(http.StatusOK, streams); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// normalizeLogin trims and lower-cases a login name and checks it against the platform's
// login charset.
func normalizeLogin(raw string) (string, error) {
	login := strings.ToLower(strings.TrimSpace(raw))
	if login == "" {
		return "", apperrors.ValidationError("login is required")
	}
	if len(login) > maxLoginLength {
		return "", apperrors.ValidationError(fmt.Sprintf("login must be at most %d characters", maxLoginLength)).WithField("login", login)
	}
	for _, r := range login {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z') {
			return "", apperrors.ValidationError("login may only contain letters, digits and underscores").WithField("login", login)
		}
	}
	return login, nil
}

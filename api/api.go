// Package api exposes the CRL distribution point and ledger listings over HTTP.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"vpnca/crl"
	"vpnca/ledger"
	"vpnca/manager"
	"vpnca/pkg/helper"
)

type Server struct {
	manager *manager.Manager

	mu     sync.Mutex
	cached *crl.CRL
}

func Route(e *helper.Echo, m *manager.Manager) {
	s := &Server{manager: m}

	e.GET("/healthz", s.healthz)
	e.GET("/crl", s.crl)
	e.GET("/certificates", s.listCertificates)
}

func (s *Server) healthz(c echo.Context) error { return c.NoContent(http.StatusOK) }

// crl serve the distribution-point CRL. Generating bumps the durable CRL
// number, so the last CRL is reused as long as it is unexpired and still
// covers the ledger's revoked set.
func (s *Server) crl(c echo.Context) error {
	ctx := c.Request().Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	revoked, err := s.manager.Ledger().RevokedSerials(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if s.cached == nil || time.Now().After(s.cached.NextUpdate) || !serialsEqual(s.cached.RevokedSerials, revoked) {
		generated, err := s.manager.Issuer().Generate(ctx)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		s.cached = generated
	}

	return c.Blob(http.StatusOK, "application/pkix-crl", s.cached.DER)
}

func serialsEqual(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type certificateResp struct {
	Serial     uint64  `json:"serial"`
	CommonName string  `json:"common_name"`
	IssuedAt   string  `json:"issued_at"`
	Status     string  `json:"status"`
	RevokedAt  *string `json:"revoked_at,omitempty"`
}

func (s *Server) listCertificates(c echo.Context) error {
	entries, err := s.manager.Ledger().List(c.Request().Context(), ledger.ListOpt{
		Status: ledger.StrToStatus(c.QueryParam("status")),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := make([]certificateResp, 0, len(entries))
	for _, e := range entries {
		r := certificateResp{
			Serial:     e.Serial,
			CommonName: e.CommonName,
			IssuedAt:   e.IssuedAt.Format(time.RFC3339),
			Status:     e.Status,
		}
		if e.RevokedAt != nil {
			revokedAt := e.RevokedAt.Format(time.RFC3339)
			r.RevokedAt = &revokedAt
		}
		resp = append(resp, r)
	}

	return c.JSON(http.StatusOK, resp)
}

package http

import (
	"net/http"
	"time"

	"github.com/cartogra/cartogra/internal/api/revocation"
	"github.com/cartogra/cartogra/internal/api/store"
	"github.com/cartogra/cartogra/pkg/httpx"
)

type healthChecks struct {
	Database   string `json:"database,omitempty"`
	Revocation string `json:"revocation,omitempty"`
}

type healthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *healthChecks `json:"checks,omitempty"`
}

// LivezHandler is the liveness probe. It returns 200 whenever the process is
// up, regardless of dependency health.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, healthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler is the readiness probe. The database is a hard dependency;
// the revocation store is reported but never fails readiness because the
// service is designed to keep serving without it.
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	revocations *revocation.Store,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &healthChecks{
			Database:   "ok",
			Revocation: "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if !revocations.Enabled() {
			checks.Revocation = "disabled"
		}

		httpx.WriteJSON(w, statusCode, healthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}

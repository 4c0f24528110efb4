package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/banshee-data/watercolumn/internal/adcp"
	"github.com/banshee-data/watercolumn/internal/config"
	"github.com/banshee-data/watercolumn/internal/db"
	"github.com/banshee-data/watercolumn/internal/httputil"
	"github.com/banshee-data/watercolumn/internal/units"
	"github.com/banshee-data/watercolumn/internal/watercolumn"
)

const maxHistoryLimit = 5000

// snapshotResponse is a snapshot with its speeds in the requested units.
type snapshotResponse struct {
	Units string `json:"units"`
	watercolumn.Snapshot
}

func convertSnapshot(snap *watercolumn.Snapshot, u string) snapshotResponse {
	out := snapshotResponse{Units: u, Snapshot: *snap}
	out.Average.AvgVel = units.ConvertSpeed(snap.Average.AvgVel, u)
	out.Average.MaxVel = units.ConvertSpeed(snap.Average.MaxVel, u)
	out.Ship.ShipVel = units.ConvertSpeed(snap.Ship.ShipVel, u)
	out.Ship.ShipMaxVel = units.ConvertSpeed(snap.Ship.ShipMaxVel, u)
	return out
}

func convertReport(r db.Report, u string) db.Report {
	r.AvgVel = units.ConvertSpeed(r.AvgVel, u)
	r.MaxVel = units.ConvertSpeed(r.MaxVel, u)
	r.ShipVel = units.ConvertSpeed(r.ShipVel, u)
	r.ShipMaxVel = units.ConvertSpeed(r.ShipMaxVel, u)
	return r
}

func (s *Server) showSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	u, ok := s.requestUnits(r)
	if !ok {
		httputil.BadRequest(w, "invalid units, must be one of: "+units.GetValidUnitsString())
		return
	}
	snap := s.proc.Snapshot()
	if snap == nil {
		httputil.NotFound(w, "no ensemble processed yet")
		return
	}
	httputil.WriteJSONOK(w, convertSnapshot(snap, u))
}

// showBins returns the per-bin water table of the latest ensemble.
func (s *Server) showBins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap := s.proc.Snapshot()
	if snap == nil {
		httputil.NotFound(w, "no ensemble processed yet")
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"ensemble_number": snap.EnsembleNumber,
		"min_bin":         snap.Average.MinBin,
		"max_bin":         snap.Average.MaxBin,
		"bins":            snap.Bins,
	})
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "history is disabled")
		return
	}
	u, ok := s.requestUnits(r)
	if !ok {
		httputil.BadRequest(w, "invalid units, must be one of: "+units.GetValidUnitsString())
		return
	}
	limit, err := httputil.QueryInt(r, "limit", 100, 1, maxHistoryLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	reports, err := s.db.RecentReports(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load reports: %v", err))
		return
	}
	out := make([]db.Report, 0, len(reports))
	for _, rep := range reports {
		out = append(out, convertReport(rep, u))
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"units": u, "reports": out})
}

func (s *Server) resetShipMax(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.proc.ResetShipMax()
	logf("ship max speed reset")
	httputil.WriteJSONOK(w, map[string]string{"status": "reset"})
}

// handleConfig returns the settings on GET and applies a partial update on
// PUT. Averaging fields take effect immediately; port settings are stored
// and apply on the next start.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		cfg := s.cfg
		s.mu.Unlock()
		httputil.WriteJSONOK(w, cfg)
	case http.MethodPut:
		var update config.AveragingConfig
		if err := httputil.DecodeJSON(r, &update); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		merged := s.cfg.Merge(&update)
		if err := merged.Validate(); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := s.proc.Reconfigure(merged.ToWatercolumn()); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		s.cfg = merged
		logf("averaging config updated")
		if s.save != nil {
			if err := s.save(merged); err != nil {
				logf("failed to persist config: %v", err)
			}
		}
		httputil.WriteJSONOK(w, merged)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// logCommand stores a sent command when history is enabled.
func (s *Server) logCommand(ctx context.Context, command string, sendErr error) {
	if s.db == nil {
		return
	}
	if err := s.db.RecordCommand(ctx, "adcp", command, sendErr, s.clock.Now()); err != nil {
		logf("%v", err)
	}
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	command := strings.TrimSpace(r.FormValue("command"))
	if command == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}

	err := s.adcp.SendCommand(command)
	s.logCommand(r.Context(), command, err)
	if err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}

// startPinging sends the configured command set followed by START.
func (s *Server) startPinging(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.mu.Lock()
	set := s.cfg.GetCommandSet()
	s.mu.Unlock()

	err := s.adcp.StartPinging(set)
	s.logCommand(r.Context(), adcp.CmdStartPinging, err)
	if err != nil {
		var cmdErr *adcp.CommandError
		if errors.As(err, &cmdErr) {
			httputil.WriteJSONError(w, http.StatusBadGateway, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":   "pinging",
		"commands": len(adcp.ParseCommandSet(set)),
	})
}

func (s *Server) stopPinging(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	err := adcp.StopPinging(s.adcp)
	s.logCommand(r.Context(), adcp.CmdStopPinging, err)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "stopped"})
}

func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "history is disabled")
		return
	}
	limit, err := httputil.QueryInt(r, "limit", 50, 1, maxHistoryLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	entries, err := s.db.RecentCommands(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load commands: %v", err))
		return
	}
	if entries == nil {
		entries = []db.CommandLogEntry{}
	}
	httputil.WriteJSONOK(w, entries)
}

package api

import (
	"bytes"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/watercolumn/internal/db"
	"github.com/banshee-data/watercolumn/internal/httputil"
	"github.com/banshee-data/watercolumn/internal/units"
)

// echartsAssetsHost serves the echarts javascript.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// showChart renders recent reports as a line chart of water and ship speed.
func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
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
	limit, err := httputil.QueryInt(r, "limit", 300, 1, maxHistoryLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	reports, err := s.db.RecentReports(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load reports: %v", err))
		return
	}
	// oldest first along the x axis
	slices.Reverse(reports)

	var buf bytes.Buffer
	if err := renderSpeedChart(&buf, reports, u); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func renderSpeedChart(buf *bytes.Buffer, reports []db.Report, u string) error {
	x := make([]string, 0, len(reports))
	avg := make([]opts.LineData, 0, len(reports))
	peak := make([]opts.LineData, 0, len(reports))
	ship := make([]opts.LineData, 0, len(reports))
	for _, rep := range reports {
		rep = convertReport(rep, u)
		x = append(x, rep.RecordedAt.Format(time.TimeOnly))
		avg = append(avg, opts.LineData{Value: rep.AvgVel})
		peak = append(peak, opts.LineData{Value: rep.MaxVel})
		ship = append(ship, opts.LineData{Value: rep.ShipVel})
	}

	subtitle := "no reports"
	if n := len(reports); n > 0 {
		subtitle = fmt.Sprintf("ensembles %d to %d", reports[0].EnsembleNumber, reports[n-1].EnsembleNumber)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Water Column", Width: "100%", Height: "600px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Water Column Speed", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithYAxisOpts(opts.YAxis{Name: u, NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(x).
		AddSeries("average", avg).
		AddSeries("max", peak).
		AddSeries("ship", ship)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(line)
	return page.Render(buf)
}

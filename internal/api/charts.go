package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/mchgeo/internal/deid"
	"github.com/banshee-data/mchgeo/internal/httputil"
)

// offsetsChart renders an HTML scatter of every element's (x, y) offset,
// one series per station.
func (s *Server) offsetsChart(w http.ResponseWriter, r *http.Request) {
	features := s.Store().Features()

	series := make(map[int][]opts.ScatterData)
	for _, f := range features {
		st := deid.Station(f.DEID())
		series[st] = append(series[st], opts.ScatterData{
			Value: []interface{}{f.Properties.X, f.Properties.Y, f.DEID()},
			Name:  strconv.Itoa(f.DEID()),
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "MCH detection element offsets", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Detection element offsets", Subtitle: fmt.Sprintf("elements=%d", len(features))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "x (cm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "y (cm)", NameLocation: "middle", NameGap: 30}),
	)

	for st := 1; st <= (deid.Chambers+1)/2; st++ {
		data, ok := series[st]
		if !ok {
			continue
		}
		scatter.AddSeries(fmt.Sprintf("station %d", st), data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	httputil.WriteHTML(w, buf.Bytes())
}

package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/mchgeo/internal/deid"
	"github.com/banshee-data/mchgeo/internal/feature"
	"github.com/banshee-data/mchgeo/internal/httputil"
	"github.com/banshee-data/mchgeo/internal/render"
	"github.com/banshee-data/mchgeo/internal/units"
)

func (s *Server) listIDs(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.Store().IDs())
}

// listFeatures returns the whole collection, or one chamber with
// ?chamber=N.
func (s *Server) listFeatures(w http.ResponseWriter, r *http.Request) {
	features := s.Store().Features()
	if c := r.URL.Query().Get("chamber"); c != "" {
		chamber, err := strconv.Atoi(c)
		if err != nil || chamber < 1 || chamber > deid.Chambers {
			httputil.BadRequest(w, "Invalid 'chamber' parameter")
			return
		}
		features = render.ChamberFeatures(features, chamber)
		if features == nil {
			features = []feature.Feature{}
		}
	}
	httputil.WriteJSONOK(w, features)
}

func (s *Server) showFeature(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	f, err := s.Store().Feature(id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	httputil.WriteJSONOK(w, f)
}

func (s *Server) showPolygon(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	p, err := s.Store().Polygon(id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	httputil.WriteJSONOK(w, p)
}

func (s *Server) showTransformation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	t, err := s.Store().Transformation(id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	if unit := r.URL.Query().Get("unit"); unit != "" {
		if err := convertAngles(t, s.angleUnit(), unit); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	}
	httputil.WriteJSONOK(w, t)
}

// convertAngles rewrites yaw, pitch and roll of t from one unit to another.
func convertAngles(t map[string]float64, from, to string) error {
	for _, k := range []string{feature.KeyYaw, feature.KeyPitch, feature.KeyRoll} {
		v, ok := t[k]
		if !ok {
			continue
		}
		c, err := units.ConvertAngle(v, from, to)
		if err != nil {
			return err
		}
		t[k] = c
	}
	return nil
}

func (s *Server) showOffset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	o, err := s.Store().Offset(id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	httputil.WriteJSONOK(w, o)
}

// matrixResponse is the body of the matrix endpoint.
type matrixResponse struct {
	DEID    int           `json:"deid"`
	Degrees bool          `json:"degrees"`
	Matrix  [9]float64    `json:"matrix"`
	Rows    [3][3]float64 `json:"rows"`
}

// showMatrix returns the rotation matrix of an element. ?radians=true reads
// the stored angles as radians instead of the configured unit.
func (s *Server) showMatrix(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	radians, err := boolParam(r, "radians", !s.degrees)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	m, err := s.Store().Matrix(id, !radians)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	httputil.WriteJSONOK(w, matrixResponse{DEID: id, Degrees: !radians, Matrix: m, Rows: m.Rows()})
}

// plotChamber draws one chamber with gonum/plot. ?format=svg (default) or
// png.
func (s *Server) plotChamber(w http.ResponseWriter, r *http.Request) {
	chamber, err := strconv.Atoi(r.PathValue("chamber"))
	if err != nil || chamber < 1 || chamber > deid.Chambers {
		httputil.BadRequest(w, "Invalid chamber")
		return
	}

	format := r.URL.Query().Get("format")
	contentType := ""
	switch format {
	case "", "svg":
		format, contentType = "svg", "image/svg+xml"
	case "png":
		contentType = "image/png"
	default:
		httputil.BadRequest(w, "Invalid 'format' parameter")
		return
	}

	features := s.Store().Features()
	if len(render.ChamberFeatures(features, chamber)) == 0 {
		httputil.NotFound(w, fmt.Sprintf("no detection elements in chamber %d", chamber))
		return
	}

	var buf bytes.Buffer
	if err := render.WriteChamber(&buf, features, chamber, format); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chamber: %v", err))
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(buf.Bytes())
}

// listRuns lists recorded snapshots, newest first. ?limit=N caps the list.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		httputil.NotFound(w, "no snapshot database configured")
		return
	}
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = n
	}
	runs, err := s.runs.Runs(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, runs)
}

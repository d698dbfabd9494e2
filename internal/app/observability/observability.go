package observability

import (
	"database/sql"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/go-chi/chi/v5/middleware"
)

type key struct {
	Method string
	Path   string
	Status int
}

type stat struct {
	Count     int64
	LatencyMS float64
}

// Collector tracks per-route request stats and exposes them, together
// with platform-level counts, as plain-text metrics.
type Collector struct {
	db *sql.DB

	mu           sync.RWMutex
	requestStats map[key]stat
	startedAt    time.Time
}

func NewCollector(db *sql.DB) *Collector {
	return &Collector{
		db:           db,
		requestStats: make(map[key]stat),
		startedAt:    time.Now(),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
		path := normalizedPath(r.URL.Path)

		c.mu.Lock()
		k := key{Method: r.Method, Path: path, Status: rec.status}
		s := c.requestStats[k]
		s.Count++
		s.LatencyMS += latencyMS
		c.requestStats[k] = s
		c.mu.Unlock()

		log.WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       path,
			"status":     rec.status,
			"latency_ms": latencyMS,
			"remote_ip":  strings.TrimSpace(r.RemoteAddr),
		}).Debug("http request")
	})
}

func (c *Collector) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	statsCopy := make(map[key]stat, len(c.requestStats))
	for k, v := range c.requestStats {
		statsCopy[k] = v
	}
	startedAt := c.startedAt
	c.mu.RUnlock()

	keys := make([]key, 0, len(statsCopy))
	for k := range statsCopy {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Method != keys[j].Method {
			return keys[i].Method < keys[j].Method
		}
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Status < keys[j].Status
	})

	var sb strings.Builder
	sb.WriteString("# formbuilder observability metrics\n")
	sb.WriteString("# TYPE formbuilder_uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("formbuilder_uptime_seconds %.0f\n", time.Since(startedAt).Seconds()))

	sb.WriteString("# TYPE formbuilder_http_requests_total counter\n")
	sb.WriteString("# TYPE formbuilder_http_request_latency_ms_sum counter\n")
	sb.WriteString("# TYPE formbuilder_http_request_latency_ms_avg gauge\n")
	for _, k := range keys {
		s := statsCopy[k]
		labels := fmt.Sprintf("method=%q,path=%q,status=\"%d\"", k.Method, k.Path, k.Status)
		sb.WriteString(fmt.Sprintf("formbuilder_http_requests_total{%s} %d\n", labels, s.Count))
		sb.WriteString(fmt.Sprintf("formbuilder_http_request_latency_ms_sum{%s} %.3f\n", labels, s.LatencyMS))
		avg := 0.0
		if s.Count > 0 {
			avg = s.LatencyMS / float64(s.Count)
		}
		sb.WriteString(fmt.Sprintf("formbuilder_http_request_latency_ms_avg{%s} %.3f\n", labels, avg))
	}

	if c.db != nil {
		c.writePlatformCounts(r, &sb)

		dbs := c.db.Stats()
		sb.WriteString("# TYPE formbuilder_db_open_connections gauge\n")
		sb.WriteString(fmt.Sprintf("formbuilder_db_open_connections %d\n", dbs.OpenConnections))
		sb.WriteString("# TYPE formbuilder_db_in_use_connections gauge\n")
		sb.WriteString(fmt.Sprintf("formbuilder_db_in_use_connections %d\n", dbs.InUse))
		sb.WriteString("# TYPE formbuilder_db_idle_connections gauge\n")
		sb.WriteString(fmt.Sprintf("formbuilder_db_idle_connections %d\n", dbs.Idle))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

func (c *Collector) writePlatformCounts(r *http.Request, sb *strings.Builder) {
	row := c.db.QueryRowContext(r.Context(), `
		SELECT
			(SELECT count(*) FROM forms WHERE is_active),
			(SELECT count(*) FROM form_versions),
			(SELECT count(*) FROM form_versions WHERE is_published),
			(SELECT count(*) FROM form_submissions),
			(SELECT count(*) FROM form_submissions WHERE is_complete)
	`)

	var forms, versions, published, submissions, completed int64
	if err := row.Scan(&forms, &versions, &published, &submissions, &completed); err != nil {
		log.WithError(err).Warn("platform counts query failed")
		return
	}

	sb.WriteString("# TYPE formbuilder_active_forms gauge\n")
	sb.WriteString(fmt.Sprintf("formbuilder_active_forms %d\n", forms))
	sb.WriteString("# TYPE formbuilder_form_versions gauge\n")
	sb.WriteString(fmt.Sprintf("formbuilder_form_versions %d\n", versions))
	sb.WriteString("# TYPE formbuilder_published_versions gauge\n")
	sb.WriteString(fmt.Sprintf("formbuilder_published_versions %d\n", published))
	sb.WriteString("# TYPE formbuilder_form_submissions gauge\n")
	sb.WriteString(fmt.Sprintf("formbuilder_form_submissions %d\n", submissions))
	sb.WriteString("# TYPE formbuilder_completed_submissions gauge\n")
	sb.WriteString(fmt.Sprintf("formbuilder_completed_submissions %d\n", completed))
}

var reUUID = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// normalizedPath collapses high-cardinality segments (uuids, numbers,
// form slugs) so the stats map stays bounded.
func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if reUUID.MatchString(p) {
			parts[i] = "{id}"
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
			continue
		}
		if i > 0 && parts[i-1] == "forms" {
			parts[i] = "{slug}"
		}
	}
	return strings.Join(parts, "/")
}

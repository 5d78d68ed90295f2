package admin

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dentalchat-ai/platform/pkg/logging"
)

type dashboardDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type dashboardRepo interface {
	LeadCohortByDay(ctx context.Context, clientID uuid.UUID, start, end time.Time) ([]LeadCohortDay, error)
}

// LeadCohortDay captures the lead funnel counts for one finalization day.
type LeadCohortDay struct {
	Day            time.Time `json:"-"`
	DayLabel       string    `json:"day"`
	FinalizedLeads int64     `json:"finalized_leads"`
	DeliveredLeads int64     `json:"delivered_leads"`
}

type WebhookLatencySnapshot struct {
	Total   int64                  `json:"total"`
	P90Ms   float64                `json:"p90_ms"`
	P95Ms   float64                `json:"p95_ms"`
	Buckets []WebhookLatencyBucket `json:"buckets"`
}

type WebhookLatencyBucket struct {
	LeSeconds float64 `json:"le_seconds"`
	Label     string  `json:"label,omitempty"`
	Count     int64   `json:"count"`
}

type ClientDashboard struct {
	ClientID        string                 `json:"client_id"`
	PeriodStart     string                 `json:"period_start"`
	PeriodEnd       string                 `json:"period_end"`
	FinalizedLeads  int64                  `json:"finalized_leads"`
	DeliveredLeads  int64                  `json:"delivered_leads"`
	DeliveryRatePct float64                `json:"delivery_rate_pct"`
	WebhookLatency  WebhookLatencySnapshot `json:"webhook_latency"`
	Daily           []LeadCohortDay        `json:"daily"`
}

// DashboardRepository queries client-level lead funnel counts from the database.
type DashboardRepository struct {
	db dashboardDB
}

func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	if pool == nil {
		panic("admin: pgx pool required for dashboard")
	}
	return &DashboardRepository{db: pool}
}

func NewDashboardRepositoryWithDB(db dashboardDB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

func (r *DashboardRepository) LeadCohortByDay(ctx context.Context, clientID uuid.UUID, start, end time.Time) ([]LeadCohortDay, error) {
	if clientID == uuid.Nil {
		return nil, fmt.Errorf("admin dashboard: client_id required")
	}
	if !end.After(start) {
		return nil, fmt.Errorf("admin dashboard: invalid time range")
	}

	query := `
		SELECT date_trunc('day', c.finalized_at) AS day,
		       COUNT(*) AS finalized_leads,
		       COUNT(DISTINCT s.conversation_id) AS delivered_leads
		FROM conversations c
		LEFT JOIN webhook_successes s
		  ON s.conversation_id = c.conversation_id
		WHERE c.client_id = $1
		  AND c.is_finalized
		  AND c.finalized_at >= $2
		  AND c.finalized_at < $3
		GROUP BY day
		ORDER BY day
	`

	rows, err := r.db.Query(ctx, query, clientID, start, end)
	if err != nil {
		return nil, fmt.Errorf("admin dashboard: query cohort: %w", err)
	}
	defer rows.Close()

	var results []LeadCohortDay
	for rows.Next() {
		var day time.Time
		var finalized int64
		var delivered int64
		if err := rows.Scan(&day, &finalized, &delivered); err != nil {
			return nil, fmt.Errorf("admin dashboard: scan cohort: %w", err)
		}
		results = append(results, LeadCohortDay{
			Day:            day.UTC(),
			DayLabel:       day.UTC().Format("2006-01-02"),
			FinalizedLeads: finalized,
			DeliveredLeads: delivered,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("admin dashboard: iterate cohort: %w", err)
	}
	return results, nil
}

// DashboardHandler serves the operational dashboard JSON for a client.
type DashboardHandler struct {
	repo     dashboardRepo
	gatherer prometheus.Gatherer
	logger   *logging.Logger
}

func NewDashboardHandler(repo dashboardRepo, gatherer prometheus.Gatherer, logger *logging.Logger) *DashboardHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &DashboardHandler{
		repo:     repo,
		gatherer: gatherer,
		logger:   logger,
	}
}

// GetDashboard returns client lead funnel metrics.
// GET /api/admin/dashboard/{clientID}
// Query params:
//   - start: RFC3339 timestamp (optional, requires end)
//   - end: RFC3339 timestamp (optional, requires start)
//   - days: integer window (default 7) when start/end omitted
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	clientID, err := clientIDParam(r)
	if err != nil {
		http.Error(w, `{"error":"invalid client id"}`, http.StatusBadRequest)
		return
	}
	if h.repo == nil {
		http.Error(w, `{"error":"dashboard disabled (db not configured)"}`, http.StatusServiceUnavailable)
		return
	}

	start, end, err := parseDashboardWindow(r)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	cohort, err := h.repo.LeadCohortByDay(r.Context(), clientID, start, end)
	if err != nil {
		h.logger.Error("failed to query dashboard cohort", "client_id", clientID.String(), "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	cohort = fillMissingDays(cohort, start, end)

	var finalizedTotal int64
	var deliveredTotal int64
	for _, day := range cohort {
		finalizedTotal += day.FinalizedLeads
		deliveredTotal += day.DeliveredLeads
	}

	deliveryPct := 0.0
	if finalizedTotal > 0 {
		deliveryPct = (float64(deliveredTotal) / float64(finalizedTotal)) * 100.0
	}

	latency := snapshotWebhookLatency(h.gatherer)

	resp := ClientDashboard{
		ClientID:        clientID.String(),
		PeriodStart:     start.UTC().Format(time.RFC3339),
		PeriodEnd:       end.UTC().Format(time.RFC3339),
		FinalizedLeads:  finalizedTotal,
		DeliveredLeads:  deliveredTotal,
		DeliveryRatePct: deliveryPct,
		WebhookLatency:  latency,
		Daily:           cohort,
	}

	writeJSON(w, http.StatusOK, resp)
}

func parseDashboardWindow(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()

	startRaw := strings.TrimSpace(q.Get("start"))
	endRaw := strings.TrimSpace(q.Get("end"))
	if (startRaw == "") != (endRaw == "") {
		return time.Time{}, time.Time{}, fmt.Errorf("both start and end must be provided, or neither")
	}
	if startRaw != "" {
		start, err := time.Parse(time.RFC3339, startRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start time, use RFC3339 format")
		}
		end, err := time.Parse(time.RFC3339, endRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end time, use RFC3339 format")
		}
		if !end.After(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("end must be after start")
		}
		return start.UTC(), end.UTC(), nil
	}

	days := 7
	if raw := strings.TrimSpace(q.Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 90 {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid days; must be 1-90")
		}
		days = parsed
	}

	now := time.Now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -days)
	return start, end, nil
}

func fillMissingDays(existing []LeadCohortDay, start, end time.Time) []LeadCohortDay {
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	lookup := map[string]LeadCohortDay{}
	for _, d := range existing {
		lookup[d.Day.UTC().Format("2006-01-02")] = d
	}

	out := make([]LeadCohortDay, 0, int(endDay.Sub(startDay).Hours()/24)+1)
	for day := startDay; day.Before(endDay); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		if found, ok := lookup[key]; ok {
			out = append(out, found)
			continue
		}
		out = append(out, LeadCohortDay{
			Day:      day,
			DayLabel: key,
		})
	}
	return out
}

const webhookLatencyFamily = "dentalchat_delivery_webhook_latency_seconds"

func snapshotWebhookLatency(gatherer prometheus.Gatherer) WebhookLatencySnapshot {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return WebhookLatencySnapshot{}
	}

	var family *dto.MetricFamily
	for _, mf := range mfs {
		if mf != nil && mf.GetName() == webhookLatencyFamily {
			family = mf
			break
		}
	}
	if family == nil {
		return WebhookLatencySnapshot{}
	}

	// Keep only successful deliveries.
	cumulativeByUpper := map[float64]uint64{}
	var sampleCount uint64

	for _, metric := range family.Metric {
		if metric == nil {
			continue
		}
		if !hasLabel(metric, "outcome", "success") {
			continue
		}
		hist := metric.GetHistogram()
		if hist == nil {
			continue
		}
		sampleCount += hist.GetSampleCount()
		for _, b := range hist.Bucket {
			if b == nil {
				continue
			}
			cumulativeByUpper[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if sampleCount == 0 || len(cumulativeByUpper) == 0 {
		return WebhookLatencySnapshot{}
	}

	uppers := make([]float64, 0, len(cumulativeByUpper))
	for upper := range cumulativeByUpper {
		uppers = append(uppers, upper)
	}
	sort.Float64s(uppers)

	buckets := make([]WebhookLatencyBucket, 0, len(uppers))
	var prev uint64
	var lastFiniteUpper float64
	for _, upper := range uppers {
		cum := cumulativeByUpper[upper]
		count := int64(cum)
		if cum >= prev {
			count = int64(cum - prev)
		}

		if math.IsInf(upper, 1) {
			if count > 0 {
				buckets = append(buckets, WebhookLatencyBucket{
					LeSeconds: lastFiniteUpper,
					Label:     fmt.Sprintf(">%s", formatSeconds(lastFiniteUpper)),
					Count:     count,
				})
			}
			prev = cum
			continue
		}

		lastFiniteUpper = upper
		buckets = append(buckets, WebhookLatencyBucket{
			LeSeconds: upper,
			Count:     count,
		})
		prev = cum
	}

	p90 := histogramQuantile(0.90, sampleCount, uppers, cumulativeByUpper)
	p95 := histogramQuantile(0.95, sampleCount, uppers, cumulativeByUpper)

	return WebhookLatencySnapshot{
		Total:   int64(sampleCount),
		P90Ms:   p90 * 1000.0,
		P95Ms:   p95 * 1000.0,
		Buckets: buckets,
	}
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, lp := range metric.Label {
		if lp == nil {
			continue
		}
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func histogramQuantile(q float64, total uint64, uppers []float64, cumulativeByUpper map[float64]uint64) float64 {
	if total == 0 || q <= 0 {
		return 0
	}
	if q >= 1 {
		for i := len(uppers) - 1; i >= 0; i-- {
			if !math.IsInf(uppers[i], 1) {
				return uppers[i]
			}
		}
		return 0
	}

	target := q * float64(total)
	var prevUpper float64
	var prevCum float64

	for _, upper := range uppers {
		cum := float64(cumulativeByUpper[upper])
		if cum < target {
			prevUpper = upper
			prevCum = cum
			continue
		}

		bucketCount := cum - prevCum
		if bucketCount <= 0 || upper == prevUpper {
			return upper
		}
		if math.IsInf(upper, 1) {
			return prevUpper
		}

		fraction := (target - prevCum) / bucketCount
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}

		return prevUpper + fraction*(upper-prevUpper)
	}

	return uppers[len(uppers)-1]
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	if seconds < 1 {
		return fmt.Sprintf("%.2fs", seconds)
	}
	if seconds < 10 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	return fmt.Sprintf("%.0fs", seconds)
}

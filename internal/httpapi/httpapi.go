package httpapi

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bakerypos/internal/apperr"
	"bakerypos/internal/domain"
	"bakerypos/internal/logger"
	"bakerypos/internal/metrics"
	"bakerypos/internal/money"
	"bakerypos/internal/service"
	"bakerypos/internal/validate"
)

const maxBodyBytes = 8 << 20

type Options struct {
	AllowedOrigin string
	Logger        *logger.Logger
	Metrics       *metrics.POSMetrics
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

type API struct {
	service       *service.Service
	log           *logger.Logger
	metrics       *metrics.POSMetrics
	gatherer      prometheus.Gatherer
	allowedOrigin string
}

func New(svc *service.Service, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	return &API{
		service:       svc,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		gatherer:      opts.Gatherer,
		allowedOrigin: opts.AllowedOrigin,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.allowedOrigin},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(securityHeaders)

	r.Get("/healthz", a.handleHealth)
	if a.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Get("/", a.handleListItems)
			r.Post("/", a.handleCreateItem)
			r.Get("/{id}", a.handleGetItem)
			r.Put("/{id}", a.handleUpdateItem)
			r.Delete("/{id}", a.handleDeleteItem)
		})
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", a.handleGetCart)
			r.Delete("/", a.handleClearCart)
			r.Post("/lines", a.handleAddCartLine)
			r.Patch("/lines/{index}", a.handleSetCartQuantity)
			r.Delete("/lines/{index}", a.handleRemoveCartLine)
			r.Post("/finalize", a.handleFinalize)
		})
		r.Route("/reports", func(r chi.Router) {
			r.Get("/daily", a.handleDailyReport)
			r.Get("/monthly", a.handleMonthlyReport)
		})
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", a.handleListInvoices)
			r.Get("/at", a.handleInvoiceAt)
			r.Get("/{id}", a.handleInvoiceDetail)
		})
		r.Get("/sales", a.handleSalesInRange)
		r.Get("/sequencer", a.handleSequencerStatus)
	})

	return r
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := a.log.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		r = r.WithContext(ctx)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(startedAt)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		a.metrics.ObserveHTTP(route, r.Method, status, elapsed)
		a.log.Debug(a.log.WithFields(ctx, map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
		}), "request")
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.service.Ping(r.Context()); err != nil {
		a.log.Error(r.Context(), "health check failed", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok": false,
			"at": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleListItems(w http.ResponseWriter, r *http.Request) {
	if name := strings.TrimSpace(r.URL.Query().Get("name")); name != "" {
		item, err := a.service.FindItemByName(r.Context(), name)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, []domain.Item{item})
		return
	}

	items, err := a.service.ListItems(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var input domain.ItemInput
	if err := validate.DecodeJSONBody(r, &input); err != nil {
		a.writeError(w, r, err)
		return
	}
	item, err := a.service.AddItem(r.Context(), input)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	item, err := a.service.GetItem(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var input domain.ItemInput
	if err := validate.DecodeJSONBody(r, &input); err != nil {
		a.writeError(w, r, err)
		return
	}
	item, err := a.service.UpdateItem(r.Context(), id, input)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.service.RemoveItem(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.service.Cart())
}

func (a *API) handleClearCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.service.ClearCart())
}

func (a *API) handleAddCartLine(w http.ResponseWriter, r *http.Request) {
	var req domain.CartAddRequest
	if err := validate.DecodeJSONBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	view, err := a.service.AddToCart(r.Context(), req.ItemID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleSetCartQuantity(w http.ResponseWriter, r *http.Request) {
	index, err := indexParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req domain.CartQuantityRequest
	if err := validate.DecodeJSONBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	view, err := a.service.SetCartQuantity(index, req.Quantity)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleRemoveCartLine(w http.ResponseWriter, r *http.Request) {
	index, err := indexParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	view, err := a.service.RemoveCartLine(index)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleFinalize(w http.ResponseWriter, r *http.Request) {
	receipt, err := a.service.Finalize(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.DailyReport(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeReport(w, r, report)
}

func (a *API) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.MonthlyReport(r.Context(), r.URL.Query().Get("month"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeReport(w, r, report)
}

func (a *API) writeReport(w http.ResponseWriter, r *http.Request, report domain.SalesReport) {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s-report-%s.csv\"", report.Period, report.Label))
		if err := writeReportCSV(w, report); err != nil {
			a.log.Error(r.Context(), "write report csv failed", err)
		}
	case "", "json":
		writeJSON(w, http.StatusOK, report)
	default:
		a.writeError(w, r, apperr.New(apperr.CodeInvalidInput, "format must be json or csv").
			WithDetails(map[string]string{"format": "must be json or csv"}))
	}
}

func writeReportCSV(w http.ResponseWriter, report domain.SalesReport) error {
	cw := csv.NewWriter(w)
	records := [][]string{{"item_id", "item_name", "quantity", "amount"}}
	for _, line := range report.Lines {
		records = append(records, []string{
			strconv.FormatInt(line.ItemID, 10),
			line.ItemName,
			strconv.FormatInt(line.Quantity, 10),
			money.FromCents(line.AmountCents).StringFixed(2),
		})
	}
	records = append(records, []string{"", "total", "", money.FromCents(report.TotalCents).StringFixed(2)})
	return cw.WriteAll(records)
}

func (a *API) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	since, err := parseInstant(r.URL.Query().Get("since"), "since", a.service.Location())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	summaries, err := a.service.SearchInvoices(r.Context(), since, r.URL.Query().Get("q"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (a *API) handleInvoiceDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := a.service.InvoiceDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleInvoiceAt(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("ts"))
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		a.writeError(w, r, apperr.Wrap(apperr.CodeInvalidInput, err, "ts must be an RFC 3339 timestamp").
			WithDetails(map[string]string{"ts": "must be an RFC 3339 timestamp"}))
		return
	}
	detail, err := a.service.InvoiceDetailAt(r.Context(), at)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleSalesInRange(w http.ResponseWriter, r *http.Request) {
	loc := a.service.Location()
	from, err := parseInstant(r.URL.Query().Get("from"), "from", loc)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	to := time.Now()
	if raw := r.URL.Query().Get("to"); strings.TrimSpace(raw) != "" {
		if to, err = parseInstant(raw, "to", loc); err != nil {
			a.writeError(w, r, err)
			return
		}
	}
	grouped, err := a.service.SalesInRange(r.Context(), from, to)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grouped)
}

func (a *API) handleSequencerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.service.SequencerStatus(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// parseInstant accepts an RFC 3339 instant or a date, read as local midnight.
// Empty yields the zero time.
func parseInstant(raw string, field string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if at, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return at, nil
	}
	day, err := time.ParseInLocation(domain.DateLayout, raw, loc)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.CodeInvalidInput, err, field+" must be a date or RFC 3339 timestamp").
			WithDetails(map[string]string{field: "must be YYYY-MM-DD or RFC 3339"})
	}
	return day, nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	value, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || value < 1 {
		return 0, apperr.New(apperr.CodeInvalidInput, name+" must be a positive integer").
			WithDetails(map[string]string{name: "must be a positive integer"})
	}
	return value, nil
}

func indexParam(r *http.Request) (int, error) {
	value, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, apperr.New(apperr.CodeInvalidInput, "index must be an integer").
			WithDetails(map[string]string{"index": "must be an integer"})
	}
	return value, nil
}

// writeError maps coded errors to their HTTP status. 5xx bodies carry only
// the public message; the cause is logged.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
			"error": "request body too large",
			"code":  apperr.CodeInvalidInput,
		})
		return
	}

	code := apperr.CodeOf(err)
	meta := apperr.MetadataFor(code)
	body := map[string]any{
		"error": meta.PublicMessage,
		"code":  code,
	}
	if meta.HTTPStatus >= http.StatusInternalServerError {
		a.log.Error(r.Context(), "request failed", err)
		writeJSON(w, meta.HTTPStatus, body)
		return
	}

	if appErr := apperr.As(err); appErr != nil {
		if appErr.Message() != "" {
			body["error"] = appErr.Message()
		}
		if meta.DetailsAllowed && appErr.Details() != nil {
			body["details"] = appErr.Details()
		}
	}
	writeJSON(w, meta.HTTPStatus, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package findings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/leakwatch/leakwatch/internal/api/errs"
	"github.com/leakwatch/leakwatch/internal/api/mid"
	appreport "github.com/leakwatch/leakwatch/internal/app/report"
	"github.com/leakwatch/leakwatch/internal/domain/findings"
	"github.com/leakwatch/leakwatch/pkg/common/logger"
	"github.com/leakwatch/leakwatch/pkg/web"
)

// Config contains the dependencies needed by the findings handlers.
type Config struct {
	Log     *logger.Logger
	Service *Service

	// Limiter throttles scan submissions. Nil disables throttling.
	Limiter *rate.Limiter
}

// Routes binds all the findings endpoints.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	app.HandlerFunc(http.MethodPost, version, "/scans", submitScan(cfg), mid.RateLimit(cfg.Limiter))
	app.HandlerFunc(http.MethodGet, version, "/scans/{scan_id}", getScan(cfg))
	app.HandlerFunc(http.MethodGet, version, "/scans/{scan_id}/report", getReport(cfg))

	app.HandlerFunc(http.MethodGet, version, "/findings", listFindings(cfg))
	app.HandlerFunc(http.MethodGet, version, "/findings/{finding_id}", getFinding(cfg))
	app.HandlerFunc(http.MethodPatch, version, "/findings/{finding_id}", triageFinding(cfg))
	app.HandlerFunc(http.MethodGet, version, "/findings/{finding_id}/related", listRelatedFindings(cfg))

	app.HandlerFunc(http.MethodGet, version, "/statistics", getStatistics(cfg))

	app.HandlerFunc(http.MethodPost, version, "/allowlist", createAllowlistEntry(cfg))
	app.HandlerFunc(http.MethodGet, version, "/allowlist", listAllowlist(cfg))
	app.HandlerFunc(http.MethodDelete, version, "/allowlist/{entry_id}", deactivateAllowlistEntry(cfg))
}

// submitScanRequest carries one scan's metadata plus the raw detector
// report. Matched secret text in the report never leaves this request: only
// fingerprints and locations persist.
type submitScanRequest struct {
	ScanID       string          `json:"scan_id" validate:"required,uuid"`
	RepositoryID string          `json:"repository_id" validate:"required,uuid"`
	CommitSHA    string          `json:"commit_sha" validate:"required"`
	Branch       string          `json:"branch,omitempty"`
	ScanType     string          `json:"scan_type" validate:"required,oneof=push pull_request manual"`
	TriggeredBy  string          `json:"triggered_by,omitempty"`
	Findings     json.RawMessage `json:"findings" validate:"required"`
}

// submitScanResponse summarizes the reconciliation outcome for one scan.
type submitScanResponse struct {
	ScanID      string `json:"scan_id"`
	Status      string `json:"status"`
	New         int    `json:"new"`
	Resolved    int    `json:"resolved"`
	StillActive int    `json:"still_active"`
	Suppressed  int    `json:"suppressed"`
	Skipped     int    `json:"skipped"`
}

// Encode implements the web.Encoder interface.
func (sr submitScanResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(sr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// HTTPStatus implements the httpStatus interface to set the response status code.
func (sr submitScanResponse) HTTPStatus() int { return http.StatusCreated } // 201

// submitScan handles the request to submit and reconcile a scan.
func submitScan(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		var req submitScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		if err := errs.Check(req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		scanID, err := uuid.Parse(req.ScanID)
		if err != nil {
			return errs.Newf(errs.InvalidArgument, "invalid scan ID: %v", err)
		}
		repoID, err := uuid.Parse(req.RepositoryID)
		if err != nil {
			return errs.Newf(errs.InvalidArgument, "invalid repository ID: %v", err)
		}

		scan, result, err := cfg.Service.SubmitScan(ctx, scanID, repoID,
			req.CommitSHA, req.Branch, findings.ScanType(req.ScanType), req.TriggeredBy,
			bytes.NewReader(req.Findings))
		if err != nil {
			switch {
			case errors.Is(err, findings.ErrDuplicateScan):
				return errs.Newf(errs.Conflict, "scan %s already submitted", scanID)
			case errors.Is(err, findings.ErrStaleScan):
				return errs.Newf(errs.FailedPrecondition, "scan %s superseded by a newer reconciliation", scanID)
			case errors.Is(err, findings.ErrReconciliationConflict):
				return errs.Newf(errs.Conflict, "repository %s is being reconciled, retry later", repoID)
			case errors.Is(err, findings.ErrInvalidMatch):
				return errs.New(errs.InvalidArgument, err)
			default:
				return errs.New(errs.Internal, err)
			}
		}

		return submitScanResponse{
			ScanID:      scan.ID().String(),
			Status:      scan.Status().String(),
			New:         len(result.New),
			Resolved:    len(result.Resolved),
			StillActive: len(result.StillActive),
			Suppressed:  result.Suppressed,
			Skipped:     result.Skipped,
		}
	}
}

// scanResponse is the detail view of one scan.
type scanResponse struct {
	ID           string `json:"id"`
	RepositoryID string `json:"repository_id"`
	CommitSHA    string `json:"commit_sha"`
	Branch       string `json:"branch,omitempty"`
	Type         string `json:"type"`
	Status       string `json:"status"`
	TriggeredBy  string `json:"triggered_by,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	TotalMatches int            `json:"total_matches"`
	NewFindings  int            `json:"new_findings"`
	Resolved     int            `json:"resolved"`
	BySeverity   map[string]int `json:"by_severity,omitempty"`

	CreatedAt   string `json:"created_at"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// Encode implements the web.Encoder interface.
func (sr scanResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(sr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func toScanResponse(s *findings.Scan) scanResponse {
	totals := s.Totals()
	bySeverity := make(map[string]int, len(totals.BySeverity))
	for sev, n := range totals.BySeverity {
		bySeverity[sev.String()] = n
	}

	resp := scanResponse{
		ID:           s.ID().String(),
		RepositoryID: s.RepositoryID().String(),
		CommitSHA:    s.CommitSHA(),
		Branch:       s.Branch(),
		Type:         s.Type().String(),
		Status:       s.Status().String(),
		TriggeredBy:  s.TriggeredBy(),
		ErrorMessage: s.ErrorMessage(),
		TotalMatches: totals.TotalFindings,
		NewFindings:  totals.NewFindings,
		Resolved:     totals.Resolved,
		BySeverity:   bySeverity,
		CreatedAt:    s.CreatedAt().Format(timeFormat),
	}
	if t, ok := s.StartedAt(); ok {
		resp.StartedAt = t.Format(timeFormat)
	}
	if t, ok := s.CompletedAt(); ok {
		resp.CompletedAt = t.Format(timeFormat)
	}
	return resp
}

// getScan handles the request to get scan details by ID.
func getScan(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		scanID, err := uuid.Parse(web.Param(r, "scan_id"))
		if err != nil {
			return errs.Newf(errs.InvalidArgument, "invalid scan ID: %v", err)
		}

		scan, err := cfg.Service.GetScan(ctx, scanID)
		if err != nil {
			if errors.Is(err, findings.ErrScanNotFound) {
				return errs.Newf(errs.NotFound, "scan not found: %s", scanID)
			}
			return errs.New(errs.Internal, err)
		}
		return toScanResponse(scan)
	}
}

// reportResponse wraps a stored diff report for JSON encoding.
type reportResponse struct {
	report *findings.ScanReport
}

// Encode implements the web.Encoder interface.
func (rr reportResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(rr.report)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// markdownResponse renders a diff report as Markdown text.
type markdownResponse struct {
	body string
}

// Encode implements the web.Encoder interface.
func (mr markdownResponse) Encode() ([]byte, string, error) {
	return []byte(mr.body), "text/markdown; charset=utf-8", nil
}

// getReport handles the request to get a scan's diff report, as JSON or as
// Markdown when format=markdown.
func getReport(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		scanID, err := uuid.Parse(web.Param(r, "scan_id"))
		if err != nil {
			return errs.Newf(errs.InvalidArgument, "invalid scan ID: %v", err)
		}

		rep, err := cfg.Service.GetReport(ctx, scanID)
		if err != nil {
			if errors.Is(err, findings.ErrReportNotFound) {
				return errs.Newf(errs.NotFound, "no report for scan %s", scanID)
			}
			return errs.New(errs.Internal, err)
		}

		switch format := r.URL.Query().Get("format"); format {
		case "", "json":
			return reportResponse{report: rep}
		case "markdown":
			return markdownResponse{body: appreport.RenderMarkdown(rep)}
		default:
			return errs.Newf(errs.InvalidArgument, "unknown report format %q", format)
		}
	}
}

// findingResponse is the redacted view of one finding. The fingerprint is a
// hash; the matched text itself is never stored and never returned.
type findingResponse struct {
	ID           string  `json:"id"`
	RepositoryID string  `json:"repository_id"`
	FilePath     string  `json:"file_path"`
	LineNumber   int     `json:"line_number"`
	Fingerprint  string  `json:"fingerprint"`
	SecretType   string  `json:"secret_type"`
	RuleID       string  `json:"rule_id"`
	Entropy      float64 `json:"entropy,omitempty"`
	Severity     string  `json:"severity"`
	Status       string  `json:"status"`

	CommitSHA    string `json:"commit_sha,omitempty"`
	CommitAuthor string `json:"commit_author,omitempty"`

	FirstSeenScanID string `json:"first_seen_scan_id"`
	LastSeenScanID  string `json:"last_seen_scan_id"`

	ResolvedAt     string `json:"resolved_at,omitempty"`
	ResolvedBy     string `json:"resolved_by,omitempty"`
	ResolutionNote string `json:"resolution_note,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Encode implements the web.Encoder interface.
func (fr findingResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(fr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func toFindingResponse(f *findings.Finding) findingResponse {
	resp := findingResponse{
		ID:              f.ID().String(),
		RepositoryID:    f.RepositoryID().String(),
		FilePath:        f.FilePath(),
		LineNumber:      f.LineNumber(),
		Fingerprint:     string(f.Fingerprint()),
		SecretType:      f.SecretType(),
		RuleID:          f.RuleID(),
		Entropy:         f.Entropy(),
		Severity:        f.Severity().String(),
		Status:          f.Status().String(),
		CommitSHA:       f.CommitSHA(),
		CommitAuthor:    f.CommitAuthor(),
		FirstSeenScanID: f.FirstSeenScanID().String(),
		LastSeenScanID:  f.LastSeenScanID().String(),
		ResolvedBy:      f.ResolvedBy(),
		ResolutionNote:  f.ResolutionNote(),
		CreatedAt:       f.CreatedAt().Format(timeFormat),
		UpdatedAt:       f.UpdatedAt().Format(timeFormat),
	}
	if t, ok := f.ResolvedAt(); ok {
		resp.ResolvedAt = t.Format(timeFormat)
	}
	return resp
}

// findingPageResponse is one page of findings plus paging metadata.
type findingPageResponse struct {
	Items    []findingResponse `json:"items"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// Encode implements the web.Encoder interface.
func (fp findingPageResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(fp)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// listFindings handles the request to list findings with filters, sorting,
// and pagination.
func listFindings(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		filter, err := parseFindingFilter(r)
		if err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		page, err := cfg.Service.ListFindings(ctx, filter)
		if err != nil {
			return errs.New(errs.Internal, err)
		}

		items := make([]findingResponse, 0, len(page.Items))
		for _, f := range page.Items {
			items = append(items, toFindingResponse(f))
		}
		return findingPageResponse{
			Items:    items,
			Total:    page.Total,
			Page:     filter.Page,
			PageSize: filter.PageSize,
		}
	}
}

func parseFindingFilter(r *http.Request) (findings.FindingFilter, error) {
	q := r.URL.Query()
	var filter findings.FindingFilter

	if v := q.Get("repository_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, fmt.Errorf("invalid repository ID: %w", err)
		}
		filter.RepositoryID = &id
	}
	if v := q.Get("status"); v != "" {
		status := findings.ParseStatus(v)
		if status == "" {
			return filter, fmt.Errorf("unknown status %q", v)
		}
		filter.Status = status
	}
	if v := q.Get("severity"); v != "" {
		sev := findings.ParseSeverity(v)
		if sev == "" {
			return filter, fmt.Errorf("unknown severity %q", v)
		}
		filter.Severity = sev
	}
	filter.SecretType = q.Get("secret_type")
	filter.PathSearch = q.Get("path")

	switch v := q.Get("sort_by"); v {
	case "", "created_at", "updated_at", "severity", "file_path":
		filter.SortBy = v
	default:
		return filter, fmt.Errorf("unknown sort field %q", v)
	}
	filter.SortDesc = q.Get("order") == "desc"

	var err error
	if filter.Page, err = parsePositiveInt(q.Get("page")); err != nil {
		return filter, fmt.Errorf("invalid page: %w", err)
	}
	if filter.PageSize, err = parsePositiveInt(q.Get("page_size")); err != nil {
		return filter, fmt.Errorf("invalid page size: %w", err)
	}
	return filter, nil
}

func parsePositiveInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return n, nil
}

// getFinding handles the request to get one finding by ID.
func getFinding(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		findingID, err := uuid.Parse(web.Param(r, "finding_id"))
		if err != nil {
			return errs.Newf(errs.InvalidArgument, "invalid finding ID: %v", err)
		}

		f, err := cfg.Service.GetFinding(ctx, findingID)
		if err != nil {
			if errors.Is(err, findings.ErrFindingNotFound) {
				return errs.Newf(errs.NotFound, "finding not found: %s", findingID)
			}
			return errs.New(errs.Internal, err)
		}
		return toFindingResponse(f)
	}
}

// relatedFindingsResponse lists findings likely tied to the same exposure.
type relatedFindingsResponse struct {
	Items []findingResponse `json:"items"`
	Total int               `json:"total"`
}

// Encode implements the web.Encoder interface.
func (rr relatedFindingsResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(rr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// listRelatedFindings handles the request to list findings related to one
// finding: same repository and secret type, same file or directory.
func listRelatedFindings(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		findingID, err := uuid.Parse(web.Param(r, "finding_id"))
		if err != nil {
			return errs.Newf(errs.InvalidArgument, "invalid finding ID: %v", err)
		}

		related, err := cfg.Service.RelatedFindings(ctx, findingID)
		if err != nil {
			if errors.Is(err, findings.ErrFindingNotFound) {
				return errs.Newf(errs.NotFound, "finding not found: %s", findingID)
			}
			return errs.New(errs.Internal, err)
		}

		items := make([]findingResponse, 0, len(related))
		for _, f := range related {
			items = append(items, toFindingResponse(f))
		}
		return relatedFindingsResponse{Items: items, Total: len(items)}
	}
}

// statsResponse aggregates finding counts. Everything here is derived from
// statuses, severities, and locations.
type statsResponse struct {
	TotalFindings int            `json:"total_findings"`
	ByStatus      map[string]int `json:"by_status"`
	BySeverity    map[string]int `json:"by_severity"`
	BySecretType  map[string]int `json:"by_secret_type"`
	ByRepository  map[string]int `json:"by_repository,omitempty"`
	TrendDays     int            `json:"trend_days"`
	TrendNew      int            `json:"trend_new"`
	TrendResolved int            `json:"trend_resolved"`
}

// Encode implements the web.Encoder interface.
func (sr statsResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(sr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func toStatsResponse(stats findings.FindingStats, days int) statsResponse {
	resp := statsResponse{
		TotalFindings: stats.Total,
		ByStatus:      make(map[string]int, len(stats.ByStatus)),
		BySeverity:    make(map[string]int, len(stats.BySeverity)),
		BySecretType:  stats.BySecretType,
		TrendDays:     days,
		TrendNew:      stats.NewInWindow,
		TrendResolved: stats.ResolvedInWindow,
	}
	for status, n := range stats.ByStatus {
		resp.ByStatus[status.String()] = n
	}
	for sev, n := range stats.BySeverity {
		resp.BySeverity[sev.String()] = n
	}
	if len(stats.ByRepository) > 0 {
		resp.ByRepository = make(map[string]int, len(stats.ByRepository))
		for id, n := range stats.ByRepository {
			resp.ByRepository[id.String()] = n
		}
	}
	return resp
}

const (
	defaultTrendDays = 30
	maxTrendDays     = 365
)

// getStatistics handles the request for aggregate finding counts, globally
// or for one repository.
func getStatistics(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		q := r.URL.Query()

		var repoID *uuid.UUID
		if v := q.Get("repository_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return errs.Newf(errs.InvalidArgument, "invalid repository ID: %v", err)
			}
			repoID = &id
		}

		days := defaultTrendDays
		if v := q.Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxTrendDays {
				return errs.Newf(errs.InvalidArgument, "days must be between 1 and %d", maxTrendDays)
			}
			days = n
		}

		stats, err := cfg.Service.Statistics(ctx, repoID, time.Duration(days)*24*time.Hour)
		if err != nil {
			return errs.New(errs.Internal, err)
		}
		return toStatsResponse(stats, days)
	}
}

// triageRequest carries a manual status change for a finding. Learn seeds a
// fingerprint allowlist entry and only applies to false-positive
// transitions.
type triageRequest struct {
	Status string `json:"status" validate:"required,oneof=active resolved false_positive ignored"`
	Actor  string `json:"actor" validate:"required"`
	Note   string `json:"note,omitempty"`
	Learn  bool   `json:"learn,omitempty"`
}

// triageFinding handles the request to change a finding's status.
func triageFinding(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		findingID, err := uuid.Parse(web.Param(r, "finding_id"))
		if err != nil {
			return errs.Newf(errs.InvalidArgument, "invalid finding ID: %v", err)
		}

		var req triageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}
		if err := errs.Check(req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		f, err := cfg.Service.TriageFinding(ctx, findingID, findings.Status(req.Status), req.Actor, req.Note, req.Learn)
		if err != nil {
			switch {
			case errors.Is(err, findings.ErrFindingNotFound):
				return errs.Newf(errs.NotFound, "finding not found: %s", findingID)
			case errors.Is(err, findings.ErrInvalidTransition):
				return errs.New(errs.FailedPrecondition, err)
			default:
				return errs.New(errs.Internal, err)
			}
		}
		return toFindingResponse(f)
	}
}

// createAllowlistRequest carries a new suppression entry.
type createAllowlistRequest struct {
	Kind         string `json:"kind" validate:"required,oneof=path regex stopword fingerprint"`
	RepositoryID string `json:"repository_id,omitempty" validate:"omitempty,uuid"`
	Pattern      string `json:"pattern" validate:"required"`
	Reason       string `json:"reason,omitempty"`
}

// allowlistEntryResponse is the view of one allowlist entry.
type allowlistEntryResponse struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	Scope         string `json:"scope"`
	RepositoryID  string `json:"repository_id,omitempty"`
	Pattern       string `json:"pattern"`
	Reason        string `json:"reason,omitempty"`
	Active        bool   `json:"active"`
	TimesMatched  int64  `json:"times_matched"`
	LastMatchedAt string `json:"last_matched_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// Encode implements the web.Encoder interface.
func (ar allowlistEntryResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(ar)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// HTTPStatus implements the httpStatus interface to set the response status code.
func (ar allowlistEntryResponse) HTTPStatus() int { return http.StatusCreated } // 201

func toAllowlistEntryResponse(e *findings.AllowlistEntry) allowlistEntryResponse {
	resp := allowlistEntryResponse{
		ID:           e.ID().String(),
		Kind:         e.Kind().String(),
		Scope:        e.Scope().String(),
		Pattern:      e.Pattern(),
		Reason:       e.Reason(),
		Active:       e.Active(),
		TimesMatched: e.TimesMatched(),
		CreatedAt:    e.CreatedAt().Format(timeFormat),
	}
	if id := e.RepositoryID(); id != nil {
		resp.RepositoryID = id.String()
	}
	if t, ok := e.LastMatchedAt(); ok {
		resp.LastMatchedAt = t.Format(timeFormat)
	}
	return resp
}

// createAllowlistEntry handles the request to create a suppression entry.
func createAllowlistEntry(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		var req createAllowlistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}
		if err := errs.Check(req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		var repoID *uuid.UUID
		if req.RepositoryID != "" {
			id, err := uuid.Parse(req.RepositoryID)
			if err != nil {
				return errs.Newf(errs.InvalidArgument, "invalid repository ID: %v", err)
			}
			repoID = &id
		}

		entry, err := cfg.Service.CreateAllowlistEntry(ctx, findings.AllowlistKind(req.Kind), repoID, req.Pattern, req.Reason)
		if err != nil {
			return errs.New(errs.Internal, err)
		}
		return toAllowlistEntryResponse(entry)
	}
}

// allowlistResponse is the list of entries effective for a repository.
type allowlistResponse struct {
	Entries []allowlistEntryResponse `json:"entries"`
}

// Encode implements the web.Encoder interface.
func (ar allowlistResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(ar)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// listAllowlist handles the request to list effective allowlist entries.
func listAllowlist(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		var repoID *uuid.UUID
		if v := r.URL.Query().Get("repository_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return errs.Newf(errs.InvalidArgument, "invalid repository ID: %v", err)
			}
			repoID = &id
		}

		entries, err := cfg.Service.ListAllowlist(ctx, repoID)
		if err != nil {
			return errs.New(errs.Internal, err)
		}

		resp := allowlistResponse{Entries: make([]allowlistEntryResponse, 0, len(entries))}
		for _, e := range entries {
			resp.Entries = append(resp.Entries, toAllowlistEntryResponse(e))
		}
		return resp
	}
}

// deactivateAllowlistEntry handles the request to turn an entry off.
func deactivateAllowlistEntry(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		entryID, err := uuid.Parse(web.Param(r, "entry_id"))
		if err != nil {
			return errs.Newf(errs.InvalidArgument, "invalid entry ID: %v", err)
		}

		if err := cfg.Service.DeactivateAllowlistEntry(ctx, entryID); err != nil {
			if errors.Is(err, findings.ErrAllowlistEntryNotFound) {
				return errs.Newf(errs.NotFound, "allowlist entry not found: %s", entryID)
			}
			return errs.New(errs.Internal, err)
		}
		return web.NewNoResponse()
	}
}

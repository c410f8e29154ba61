package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"rand-assess/internal/assess"
	"rand-assess/internal/bitseq"
	"rand-assess/internal/clock"
	"rand-assess/internal/metrics"
	"rand-assess/internal/report"
	"rand-assess/internal/runner"

	"github.com/google/uuid"
)

// TestReport is the outcome of one test at one parameter value.
type TestReport struct {
	Test          string    `json:"test"`
	Param         int       `json:"param,omitempty"`
	Invocations   int       `json:"invocations"`
	Errors        int       `json:"errors"`
	Error         string    `json:"error,omitempty"`
	PValues       []float64 `json:"p_values"`
	Proportion    float64   `json:"proportion"`
	MinProportion float64   `json:"min_proportion"`
	Uniformity    float64   `json:"uniformity"`
	MeanP         float64   `json:"mean_p"`
	MedianP       float64   `json:"median_p"`
	StdDevP       float64   `json:"stddev_p"`
	MinP          float64   `json:"min_p"`
	Pass          bool      `json:"pass"`
}

// AssessResponse is the body returned by POST /api/v1/assess.
type AssessResponse struct {
	RequestID    string       `json:"request_id"`
	RunID        string       `json:"run_id"`
	Mode         string       `json:"mode"`
	Selection    string       `json:"selection"`
	SequenceBits int          `json:"sequence_bits"`
	Sequences    int          `json:"sequences"`
	BitsRead     int          `json:"bits_read"`
	Zeros        int          `json:"zeros"`
	Ones         int          `json:"ones"`
	Alpha        float64      `json:"alpha"`
	Passed       bool         `json:"passed"`
	Result       string       `json:"result"`
	Tests        []TestReport `json:"tests"`
}

type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

// assessRequest is a parsed POST /api/v1/assess.
type assessRequest struct {
	options assess.Options
	format  string
	body    []byte
}

func (s *Server) handleAssess(response http.ResponseWriter, request *http.Request) {
	start := s.clock.Now()
	status := http.StatusOK
	requestID := uuid.NewString()
	response.Header().Set("X-Request-ID", requestID)
	setNoStoreHeaders(response)
	defer func() {
		metrics.RecordAPIRequest(status, clock.Since(s.clock, start))
	}()

	if request.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		response.Header().Set("Allow", http.MethodPost)
		http.Error(response, "method not allowed", status)
		return
	}

	if allowed, wait := s.rateLimiter.Allow(); !allowed {
		status = http.StatusServiceUnavailable
		metrics.RecordAPIRateLimited()
		setRetryAfter(response, wait)
		http.Error(response, "rate limit exceeded", status)
		return
	}

	parsed, err := s.parseAssessRequest(response, request)
	if err != nil {
		status = writeRequestError(response, err)
		return
	}

	cfg, err := assess.BuildRunConfig(parsed.options)
	if err != nil {
		status = writeRequestError(response, badRequest("%v", err))
		return
	}

	decoder, err := runner.NewDecoder(bytes.NewReader(parsed.body), parsed.format, cfg.SequenceBits())
	if err != nil {
		status = writeRequestError(response, badRequest("%v", err))
		return
	}

	recorder := report.NewRecorder()
	run := runner.New(s.suite, recorder, runner.WithClock(s.clock), runner.WithSourceLabel("api"))
	summary, err := run.Run(request.Context(), cfg, decoder)
	if err != nil {
		var decodeErr *bitseq.DecodeError
		if errors.As(err, &decodeErr) {
			status = writeRequestError(response, badRequest("%v", decodeErr))
		} else {
			status = writeRequestError(response, &requestError{status: http.StatusServiceUnavailable, msg: err.Error()})
		}
		return
	}

	summaries := report.Summarize(recorder.Results(), s.settings.Alpha)
	body := AssessResponse{
		RequestID:    requestID,
		RunID:        summary.RunID,
		Mode:         cfg.Mode().String(),
		Selection:    cfg.Selection().String(),
		SequenceBits: cfg.SequenceBits(),
		Sequences:    summary.Sequences,
		BitsRead:     summary.Totals.BitsRead,
		Zeros:        summary.Totals.Zeros,
		Ones:         summary.Totals.Ones,
		Alpha:        alphaOrDefault(s.settings.Alpha),
		Passed:       true,
		Result:       report.LegacyString(summaries),
		Tests:        testReports(summaries, recorder.Results()),
	}
	for _, t := range body.Tests {
		body.Passed = body.Passed && t.Pass
	}

	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	if err := json.NewEncoder(response).Encode(body); err != nil {
		log.Printf("api: write response %s failed: %v", requestID, err)
	}
	log.Printf("api: request %s assessed %d sequences of %d bits in %s (passed=%v)",
		requestID, summary.Sequences, cfg.SequenceBits(), clock.Since(s.clock, start).Round(time.Millisecond), body.Passed)
}

func (s *Server) parseAssessRequest(response http.ResponseWriter, request *http.Request) (assessRequest, error) {
	query := request.URL.Query()

	mode := assess.ModeNIST
	if v := query.Get("mode"); v != "" {
		parsed, err := assess.ParseEvaluationMode(v)
		if err != nil {
			return assessRequest{}, badRequest("%v", err)
		}
		mode = parsed
	}

	selection := assess.SelectNISTDefaults
	if mode == assess.ModeGM {
		selection = assess.SelectGMDefaults
	}
	var manual assess.EnableVector
	if v := query.Get("tests"); v != "" {
		parsed, err := assess.ParseEnableVector(v)
		if err != nil {
			return assessRequest{}, badRequest("%v", err)
		}
		manual = parsed
		selection = assess.SelectManual
	}
	if v := query.Get("selection"); v != "" {
		parsed, err := assess.ParseSelectionMode(v)
		if err != nil {
			return assessRequest{}, badRequest("%v", err)
		}
		selection = parsed
	}

	format, err := runner.ParseFormat(query.Get("format"))
	if err != nil {
		return assessRequest{}, badRequest("%v", err)
	}

	overrides, err := parseOverrides(query)
	if err != nil {
		return assessRequest{}, badRequest("%v", err)
	}

	request.Body = http.MaxBytesReader(response, request.Body, int64(s.settings.MaxBodyBytes))
	body, err := io.ReadAll(request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return assessRequest{}, &requestError{status: http.StatusRequestEntityTooLarge,
				msg: fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit)}
		}
		return assessRequest{}, badRequest("read body: %v", err)
	}

	total := countBits(body, format)
	if total < s.settings.MinBits {
		return assessRequest{}, badRequest("at least %d bits are required, got %d", s.settings.MinBits, total)
	}

	n := total
	if v := query.Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return assessRequest{}, badRequest("n must be a positive integer")
		}
		n = parsed
	}
	sequences := sequencesIn(total, n, format)
	if sequences == 0 {
		return assessRequest{}, badRequest("body holds %d bits, fewer than one sequence of %d", total, n)
	}

	return assessRequest{
		options: assess.Options{
			Mode:         mode,
			Selection:    selection,
			Manual:       manual,
			Overrides:    overrides,
			Lengths:      s.settings.Lengths,
			SequenceBits: n,
			NumSequences: sequences,
		},
		format: format,
		body:   body,
	}, nil
}

// parseOverrides reads repeated param=name=value query values.
func parseOverrides(query url.Values) (map[assess.TestID]int, error) {
	overrides := make(map[assess.TestID]int)
	for _, raw := range query["param"] {
		id, value, err := assess.ParseOverride(raw)
		if err != nil {
			return nil, err
		}
		overrides[id] = value
	}
	return overrides, nil
}

// countBits returns the number of bits the decoder for format can read from
// body.
func countBits(body []byte, format string) int {
	if format == runner.FormatBinary {
		return len(body) * 8
	}
	total := 0
	for _, c := range body {
		switch c {
		case '0', '1', 0x00, 0x01:
			total++
		}
	}
	return total
}

// sequencesIn returns how many whole sequences of n bits fit in total bits.
// The binary decoder discards the unused remainder of its last chunk.
func sequencesIn(total, n int, format string) int {
	if n <= 0 {
		return 0
	}
	per := n
	if format == runner.FormatBinary {
		per = (n + bitseq.ChunkBits - 1) / bitseq.ChunkBits * bitseq.ChunkBits
	}
	return total / per
}

func testReports(summaries []report.TestSummary, results []assess.Result) []TestReport {
	type key struct {
		test  assess.TestID
		param int
	}
	firstErr := make(map[key]string)
	for _, r := range results {
		k := key{r.Test, r.Param}
		if r.Err != nil && firstErr[k] == "" {
			firstErr[k] = r.Err.Error()
		}
	}

	out := make([]TestReport, 0, len(summaries))
	for _, s := range summaries {
		pvalues := s.PValues
		if pvalues == nil {
			pvalues = []float64{}
		}
		out = append(out, TestReport{
			Test:          s.Test.String(),
			Param:         s.Param,
			Invocations:   s.Invocations,
			Errors:        s.Errors,
			Error:         firstErr[key{s.Test, s.Param}],
			PValues:       pvalues,
			Proportion:    s.Proportion,
			MinProportion: s.MinProportion,
			Uniformity:    s.Uniformity,
			MeanP:         s.MeanP,
			MedianP:       s.MedianP,
			StdDevP:       s.StdDevP,
			MinP:          s.MinP,
			Pass:          s.Pass(),
		})
	}
	return out
}

func alphaOrDefault(alpha float64) float64 {
	if alpha <= 0 || alpha >= 1 {
		return report.DefaultAlpha
	}
	return alpha
}

func writeRequestError(response http.ResponseWriter, err error) int {
	var reqErr *requestError
	if !errors.As(err, &reqErr) {
		reqErr = &requestError{status: http.StatusInternalServerError, msg: err.Error()}
	}
	http.Error(response, reqErr.msg, reqErr.status)
	return reqErr.status
}

// testInfo describes one entry of GET /api/v1/tests.
type testInfo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	BlockLength int    `json:"block_length,omitempty"`
}

func (s *Server) handleTests(response http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		response.Header().Set("Allow", http.MethodGet)
		http.Error(response, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := make([]testInfo, 0, assess.NumTests)
	for _, id := range assess.AllTests() {
		info := testInfo{ID: int(id), Name: id.String()}
		if length, ok := s.settings.Lengths.Get(id); ok {
			info.BlockLength = length
		}
		infos = append(infos, info)
	}

	response.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(response).Encode(infos); err != nil {
		log.Printf("api: write tests failed: %v", err)
	}
}


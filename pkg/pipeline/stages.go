package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"advisor/pkg/artifact"
	"advisor/pkg/llm"
	"advisor/pkg/logx"
)

// Company is one research result row in companies.json.
type Company struct {
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
	Sector  string `json:"sector,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Stage is one unit of pipeline work. Run streams human-readable output
// through emit; the runner scans those chunks for the completion sentinel.
type Stage interface {
	Name() string
	Task() string
	Run(ctx context.Context, emit func(chunk string)) error
}

// NewStages builds the fixed stage sequence: strategist, researcher, analyst,
// valuator. All stages share one model client and one output root.
func NewStages(client llm.Client, root string) []Stage {
	return []Stage{
		&strategistStage{client: client, root: root, logger: logx.NewLogger("strategist")},
		&researcherStage{client: client, root: root, logger: logx.NewLogger("researcher")},
		&analystStage{client: client, root: root, logger: logx.NewLogger("analyst")},
		&valuatorStage{client: client, root: root, logger: logx.NewLogger("valuator")},
	}
}

// strategistStage turns the elicited strategy record into a full acquisition
// strategy report (output.md).
type strategistStage struct {
	client llm.Client
	root   string
	logger *logx.Logger
}

func (s *strategistStage) Name() string { return "strategist" }
func (s *strategistStage) Task() string { return "Generating strategy report" }

func (s *strategistStage) Run(ctx context.Context, emit func(string)) error {
	info, err := os.ReadFile(artifact.Path(s.root, artifact.StrategyInfoFile))
	if err != nil {
		return fmt.Errorf("strategist: failed to read strategy info: %w", err)
	}

	prompt := fmt.Sprintf(`You are the chief strategist at a well-reputed Merger and Acquisitions consultancy firm.

Your task is to prepare a detailed acquisition strategy for your client based on the collected information below.

Client information (JSON):
%s

Develop a comprehensive acquisition strategy tailored to the client's needs, covering target profile, strategic rationale, budget fit, timeline, and risk mitigation. If information is missing, proceed with the available data. Respond with the full report in Markdown.`, string(info))

	report, err := streamToString(ctx, s.client, prompt, emit)
	if err != nil {
		return fmt.Errorf("strategist: model call failed: %w", err)
	}

	if err := artifact.WriteFile(artifact.Path(s.root, artifact.StrategyReportFile), []byte(report)); err != nil {
		return fmt.Errorf("strategist: %w", err)
	}
	s.logger.Info("Strategy report written")
	return nil
}

// researcherStage derives a target-company list from the strategy report
// (companies.json).
type researcherStage struct {
	client llm.Client
	root   string
	logger *logx.Logger
}

func (s *researcherStage) Name() string { return "researcher" }
func (s *researcherStage) Task() string { return "Researching companies" }

func (s *researcherStage) Run(ctx context.Context, emit func(string)) error {
	report, err := os.ReadFile(artifact.Path(s.root, artifact.StrategyReportFile))
	if err != nil {
		return fmt.Errorf("researcher: failed to read strategy report: %w", err)
	}

	prompt := fmt.Sprintf(`You are a researcher at a well-reputed Merger and Acquisitions consultancy firm.

Read the acquisition strategy report below and identify publicly traded companies that match the target profile (sector, market cap, geography, strategic fit).

Strategy report:
%s

Respond ONLY with a JSON array of candidate companies, each object having the keys "symbol", "name", "sector", and "summary". Suggest between 3 and 8 companies.`, string(report))

	resp, err := s.client.Complete(ctx, llm.NewCompletionRequest([]llm.Message{llm.NewUserMessage(prompt)}))
	if err != nil {
		return fmt.Errorf("researcher: model call failed: %w", err)
	}

	span, ok := balancedSpan(resp.Content, '[', ']')
	if !ok {
		return fmt.Errorf("researcher: no company list in model reply")
	}
	var companies []Company
	if err := json.Unmarshal([]byte(span), &companies); err != nil {
		return fmt.Errorf("researcher: failed to decode company list: %w", err)
	}
	if len(companies) == 0 {
		return fmt.Errorf("researcher: model returned an empty company list")
	}

	data, err := json.MarshalIndent(companies, "", "  ")
	if err != nil {
		return fmt.Errorf("researcher: failed to encode company list: %w", err)
	}
	if err := artifact.WriteFile(artifact.Path(s.root, artifact.CompaniesFile), data); err != nil {
		return fmt.Errorf("researcher: %w", err)
	}

	s.logger.Info("Identified %d candidate companies", len(companies))
	emit(fmt.Sprintf("Identified %d candidate companies", len(companies)))
	return nil
}

// analystStage produces per-company metrics and valuation notes under
// fmp_data/. A failure for one symbol never blocks the rest of the batch;
// some data is simply unavailable for some companies.
type analystStage struct {
	client llm.Client
	root   string
	logger *logx.Logger
}

func (s *analystStage) Name() string { return "analyst" }
func (s *analystStage) Task() string { return "Analyzing financials" }

func (s *analystStage) Run(ctx context.Context, emit func(string)) error {
	companies, err := readCompanies(s.root)
	if err != nil {
		return fmt.Errorf("analyst: %w", err)
	}

	strategy, err := os.ReadFile(artifact.Path(s.root, artifact.StrategyReportFile))
	if err != nil {
		return fmt.Errorf("analyst: failed to read strategy report: %w", err)
	}

	succeeded := 0
	for _, company := range companies {
		if ctx.Err() != nil {
			return fmt.Errorf("analyst: %w", ctx.Err())
		}
		if err := s.analyzeCompany(ctx, company, string(strategy)); err != nil {
			s.logger.Warn("Analysis failed for %s, continuing with remaining companies: %v", company.Symbol, err)
			continue
		}
		succeeded++
		emit(fmt.Sprintf("Completed financial analysis for %s", company.Symbol))
	}

	if succeeded == 0 {
		return fmt.Errorf("analyst: analysis failed for all %d companies", len(companies))
	}
	s.logger.Info("Analyzed %d/%d companies", succeeded, len(companies))
	return nil
}

func (s *analystStage) analyzeCompany(ctx context.Context, company Company, strategy string) error {
	metricsPrompt := fmt.Sprintf(`You are an M&A financial analyst. Produce a concise Markdown summary of the key financial metrics for %s (%s): revenue trend, margins, debt load, cash position, and growth. Base the summary on your knowledge of the company; mark uncertain figures as estimates.`,
		company.Name, company.Symbol)

	metrics, err := s.client.Complete(ctx, llm.NewCompletionRequest([]llm.Message{llm.NewUserMessage(metricsPrompt)}))
	if err != nil {
		return fmt.Errorf("metrics collection failed: %w", err)
	}
	if err := artifact.WriteFile(artifact.CompanyPath(s.root, company.Symbol, artifact.MetricsSuffix), []byte(metrics.Content)); err != nil {
		return err
	}

	valuationPrompt := fmt.Sprintf(`You are an M&A financial analyst. Using the acquisition strategy below and the financial profile of %s (%s), produce a Markdown valuation analysis: estimated valuation range, comparable transactions, and acquisition attractiveness.

Acquisition strategy:
%s`, company.Name, company.Symbol, strategy)

	valuation, err := s.client.Complete(ctx, llm.NewCompletionRequest([]llm.Message{llm.NewUserMessage(valuationPrompt)}))
	if err != nil {
		return fmt.Errorf("valuation analysis failed: %w", err)
	}
	return artifact.WriteFile(artifact.CompanyPath(s.root, company.Symbol, artifact.ValuationSuffix), []byte(valuation.Content))
}

// valuatorStage folds the per-company analyses into the final comparative
// valuation report (valuation.md) and announces process completion.
type valuatorStage struct {
	client llm.Client
	root   string
	logger *logx.Logger
}

func (s *valuatorStage) Name() string { return "valuator" }
func (s *valuatorStage) Task() string { return "Generating valuation report" }

func (s *valuatorStage) Run(ctx context.Context, emit func(string)) error {
	strategy, err := os.ReadFile(artifact.Path(s.root, artifact.StrategyReportFile))
	if err != nil {
		return fmt.Errorf("valuator: failed to read strategy report: %w", err)
	}

	analyses, err := readCompanyValuations(s.root)
	if err != nil {
		return fmt.Errorf("valuator: %w", err)
	}
	if len(analyses) == 0 {
		return fmt.Errorf("valuator: no per-company valuation artifacts found")
	}

	symbols := make([]string, 0, len(analyses))
	for symbol := range analyses {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var sb strings.Builder
	for _, symbol := range symbols {
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", symbol, analyses[symbol])
	}

	prompt := fmt.Sprintf(`You are an expert analyst tasked with generating a comprehensive valuation report for potential acquisition targets.

Acquisition strategy:
%s

Per-company valuation analyses:
%s

Generate a very comprehensive valuation report in Markdown that includes:
- Analysis of each company's financials and valuation
- Comparative analysis across companies
- Strategic fit assessment
- Final recommendations with rankings based on valuation and strategic fit

The report should help decision makers understand how each company performs financially, how they align with the acquisition strategy, the recommended acquisition targets in priority order, and the key risks and considerations.`,
		string(strategy), sb.String())

	report, err := streamToString(ctx, s.client, prompt, emit)
	if err != nil {
		return fmt.Errorf("valuator: model call failed: %w", err)
	}

	if err := artifact.WriteFile(artifact.Path(s.root, artifact.ValuationReportFile), []byte(report)); err != nil {
		return fmt.Errorf("valuator: %w", err)
	}

	s.logger.Info("Valuation report written")
	emit(CompletionSentinel)
	return nil
}

// streamToString drives a streaming completion, forwarding each chunk to
// emit and accumulating the full text.
func streamToString(ctx context.Context, client llm.Client, prompt string, emit func(string)) (string, error) {
	chunks, err := client.Stream(ctx, llm.NewCompletionRequest([]llm.Message{llm.NewUserMessage(prompt)}))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", chunk.Error
		}
		if chunk.Content != "" {
			sb.WriteString(chunk.Content)
			emit(chunk.Content)
		}
		if chunk.Done {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if sb.Len() == 0 {
		return "", llm.NewError(llm.ErrorTypeEmptyResponse, "model stream produced no content")
	}
	return sb.String(), nil
}

func readCompanies(root string) ([]Company, error) {
	data, err := os.ReadFile(artifact.Path(root, artifact.CompaniesFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read company list: %w", err)
	}
	var companies []Company
	if err := json.Unmarshal(data, &companies); err != nil {
		return nil, fmt.Errorf("failed to decode company list: %w", err)
	}
	return companies, nil
}

// readCompanyValuations loads every <symbol>_valuation.md under fmp_data,
// keyed by symbol, in sorted order for deterministic prompts.
func readCompanyValuations(root string) (map[string]string, error) {
	dir := filepath.Join(root, artifact.FinancialDataDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read financial data directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), artifact.ValuationSuffix) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	analyses := make(map[string]string, len(names))
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		symbol := strings.TrimSuffix(name, artifact.ValuationSuffix)
		analyses[symbol] = string(content)
	}
	return analyses, nil
}

// balancedSpan returns the first balanced span delimited by open/close,
// honoring string literals so delimiters inside values are skipped.
func balancedSpan(text string, opener, closer byte) (string, bool) {
	start := strings.IndexByte(text, opener)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == opener:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command agentrund serves the agent run engine's streaming chat endpoint.
//
// Usage:
//
//	agentrund serve --config config.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/agentrun/turnengine/pkg/config"
	"github.com/agentrun/turnengine/pkg/engine/delegate"
	"github.com/agentrun/turnengine/pkg/engine/hooks"
	"github.com/agentrun/turnengine/pkg/engine/mcpagent"
	"github.com/agentrun/turnengine/pkg/engine/orchestrator"
	"github.com/agentrun/turnengine/pkg/engine/review"
	"github.com/agentrun/turnengine/pkg/engine/selector"
	"github.com/agentrun/turnengine/pkg/engine/state"
	"github.com/agentrun/turnengine/pkg/engine/synth"
	"github.com/agentrun/turnengine/pkg/engine/tool"
	"github.com/agentrun/turnengine/pkg/engine/tool/builtin"
	"github.com/agentrun/turnengine/pkg/engine/transport"
	"github.com/agentrun/turnengine/pkg/instruction"
	"github.com/agentrun/turnengine/pkg/logger"
	"github.com/agentrun/turnengine/pkg/model"
	"github.com/agentrun/turnengine/pkg/model/anthropic"
	"github.com/agentrun/turnengine/pkg/model/openai"
	"github.com/agentrun/turnengine/pkg/observability"
	"github.com/agentrun/turnengine/pkg/ratelimit"
)

func main() {
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:   "agentrund",
		Short: "Agent run engine server",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the streaming chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logger.Init(level, os.Stderr, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	primaryLLM, err := buildLLM(cfg.Primary)
	if err != nil {
		return fmt.Errorf("build primary model: %w", err)
	}
	defer primaryLLM.Close()

	fastLLM, err := buildLLM(cfg.Fast)
	if err != nil {
		return fmt.Errorf("build fast model: %w", err)
	}
	defer fastLLM.Close()

	promRegistry := prometheus.NewRegistry()
	observability.NewMetrics(promRegistry)

	baseRegistry := buildBaseRegistry()

	pre := hooks.NewPreHook(nil)
	post := hooks.NewPostHook(&llmDocumentRanker{llm: fastLLM})
	reviewer := review.NewReviewer(fastLLM)
	agentSelector := selector.NewSelector(fastLLM)
	// mcpAgent serves connectors the Access Filter reclassified past the
	// tool-count budget; it is exercised once a deployment configures at
	// least one MCP connector, which agentrund's minimal serve path does not.
	_ = mcpagent.NewAgent(fastLLM, ratelimit.NewPerKeyLimiter(2, 4))

	directory := &staticAgentDirectory{selector: agentSelector}

	orch := &orchestrator.Orchestrator{
		LLM:                primaryLLM,
		Pre:                pre,
		Post:               post,
		Reviewer:           reviewer,
		InstructionBuilder: instruction.Build,
	}

	handler := func(w http.ResponseWriter, r *http.Request, req *transport.ChatRequest) {
		serveChat(r.Context(), w, req, orch, baseRegistry, directory)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	mux.Handle("/", transport.NewServer(handler))

	httpSrv := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = httpSrv.Close()
	}()

	slog.Info("agentrund listening", "addr", cfg.HTTP.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// serveChat builds a fresh AgentRun and per-run tool registry, then drives
// the orchestrator over an SSE-backed sink.
func serveChat(ctx context.Context, w http.ResponseWriter, req *transport.ChatRequest, orch *orchestrator.Orchestrator, base *tool.Registry, directory delegate.AgentDirectory) {
	sse, err := transport.NewSSEWriter(w)
	if err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	run := state.NewAgentRun(ctx, "", "", req.ChatID, req.Message, "")
	runOrch := *orch
	runOrch.Sink = sse
	runOrch.Registry = buildRunRegistry(base, &runOrch, run, sse, directory)

	if err := runOrch.Run(ctx, run); err != nil {
		slog.WarnContext(ctx, "run ended with error", "error", err)
	}
}

// buildRunRegistry assembles the tool set for one run: the shared base
// catalog plus the tools bound to this specific run and sink
// (toDoWrite, list_custom_agents, synthesize_final_answer, and
// run_public_agent when delegation is permitted).
func buildRunRegistry(base *tool.Registry, orch *orchestrator.Orchestrator, run *state.AgentRun, sink orchestrator.Sink, directory delegate.AgentDirectory) *tool.Registry {
	reg := tool.NewRegistry()
	for _, e := range base.List() {
		_ = reg.RegisterTool(e)
	}

	planSink := &agentRunPlanSink{run: run}
	_ = reg.RegisterTool(tool.Entry{Tool: builtin.NewToDoWrite(planSink), Internal: true})
	_ = reg.RegisterTool(tool.Entry{Tool: delegate.NewListCustomAgents(directory, run), Internal: true})

	citationSink := transport.NewCitationSink(sink, run)
	synthesizer := synth.NewSynthesizer(orch.LLM)
	currentTurn := func() int { return run.TurnCount }
	_ = reg.RegisterTool(tool.Entry{Tool: synth.NewTool(synthesizer, run, citationSink, currentTurn), Internal: true})

	if run.DelegationEnabled {
		subRunner := delegate.SubRunner(func(subCtx context.Context, agentID, query string, parentTurn, maxTurns int) (*delegate.SubRunResult, error) {
			return runSubAgent(subCtx, orch, base, directory, run, agentID, query, parentTurn)
		})
		_ = reg.RegisterTool(tool.Entry{Tool: delegate.NewRunPublicAgent(run, subRunner), Internal: true})
	}

	return reg
}

// runSubAgent drives one delegated sub-run to completion on a silent sink,
// reusing the parent's LLM and hooks but with delegation disabled to bound
// recursion to a single level. The sub-run is bounded by
// orchestrator.MaxTurns; the maxTurns its SubRunner receives is not used.
func runSubAgent(ctx context.Context, parent *orchestrator.Orchestrator, base *tool.Registry, directory delegate.AgentDirectory, parentRun *state.AgentRun, agentID, query string, parentTurn int) (*delegate.SubRunResult, error) {
	subRun := state.NewAgentRun(ctx, parentRun.UserID, parentRun.WorkspaceID, parentRun.ChatID, query, agentID)
	subRun.DelegationEnabled = false
	subRun.ParentTurnNumber = parentTurn

	sink := &silentSink{}
	subOrch := *parent
	subOrch.Sink = sink
	subOrch.Registry = buildRunRegistry(base, &subOrch, subRun, sink, directory)

	if err := subOrch.Run(ctx, subRun); err != nil {
		return nil, err
	}

	result := &delegate.SubRunResult{Text: subRun.Final.StreamedText}
	for _, c := range sink.citations {
		result.Citations = append(result.Citations, delegate.Citation{DocumentID: c.DocumentID, Title: c.Title, URL: c.URL})
	}
	return result, nil
}

// silentSink accumulates a delegated sub-run's output without streaming it
// to the user directly; the parent run folds the result into its own
// fragments instead.
type silentSink struct {
	citations []orchestrator.Citation
}

func (s *silentSink) ResponseMetadata(chatID, messageID string) error           { return nil }
func (s *silentSink) ChatTitleUpdate(title string) error                       { return nil }
func (s *silentSink) AttachmentUpdate(messageID string, attachments []string) error { return nil }
func (s *silentSink) Reasoning(text string, quickSummary string) error         { return nil }
func (s *silentSink) ResponseUpdate(text string) error                        { return nil }
func (s *silentSink) CitationsUpdate(citations []orchestrator.Citation, citationMap map[int]int) error {
	s.citations = append(s.citations, citations...)
	return nil
}
func (s *silentSink) ImageCitationUpdate(citation orchestrator.Citation) error { return nil }
func (s *silentSink) Error(kind, message, details string) error               { return nil }
func (s *silentSink) End() error                                              { return nil }

func buildLLM(mc config.ModelConfig) (model.LLM, error) {
	switch mc.Provider {
	case "", "anthropic":
		return anthropic.NewFromAPIKey(mc.APIKey, mc.ModelID), nil
	case "openai":
		return openai.NewFromAPIKey(mc.APIKey, mc.ModelID), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", mc.Provider)
	}
}

func buildBaseRegistry() *tool.Registry {
	r := tool.NewRegistry()
	_ = r.RegisterTool(tool.Entry{Tool: builtin.NewFallBack(), Internal: true})
	_ = r.RegisterTool(tool.Entry{Tool: builtin.NewSearchGlobal(&emptySearchBackend{}), Internal: true})
	_ = r.RegisterTool(tool.Entry{Tool: builtin.NewSearchKnowledgeBase(&emptySearchBackend{}), Internal: true})

	if token := os.Getenv("SLACK_BOT_TOKEN"); token != "" {
		_ = r.RegisterTool(tool.Entry{
			Tool:              builtin.NewSlackRelatedMessages(slack.New(token)),
			RequiresApp:       "slack",
			RequiresConnector: "slackConnected",
		})
	}

	if token := os.Getenv("GOOGLE_OAUTH_TOKEN"); token != "" {
		tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		gmail := builtin.NewGoogleWorkspaceBackend("Gmail", "https://www.googleapis.com/gmail/v1/users/me/messages", tokens)
		drive := builtin.NewGoogleWorkspaceBackend("Drive", "https://www.googleapis.com/drive/v3/files", tokens)
		calendar := builtin.NewGoogleWorkspaceBackend("Calendar", "https://www.googleapis.com/calendar/v3/calendars/primary/events", tokens)

		_ = r.RegisterTool(tool.Entry{
			Tool:              builtin.NewConnectorSearch("searchGmail", "Search the user's Gmail messages.", "Gmail", gmail),
			RequiresApp:       "Gmail",
			RequiresConnector: "googleConnected",
		})
		_ = r.RegisterTool(tool.Entry{
			Tool:              builtin.NewConnectorSearch("searchDrive", "Search the user's Google Drive files.", "Drive", drive),
			RequiresApp:       "Drive",
			RequiresConnector: "googleConnected",
		})
		_ = r.RegisterTool(tool.Entry{
			Tool:              builtin.NewConnectorSearch("searchCalendar", "Search the user's Google Calendar events.", "Calendar", calendar),
			RequiresApp:       "Calendar",
			RequiresConnector: "googleConnected",
		})
	}

	return r
}

// emptySearchBackend is the stand-in for the concrete search index, which
// is an external collaborator; it always returns no
// results rather than failing the tool call.
type emptySearchBackend struct{}

func (e *emptySearchBackend) Search(ctx context.Context, query string, excludedIDs []string) ([]builtin.SearchResult, error) {
	return nil, nil
}

// llmDocumentRanker implements hooks.DocumentRanker over the fast model.
type llmDocumentRanker struct {
	llm model.LLM
}

func (r *llmDocumentRanker) Rank(ctx context.Context, question string, candidates []hooks.RankCandidate) ([]int, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	temp := 0.0
	req := &model.Request{
		SystemInstruction: rankPrompt(question, candidates),
		Config:            &model.GenerateConfig{Temperature: &temp},
	}
	for resp, err := range r.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return nil, err
		}
		return parseRankIndexes(resp.TextContent(), len(candidates)), nil
	}
	return nil, nil
}

func rankPrompt(question string, candidates []hooks.RankCandidate) string {
	prompt := fmt.Sprintf("Question: %s\nReturn a JSON array of 1-based indexes of the candidates worth keeping as evidence. Candidates:\n", question)
	for i, c := range candidates {
		prompt += fmt.Sprintf("%d. %s: %.200s\n", i+1, c.Title, c.Content)
	}
	return prompt
}

func parseRankIndexes(text string, max int) []int {
	var out []int
	n := 0
	inNumber := false
	for _, r := range text {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
			inNumber = true
			continue
		}
		if inNumber {
			if n >= 1 && n <= max {
				out = append(out, n)
			}
			n = 0
			inNumber = false
		}
	}
	if inNumber && n >= 1 && n <= max {
		out = append(out, n)
	}
	return out
}

// agentRunPlanSink adapts a live AgentRun to builtin.PlanSink.
type agentRunPlanSink struct {
	run *state.AgentRun
}

func (s *agentRunPlanSink) ReplacePlan(goal string, subTasks []builtin.SubTaskSpec) error {
	p := &state.Plan{Goal: goal}
	for _, t := range subTasks {
		tools := make(map[string]struct{}, len(t.ToolsRequired))
		for _, name := range t.ToolsRequired {
			tools[name] = struct{}{}
		}
		p.SubTasks = append(p.SubTasks, &state.SubTask{
			ID:            t.ID,
			Description:   t.Description,
			Status:        state.SubTaskPending,
			ToolsRequired: tools,
		})
	}
	s.run.Plan = p
	return nil
}

// staticAgentDirectory is a placeholder AgentDirectory; a production
// deployment backs this with the workspace's agent catalog, which lives in
// external authorization/persistence state. Candidates are ranked through
// the Agent Selector before being surfaced to the model.
type staticAgentDirectory struct {
	selector  *selector.Selector
	candidates []selector.Brief
}

func (d *staticAgentDirectory) ListAgents(ctx context.Context, workspaceID string) ([]delegate.AgentBrief, error) {
	if len(d.candidates) == 0 {
		return nil, nil
	}

	ranked := d.selector.Select(ctx, workspaceID, d.candidates)
	out := make([]delegate.AgentBrief, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, delegate.AgentBrief{AgentID: r.Brief.AgentID, Name: r.Brief.Name, Description: r.Brief.Description})
	}
	return out, nil
}

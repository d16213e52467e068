package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/fieldmatch/internal/aggregate"
	"github.com/kalambet/fieldmatch/internal/ingest"
	"github.com/kalambet/fieldmatch/internal/matching"
	"github.com/kalambet/fieldmatch/internal/survey"
)

const questionnaireURI = "survey://questionnaire"

// NewMCPServer creates an MCP server with all fieldmatch tools and resources registered.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"fieldmatch",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("fieldmatch: match field-survey transcriptions to a questionnaire and aggregate the answers."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("parse_response",
			mcp.WithDescription("Decode a raw LLM completion into matched-question records."),
			mcp.WithString("raw", mcp.Description("The completion text, fenced or not"), mcp.Required()),
			mcp.WithBoolean("skip_invalid", mcp.Description("Drop invalid elements instead of failing the batch")),
		),
		mcpParseResponse(deps),
	)

	s.AddTool(
		mcp.NewTool("classify_answer",
			mcp.WithDescription("Classify a free-text answer as yes, no, unanswered or other."),
			mcp.WithString("answer", mcp.Description("The extracted answer text"), mcp.Required()),
		),
		mcpClassifyAnswer(deps),
	)

	s.AddTool(
		mcp.NewTool("aggregate_exports",
			mcp.WithDescription("Aggregate every survey export document into per-question answer statistics."),
			mcp.WithString("group_by", mcp.Description("Empty for a single group, or \"location\"")),
		),
		mcpAggregateExports(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_transcription",
			mcp.WithDescription("Queue a survey transcription for matching against the questionnaire."),
			mcp.WithString("transcription", mcp.Description("Interview transcription text"), mcp.Required()),
			mcp.WithString("name", mcp.Description("Respondent name")),
			mcp.WithString("age", mcp.Description("Respondent age")),
			mcp.WithString("gender", mcp.Description("Respondent gender")),
			mcp.WithString("phone", mcp.Description("Respondent phone")),
			mcp.WithString("location", mcp.Description("Where the interview took place")),
		),
		mcpSubmitTranscription(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			questionnaireURI,
			"Questionnaire",
			mcp.WithResourceDescription("The questionnaire transcriptions are matched against"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceQuestionnaire(deps),
	)

	return s
}

func mcpParseResponse(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("raw")
		if err != nil {
			return mcpError("raw is required"), nil
		}

		policy := matching.PolicyStrict
		if req.GetBool("skip_invalid", false) {
			policy = matching.PolicySkipInvalid
		}

		rep, err := matching.ParseWith(raw, policy)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(newParseView(rep))
	}
}

func mcpClassifyAnswer(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		answer, err := req.RequireString("answer")
		if err != nil {
			return mcpError("answer is required"), nil
		}
		return mcpJSON(newBucketView(deps.classifier().Classify(answer)))
	}
}

func mcpAggregateExports(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		opts, err := deps.aggregateOptions(req.GetString("group_by", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		results, err := aggregate.AggregateFiles(ctx, deps.Exports, deps.Catalog, opts)
		if err != nil {
			return mcpError(fmt.Sprintf("aggregation failed: %v", err)), nil
		}
		return mcpJSON(newResultViews(results))
	}
}

func mcpSubmitTranscription(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("transcription")
		if err != nil {
			return mcpError("transcription is required"), nil
		}

		info := survey.RespondentInfo{
			Name:     req.GetString("name", ""),
			Age:      req.GetString("age", ""),
			Gender:   req.GetString("gender", ""),
			Phone:    req.GetString("phone", ""),
			Location: req.GetString("location", ""),
		}
		var respondent *survey.RespondentInfo
		if info != (survey.RespondentInfo{}) {
			respondent = &info
		}

		sess, err := ingest.Submit(deps.Store, text, respondent)
		if errors.Is(err, ingest.ErrEmptyTranscription) {
			return mcpError("transcription is empty"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to queue session: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Queued session %s", sess.ID)), nil
	}
}

func mcpResourceQuestionnaire(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if deps.Catalog == nil {
			return nil, fmt.Errorf("no questionnaire loaded")
		}

		b, err := json.Marshal(newQuestionnaireView(deps.Catalog))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal questionnaire: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
